package services

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/zhifu/sumup-terminal/models"
)

const (
	keySize   = 32
	nonceSize = 24
)

// CredentialStore keeps one API key encrypted at rest. The secretbox key
// is generated on first use and lives in its own file.
type CredentialStore struct {
	credentialFile string
	keyFile        string
}

func NewCredentialStore(credentialFile, keyFile string) *CredentialStore {
	return &CredentialStore{credentialFile: credentialFile, keyFile: keyFile}
}

func (s *CredentialStore) HasAPIKey() bool {
	sealed, err := s.readSealed()
	return err == nil && sealed != nil && sealed.Nonce != "" && sealed.Ciphertext != ""
}

// GetAPICredential returns nil without error when nothing is stored or the
// stored value cannot be decrypted.
func (s *CredentialStore) GetAPICredential() (*models.StoredCredential, error) {
	sealed, err := s.readSealed()
	if err != nil || sealed == nil {
		return nil, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, nil
	}
	rawNonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil || len(rawNonce) != nonceSize {
		return nil, nil
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	copy(nonce[:], rawNonce)
	plain, ok := secretbox.Open(nil, ciphertext, &nonce, key)
	if !ok {
		return nil, nil
	}

	return &models.StoredCredential{
		MerchantID: sealed.MerchantID,
		APIKey:     string(plain),
		UpdatedAt:  sealed.UpdatedAt,
	}, nil
}

func (s *CredentialStore) SaveAPIKey(merchantID, apiKey string) error {
	merchantID = strings.TrimSpace(merchantID)
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrEmptyAPIKey
	}
	if strings.HasPrefix(apiKey, publishableKeyPrefix) {
		return ErrPublishableKey
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := secretbox.Seal(nil, []byte(apiKey), &nonce, key)

	sealed := models.SealedCredential{
		MerchantID: merchantID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := os.MkdirAll(filepath.Dir(s.credentialFile), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	return withFileLock(s.credentialFile, func() error {
		return writeJSONFile(s.credentialFile, sealed, 0o600)
	})
}

func (s *CredentialStore) Clear() error {
	if _, err := os.Stat(s.credentialFile); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return withFileLock(s.credentialFile, func() error {
		if err := os.Remove(s.credentialFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove credential: %w", err)
		}
		return nil
	})
}

func (s *CredentialStore) readSealed() (*models.SealedCredential, error) {
	data, err := os.ReadFile(s.credentialFile)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sealed models.SealedCredential
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, err
	}
	if sealed.Nonce == "" || sealed.Ciphertext == "" {
		return nil, nil
	}
	return &sealed, nil
}

func (s *CredentialStore) loadOrCreateKey() (*[keySize]byte, error) {
	if key, err := s.readKey(); err != nil || key != nil {
		return key, err
	}

	if err := os.MkdirAll(filepath.Dir(s.keyFile), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	var key *[keySize]byte
	err := withFileLock(s.keyFile, func() error {
		// another process may have created it while we waited
		existing, err := s.readKey()
		if err != nil || existing != nil {
			key = existing
			return err
		}

		var fresh [keySize]byte
		if _, err := io.ReadFull(rand.Reader, fresh[:]); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if err := os.WriteFile(s.keyFile, fresh[:], 0o600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}
		// WriteFile keeps the mode of an existing file
		if err := os.Chmod(s.keyFile, 0o600); err != nil {
			return fmt.Errorf("chmod key file: %w", err)
		}
		key = &fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// readKey returns nil without an error when the key file is missing or has
// the wrong length, so a new key gets generated.
func (s *CredentialStore) readKey() (*[keySize]byte, error) {
	data, err := os.ReadFile(s.keyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(data) != keySize {
		return nil, nil
	}
	var key [keySize]byte
	copy(key[:], data)
	return &key, nil
}
