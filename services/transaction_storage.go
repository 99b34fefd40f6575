package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/utils"
)

var storageKeyPattern = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// TransactionStorage appends webhook events to one JSON file per key.
type TransactionStorage struct {
	dir string
}

func NewTransactionStorage(dir string) (*TransactionStorage, error) {
	if err := utils.EnsureWritableDir(dir, 0o775); err != nil {
		return nil, fmt.Errorf("transaction storage: %w", err)
	}
	return &TransactionStorage{dir: dir}, nil
}

// SanitizeStorageKey maps a key to the file name stem it is stored under.
func SanitizeStorageKey(key string) string {
	return storageKeyPattern.ReplaceAllString(key, "_")
}

func (s *TransactionStorage) path(key string) (string, error) {
	name := SanitizeStorageKey(strings.TrimSpace(key))
	if name == "" {
		return "", ErrInvalidStorageKey
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Append adds record to the key's file, creating the file on first use.
// Existing events are never rewritten; only last_updated moves.
func (s *TransactionStorage) Append(key string, record models.WebhookRecord) error {
	file, err := s.path(key)
	if err != nil {
		return err
	}
	return withFileLock(file, func() error {
		tf, err := s.read(file)
		if errors.Is(err, ErrTransactionNotFound) {
			now := time.Now().UTC()
			tf = &models.TransactionFile{ID: key, CreatedAt: now}
		} else if err != nil {
			return err
		}
		tf.Events = append(tf.Events, record)
		tf.LastUpdated = time.Now().UTC()
		return writeJSONFile(file, tf, 0o664)
	})
}

func (s *TransactionStorage) Load(key string) (*models.TransactionFile, error) {
	file, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return s.read(file)
}

// Keys returns the stored file stems, most recently updated first.
func (s *TransactionStorage) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	type keyed struct {
		key string
		mod time.Time
	}
	var found []keyed
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, keyed{key: strings.TrimSuffix(name, ".json"), mod: info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	keys := make([]string, len(found))
	for i, k := range found {
		keys[i] = k.key
	}
	return keys, nil
}

func (s *TransactionStorage) read(file string) (*models.TransactionFile, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(strings.TrimSpace(string(data))) == 0) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var tf models.TransactionFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("transaction file %s contains invalid JSON: %w", file, err)
	}
	return &tf, nil
}
