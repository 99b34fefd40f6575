package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/utils"
)

// TerminalStorage keeps the terminal list in a single JSON file.
type TerminalStorage struct {
	file string
}

// NewTerminalStorage creates the file with an empty list if needed and
// fails when its directory is not writable.
func NewTerminalStorage(file string) (*TerminalStorage, error) {
	if err := utils.EnsureWritableDir(filepath.Dir(file), 0o775); err != nil {
		return nil, fmt.Errorf("terminal storage: %w", err)
	}
	s := &TerminalStorage{file: file}
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		if err := writeJSONFile(file, models.TerminalFile{Terminals: []models.Terminal{}}, 0o664); err != nil {
			return nil, fmt.Errorf("terminal storage: %w", err)
		}
	}
	if _, err := s.All(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TerminalStorage) All() ([]models.Terminal, error) {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return nil, fmt.Errorf("read terminals: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []models.Terminal{}, nil
	}
	var tf models.TerminalFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("terminal file %s contains invalid JSON: %w", s.file, err)
	}
	if tf.Terminals == nil {
		tf.Terminals = []models.Terminal{}
	}
	return tf.Terminals, nil
}

func (s *TerminalStorage) Find(id string) (models.Terminal, error) {
	terminals, err := s.All()
	if err != nil {
		return models.Terminal{}, err
	}
	for _, t := range terminals {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Terminal{}, ErrTerminalNotFound
}

// Add appends t, assigning an id when it has none.
func (s *TerminalStorage) Add(t models.Terminal) (models.Terminal, error) {
	if t.ID == "" {
		t.ID = utils.RandomHex(8)
	}
	err := withFileLock(s.file, func() error {
		terminals, err := s.All()
		if err != nil {
			return err
		}
		return s.write(append(terminals, t))
	})
	if err != nil {
		return models.Terminal{}, err
	}
	return t, nil
}

// Remove drops the terminal with the given id.
func (s *TerminalStorage) Remove(id string) error {
	return withFileLock(s.file, func() error {
		terminals, err := s.All()
		if err != nil {
			return err
		}
		kept := make([]models.Terminal, 0, len(terminals))
		for _, t := range terminals {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(terminals) {
			return ErrTerminalNotFound
		}
		return s.write(kept)
	})
}

// Seed adds configured terminals whose reader id is not stored yet and
// returns how many were added.
func (s *TerminalStorage) Seed(configured []config.TerminalConfig) (int, error) {
	added := 0
	err := withFileLock(s.file, func() error {
		terminals, err := s.All()
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(terminals))
		for _, t := range terminals {
			known[t.ReaderID] = true
		}
		for _, c := range configured {
			if c.ReaderID == "" || known[c.ReaderID] {
				continue
			}
			known[c.ReaderID] = true
			terminals = append(terminals, models.Terminal{
				ID:               utils.RandomHex(8),
				Label:            c.Label,
				MerchantCode:     c.MerchantCode,
				ReaderID:         c.ReaderID,
				AppID:            c.AppID,
				AffiliateKey:     c.AffiliateKey,
				APIKey:           c.APIKey,
				DefaultReturnURL: c.DefaultReturnURL,
			})
			added++
		}
		if added == 0 {
			return nil
		}
		return s.write(terminals)
	})
	return added, err
}

func (s *TerminalStorage) write(terminals []models.Terminal) error {
	if err := writeJSONFile(s.file, models.TerminalFile{Terminals: terminals}, 0o664); err != nil {
		return fmt.Errorf("save terminals: %w", err)
	}
	return nil
}
