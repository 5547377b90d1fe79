package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// State is what the CLI remembers between syncs: the freshness tokens the
// engine hands back, keyed to the language they were fetched in.
type State struct {
	Language     string             `toml:"language"`
	Cards        *schema.CardCache  `toml:"cards,omitempty"`
	Taboos       *schema.TabooCache `toml:"taboos,omitempty"`
	LastSync     time.Time          `toml:"last_sync,omitempty"`
	LastError    string             `toml:"last_error,omitempty"`
	LastErrorAt  time.Time          `toml:"last_error_at,omitempty"`
	PacksFetched time.Time          `toml:"packs_fetched,omitempty"`
	Packs        []schema.Pack      `toml:"packs,omitempty"`
}

// LoadState reads the state file. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	var st State
	if _, err := toml.DecodeFile(path, &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("failed to read state %s: %w", path, err)
	}
	return &st, nil
}

// Save writes the state atomically through a temp file and rename.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// ForLanguage drops tokens fetched in another language; a token is only
// valid against the feed it came from.
func (s *State) ForLanguage(lang string) {
	if s.Language == lang {
		return
	}
	s.Language = lang
	s.Cards = nil
	s.Taboos = nil
	s.Packs = nil
	s.PacksFetched = time.Time{}
}

// RecordSuccess stamps a successful sync and clears the last error.
func (s *State) RecordSuccess(now time.Time) {
	s.LastSync = now.UTC()
	s.LastError = ""
	s.LastErrorAt = time.Time{}
}

// RecordFailure keeps the error of a failed sync for status output.
func (s *State) RecordFailure(err error, now time.Time) {
	s.LastError = err.Error()
	s.LastErrorAt = now.UTC()
}
