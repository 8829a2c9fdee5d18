// Package session persists the floating-overlay session: the single
// conversation, if any, pinned to the floating chat surface across reloads.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// floatingSession is the on-disk shape: one conversation id.
type floatingSession struct {
	ID int64 `yaml:"id"`
}

// Store reads and writes the floating-session file. Writes are atomic
// (temp file + rename) so a crash never leaves a torn file behind.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save persists the pinned conversation id.
func (s *Store) Save(conversationID int64) error {
	data, err := yaml.Marshal(floatingSession{ID: conversationID})
	if err != nil {
		return fmt.Errorf("encode floating session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chat-session.yaml.*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Clear removes the persisted session. A missing file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear floating session: %w", err)
	}
	return nil
}

// Load returns the persisted conversation id. The second return is false
// when nothing usable is persisted; a malformed file counts as absent.
func (s *Store) Load() (int64, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read floating session: %w", err)
	}

	var fs floatingSession
	if err := yaml.Unmarshal(data, &fs); err != nil || fs.ID <= 0 {
		return 0, false, nil
	}
	return fs.ID, true, nil
}
