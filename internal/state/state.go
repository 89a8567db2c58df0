// Package state remembers the remote folder selected as backup destination
// across runs, using the FileEntry string encoding.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
)

// ErrNoFolder is returned by Folder when nothing is selected.
var ErrNoFolder = errors.New("state: no folder selected")

type document struct {
	Folder string `json:"folder,omitempty"`
}

// Store is a small JSON document on disk guarded by a sibling .lock file.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

// Folder returns the selected folder. A stored value that no longer decodes is
// reported as model.ErrDecode.
func (s *Store) Folder() (model.FileEntry, error) {
	var doc document
	err := s.withLock(func() error {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &doc)
	})
	if errors.Is(err, os.ErrNotExist) {
		return model.FileEntry{}, ErrNoFolder
	}
	if err != nil {
		return model.FileEntry{}, fmt.Errorf("read state: %w", err)
	}
	if doc.Folder == "" {
		return model.FileEntry{}, ErrNoFolder
	}
	return model.Decode(doc.Folder)
}

// SetFolder records e as the selected folder.
func (s *Store) SetFolder(e model.FileEntry) error {
	if !e.IsDirectory {
		return fmt.Errorf("state: %s is not a folder", e)
	}
	return s.write(document{Folder: e.Encode()})
}

// Clear forgets the selection.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
}

func (s *Store) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write state: %w", err)
		}
		return os.Rename(tmp, s.path)
	})
}

func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	fl := flock.New(s.path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock state: %w", err)
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}
