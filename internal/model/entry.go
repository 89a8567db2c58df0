// Package model holds the provider-agnostic description of remote objects.
package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ErrDecode is returned (wrapped) by Decode for malformed or incomplete input.
var ErrDecode = errors.New("model: cannot decode file entry")

// FileEntry describes one remote file or folder. Two entries with the same ID
// denote the same remote object, whatever their names.
//
// Provider and Account record which binding produced the entry. They are empty
// for entries built directly from a provider response and are filled in by the
// storage client before the entry reaches callers.
type FileEntry struct {
	ID          string
	Name        string
	Size        int64
	IsDirectory bool
	Provider    string
	Account     string
}

// NewFile builds a non-directory entry. Negative sizes are reported as 0.
func NewFile(id, name string, size int64) FileEntry {
	if size < 0 {
		size = 0
	}
	return FileEntry{ID: id, Name: name, Size: size}
}

// NewFolder builds a directory entry; directories never carry a size.
func NewFolder(id, name string) FileEntry {
	return FileEntry{ID: id, Name: name, IsDirectory: true}
}

// WithOrigin returns a copy of e stamped with the provider and account it came from.
func (e FileEntry) WithOrigin(provider, account string) FileEntry {
	e.Provider = provider
	e.Account = account
	return e
}

// ValidName reports whether name can be used for a new remote object: not
// blank, not "." or "..", free of "/", and valid UTF-8 so that it survives
// Encode unchanged.
func ValidName(name string) bool {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return false
	case strings.Contains(name, "/"):
		return false
	}
	return utf8.ValidString(name)
}

// IsZero reports whether e is the zero entry.
func (e FileEntry) IsZero() bool {
	return e == FileEntry{}
}

// Extension returns the suffix of Name starting at its last dot (".zip" for
// "backup.zip"). ok is false when the name has no dot.
func (e FileEntry) Extension() (ext string, ok bool) {
	i := strings.LastIndex(e.Name, ".")
	if i < 0 {
		return "", false
	}
	return e.Name[i:], true
}

func (e FileEntry) String() string {
	kind := "file"
	if e.IsDirectory {
		kind = "folder"
	}
	return fmt.Sprintf("%s %q (%s)", kind, e.Name, e.ID)
}

// wireEntry is the persisted form. Keys are stable; new fields must be optional.
type wireEntry struct {
	ID        *string `json:"id"`
	Name      string  `json:"name"`
	Size      int64   `json:"size"`
	Directory *bool   `json:"directory"`
	Provider  string  `json:"provider,omitempty"`
	Account   string  `json:"account,omitempty"`
}

// Encode returns the compact string form of e. Decode(e.Encode()) == e for
// every entry whose Name is valid UTF-8; invalid bytes are replaced with
// U+FFFD, which is why the storage client refuses such names.
func (e FileEntry) Encode() string {
	size := e.Size
	if e.IsDirectory {
		size = 0
	}
	data, err := json.Marshal(wireEntry{
		ID:        &e.ID,
		Name:      e.Name,
		Size:      size,
		Directory: &e.IsDirectory,
		Provider:  e.Provider,
		Account:   e.Account,
	})
	if err != nil {
		// Only strings, ints and bools are marshalled.
		panic(fmt.Sprintf("model: encode file entry: %v", err))
	}
	return string(data)
}

// Decode parses the output of Encode. The id and directory fields are
// required; unknown fields are ignored so newer encodings stay readable.
func Decode(s string) (FileEntry, error) {
	var w wireEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &w); err != nil {
		return FileEntry{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if w.ID == nil || *w.ID == "" {
		return FileEntry{}, fmt.Errorf("%w: missing id", ErrDecode)
	}
	if w.Directory == nil {
		return FileEntry{}, fmt.Errorf("%w: missing directory flag", ErrDecode)
	}
	if w.Size < 0 {
		return FileEntry{}, fmt.Errorf("%w: negative size %d", ErrDecode, w.Size)
	}

	e := FileEntry{
		ID:          *w.ID,
		Name:        w.Name,
		Size:        w.Size,
		IsDirectory: *w.Directory,
		Provider:    w.Provider,
		Account:     w.Account,
	}
	if e.IsDirectory {
		e.Size = 0
	}
	return e, nil
}
