package provider

import (
	"context"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
)

// ProgressFunc receives the cumulative number of bytes transferred so far.
type ProgressFunc func(transferred int64)

// Adapter performs the remote operations against one provider's API.
// Identifiers are opaque strings chosen by the provider. Every returned error
// is a *Error; provider SDK error types never escape an Adapter.
type Adapter interface {
	// Name returns the provider identifier (e.g. "gdrive", "azure", "s3").
	Name() string

	// RootID is the identifier of the provider's top-level folder.
	RootID() string

	// RequiredScopes lists the scopes a session must hold to use this adapter.
	RequiredScopes() []string

	// List returns the direct children of parentID, excluding trashed objects.
	// An empty folder yields an empty slice and no error.
	List(ctx context.Context, parentID string) ([]model.FileEntry, error)

	// Upload streams localPath into a new object under parentID, named after the
	// file, calling progress with non-decreasing byte counts.
	Upload(ctx context.Context, parentID, localPath string, progress ProgressFunc) (model.FileEntry, error)

	// Download streams entry into destDir/<entry.Name> and returns that path.
	// A failed or cancelled download leaves no file under that name.
	Download(ctx context.Context, entry model.FileEntry, destDir string, progress ProgressFunc) (string, error)

	// CreateFolder creates a folder under parentID without checking for
	// existing folders of the same name.
	CreateFolder(ctx context.Context, parentID, name string) (model.FileEntry, error)
}

// Finder is implemented by adapters able to look a folder up by name with a
// single query instead of listing the parent.
type Finder interface {
	FindFolder(ctx context.Context, parentID, name string) (entry model.FileEntry, found bool, err error)
}
