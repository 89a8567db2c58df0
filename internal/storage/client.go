// Package storage is the provider-agnostic backup storage client. It resolves
// the application's root folder once and forwards list, upload, download and
// folder creation to the adapter bound at construction.
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

// DefaultAppFolderName is the folder created under the provider root to hold backups.
const DefaultAppFolderName = "MoneyWallet"

// Options tunes a Client.
type Options struct {
	// AppFolderName overrides DefaultAppFolderName.
	AppFolderName string
}

// Client is safe for concurrent use once constructed. The zero value is not
// ready and fails every operation with an InternalState error.
type Client struct {
	adapter   provider.Adapter
	provider  string
	account   string
	appFolder string

	mu    sync.RWMutex
	root  model.FileEntry
	ready bool
}

// Open checks sess against the scopes registered for name, builds the named
// adapter from cfg and returns a ready Client. Without a valid session it
// fails with Unauthenticated before the adapter is created.
func Open(ctx context.Context, name string, cfg any, sess *session.Session, opts Options) (*Client, error) {
	if err := authorize(name, provider.RequiredScopes(name), sess); err != nil {
		return nil, err
	}
	a, err := provider.New(ctx, name, cfg, sess)
	if err != nil {
		return nil, provider.Wrap("open", name, err, provider.Fatal)
	}
	return New(ctx, sess, a, opts)
}

// New binds an existing adapter. It verifies sess, then resolves the app root
// folder (creating it if needed).
func New(ctx context.Context, sess *session.Session, a provider.Adapter, opts Options) (*Client, error) {
	if a == nil {
		return nil, provider.Errorf(provider.InvalidArgument, "open", "", "nil adapter")
	}
	if err := authorize(a.Name(), a.RequiredScopes(), sess); err != nil {
		return nil, err
	}
	c := &Client{
		adapter:   a,
		provider:  a.Name(),
		account:   sess.Account,
		appFolder: opts.AppFolderName,
	}
	if c.appFolder == "" {
		c.appFolder = DefaultAppFolderName
	}
	if !model.ValidName(c.appFolder) {
		return nil, provider.Errorf(provider.InvalidArgument, "open", c.provider, "invalid app folder name %q", c.appFolder)
	}
	if _, err := c.EnsureAppRootFolder(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func authorize(name string, required []string, sess *session.Session) error {
	switch {
	case !sess.Valid():
		return provider.Errorf(provider.Unauthenticated, "open", name, "no signed-in session")
	case sess.Provider != name:
		return provider.Errorf(provider.Unauthenticated, "open", name, "session belongs to provider %q", sess.Provider)
	case !sess.HasScopes(required...):
		return provider.Errorf(provider.Unauthenticated, "open", name, "session lacks required scopes %v", required)
	}
	return nil
}

// Provider returns the bound provider name.
func (c *Client) Provider() string { return c.provider }

// Account returns the account the client acts for.
func (c *Client) Account() string { return c.account }

// AppRoot returns the resolved application root folder.
func (c *Client) AppRoot() (model.FileEntry, error) {
	if err := c.checkReady("app_root"); err != nil {
		return model.FileEntry{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root, nil
}

// EnsureAppRootFolder looks for the application folder directly under the
// provider root and creates it when absent, returning its id. The lookup and
// the creation are separate calls: two clients racing on an empty account can
// both create a folder. When several exist, the first one reported wins.
func (c *Client) EnsureAppRootFolder(ctx context.Context) (string, error) {
	if c == nil || c.adapter == nil {
		return "", provider.Errorf(provider.InternalState, "ensure_app_root", "", "client not constructed")
	}
	start := time.Now()
	top := c.adapter.RootID()

	var (
		folder model.FileEntry
		found  bool
		err    error
	)
	if f, ok := c.adapter.(provider.Finder); ok {
		folder, found, err = f.FindFolder(ctx, top, c.appFolder)
	} else {
		folder, found, err = c.findByListing(ctx, top)
	}
	if err != nil {
		return "", c.fail(ctx, "ensure_app_root", err)
	}

	created := false
	if !found {
		folder, err = c.adapter.CreateFolder(ctx, top, c.appFolder)
		if err != nil {
			return "", c.fail(ctx, "ensure_app_root", err)
		}
		created = true
	}

	c.mu.Lock()
	c.root = folder.WithOrigin(c.provider, c.account)
	c.ready = true
	c.mu.Unlock()

	log.Debug().
		Str("action", "ensure_app_root").
		Str("provider", c.provider).
		Str("id", folder.ID).
		Str("name", c.appFolder).
		Bool("created", created).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("app root folder resolved")
	return folder.ID, nil
}

func (c *Client) findByListing(ctx context.Context, top string) (model.FileEntry, bool, error) {
	entries, err := c.adapter.List(ctx, top)
	if err != nil {
		return model.FileEntry{}, false, err
	}
	for _, e := range entries {
		if e.IsDirectory && e.Name == c.appFolder {
			return e, true, nil
		}
	}
	return model.FileEntry{}, false, nil
}

// List returns the direct children of folder, or of the app root when folder
// is nil. An empty folder yields an empty, non-nil slice.
func (c *Client) List(ctx context.Context, folder *model.FileEntry) ([]model.FileEntry, error) {
	parent, err := c.parentID("list", folder)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	entries, err := c.adapter.List(ctx, parent)
	if err != nil {
		return nil, c.fail(ctx, "list", err)
	}

	out := make([]model.FileEntry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e.WithOrigin(c.provider, c.account))
	}

	log.Debug().
		Str("action", "list").
		Str("provider", c.provider).
		Str("id", parent).
		Int("count", len(out)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("listed folder")
	return out, nil
}

// Upload streams localPath into folder (the app root when nil). progress, if
// non-nil, receives strictly increasing byte counts and, on success, the
// uploaded size as its last value.
func (c *Client) Upload(ctx context.Context, folder *model.FileEntry, localPath string, progress provider.ProgressFunc) (model.FileEntry, error) {
	parent, err := c.parentID("upload", folder)
	if err != nil {
		return model.FileEntry{}, err
	}
	st, err := os.Stat(localPath)
	if err != nil {
		return model.FileEntry{}, provider.E(provider.InvalidArgument, "upload", c.provider, err)
	}
	if !st.Mode().IsRegular() {
		return model.FileEntry{}, provider.Errorf(provider.InvalidArgument, "upload", c.provider, "%q is not a regular file", localPath)
	}
	if name := filepath.Base(localPath); !model.ValidName(name) {
		return model.FileEntry{}, provider.Errorf(provider.InvalidArgument, "upload", c.provider, "invalid remote name %q", name)
	}

	start := time.Now()
	g := newProgressGuard(progress)
	entry, err := c.adapter.Upload(ctx, parent, localPath, g.report)
	if err != nil {
		return model.FileEntry{}, c.fail(ctx, "upload", err)
	}
	g.report(entry.Size)

	log.Debug().
		Str("action", "upload").
		Str("provider", c.provider).
		Str("id", entry.ID).
		Str("name", entry.Name).
		Int64("bytes", entry.Size).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("uploaded")
	return entry.WithOrigin(c.provider, c.account), nil
}

// Download streams entry into destDir/<entry.Name> and returns that path. The
// entry must be a file obtained from this client. On failure or cancellation
// no file with the target name is created or modified.
func (c *Client) Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error) {
	if err := c.checkReady("download"); err != nil {
		return "", err
	}
	if err := c.checkOrigin("download", entry); err != nil {
		return "", err
	}
	if entry.IsDirectory {
		return "", provider.Errorf(provider.InvalidArgument, "download", c.provider, "%s is a folder", entry)
	}
	st, err := os.Stat(destDir)
	if err != nil {
		return "", provider.E(provider.InvalidArgument, "download", c.provider, err)
	}
	if !st.IsDir() {
		return "", provider.Errorf(provider.InvalidArgument, "download", c.provider, "%q is not a directory", destDir)
	}

	start := time.Now()
	g := newProgressGuard(progress)
	path, err := c.adapter.Download(ctx, entry, destDir, g.report)
	if err != nil {
		return "", c.fail(ctx, "download", err)
	}
	g.report(entry.Size)

	log.Debug().
		Str("action", "download").
		Str("provider", c.provider).
		Str("id", entry.ID).
		Str("file", path).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("downloaded")
	return path, nil
}

// CreateFolder creates name under parent (the app root when nil). Existing
// folders with the same name are not checked.
func (c *Client) CreateFolder(ctx context.Context, parent *model.FileEntry, name string) (model.FileEntry, error) {
	parentID, err := c.parentID("create_folder", parent)
	if err != nil {
		return model.FileEntry{}, err
	}
	if !model.ValidName(name) {
		return model.FileEntry{}, provider.Errorf(provider.InvalidArgument, "create_folder", c.provider, "invalid folder name %q", name)
	}
	entry, err := c.adapter.CreateFolder(ctx, parentID, name)
	if err != nil {
		return model.FileEntry{}, c.fail(ctx, "create_folder", err)
	}
	log.Debug().
		Str("action", "create_folder").
		Str("provider", c.provider).
		Str("id", entry.ID).
		Str("name", name).
		Msg("folder created")
	return entry.WithOrigin(c.provider, c.account), nil
}

func (c *Client) checkReady(op string) error {
	if c == nil {
		return provider.Errorf(provider.InternalState, op, "", "nil client")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return provider.Errorf(provider.InternalState, op, c.provider, "app root folder not resolved")
	}
	return nil
}

func (c *Client) checkOrigin(op string, e model.FileEntry) error {
	if e.ID == "" {
		return provider.Errorf(provider.InvalidArgument, op, c.provider, "entry has no id")
	}
	if e.Provider != c.provider || e.Account != c.account {
		return provider.Errorf(provider.InvalidArgument, op, c.provider,
			"entry %s belongs to %q/%q, client is bound to %q/%q", e, e.Provider, e.Account, c.provider, c.account)
	}
	return nil
}

// parentID resolves folder to an adapter id, defaulting to the app root.
func (c *Client) parentID(op string, folder *model.FileEntry) (string, error) {
	if err := c.checkReady(op); err != nil {
		return "", err
	}
	if folder == nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.root.ID, nil
	}
	if err := c.checkOrigin(op, *folder); err != nil {
		return "", err
	}
	if !folder.IsDirectory {
		return "", provider.Errorf(provider.InvalidArgument, op, c.provider, "%s is not a folder", *folder)
	}
	return folder.ID, nil
}

// fail maps an adapter error to an *provider.Error. A cancelled ctx always
// yields Cancelled whatever the adapter reported.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) && !provider.IsCancelled(err) {
		return provider.E(provider.Cancelled, op, c.provider, err)
	}
	return provider.Wrap(op, c.provider, err, provider.Fatal)
}

// progressGuard forwards strictly increasing counts to sink, serialized.
type progressGuard struct {
	mu   sync.Mutex
	sink provider.ProgressFunc
	last int64
	sent bool
}

func newProgressGuard(sink provider.ProgressFunc) *progressGuard {
	return &progressGuard{sink: sink}
}

func (g *progressGuard) report(n int64) {
	if g.sink == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent && n <= g.last {
		return
	}
	g.last, g.sent = n, true
	g.sink(n)
}
