// Package mock provides an in-memory provider.Adapter for tests and dry runs.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
	"github.com/Chapsvision-dev/remote-backup/internal/transfer"
)

const (
	Name   = "mock"
	RootID = "root"
	Scope  = "mock.readwrite"
)

func init() {
	provider.Register(Name, []string{Scope}, func(ctx context.Context, cfg any, sess *session.Session) (provider.Adapter, error) {
		switch a := cfg.(type) {
		case *Adapter:
			return a, nil
		case *Finding:
			return a, nil
		default:
			return nil, fmt.Errorf("mock: unexpected config %T", cfg)
		}
	})
}

type node struct {
	entry   model.FileEntry
	parent  string
	content []byte
	trashed bool
}

// Adapter keeps a folder tree in memory.
type Adapter struct {
	mu       sync.Mutex
	nodes    map[string]*node
	children map[string][]string

	// Error simulation
	ListError         error
	UploadError       error
	DownloadError     error
	CreateFolderError error
	FindError         error

	// Streaming pace. Zero ChunkSize streams in one read.
	ChunkSize  int
	ChunkDelay time.Duration

	// Call tracking
	ListCalls         int
	UploadCalls       int
	DownloadCalls     int
	CreateFolderCalls int
	FindCalls         int
}

// New creates an empty tree containing only the root folder.
func New() *Adapter {
	a := &Adapter{
		nodes:    map[string]*node{},
		children: map[string][]string{},
	}
	a.nodes[RootID] = &node{entry: model.NewFolder(RootID, "")}
	return a
}

// AddFolder inserts a folder under parentID. An empty id is replaced by a fresh uuid.
func (a *Adapter) AddFolder(parentID, id, name string) model.FileEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insert(parentID, model.NewFolder(a.newID(id), name), nil)
}

// AddFile inserts a file under parentID.
func (a *Adapter) AddFile(parentID, id, name string, content []byte) model.FileEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insert(parentID, model.NewFile(a.newID(id), name, int64(len(content))), bytes.Clone(content))
}

// Trash marks id as trashed; trashed objects are hidden from List and FindFolder.
func (a *Adapter) Trash(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.nodes[id]; ok {
		n.trashed = true
	}
}

// Content returns a copy of a file's bytes.
func (a *Adapter) Content(id string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.nodes[id]
	if !ok || n.entry.IsDirectory {
		return nil, false
	}
	return bytes.Clone(n.content), true
}

// Parent returns the parent id of id, or "" when unknown.
func (a *Adapter) Parent(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.nodes[id]; ok {
		return n.parent
	}
	return ""
}

// CountFolders returns how many non-trashed folders named name exist under parentID.
func (a *Adapter) CountFolders(parentID, name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, id := range a.children[parentID] {
		c := a.nodes[id]
		if c.entry.IsDirectory && !c.trashed && c.entry.Name == name {
			n++
		}
	}
	return n
}

// TotalCalls sums every remote operation counter.
func (a *Adapter) TotalCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ListCalls + a.UploadCalls + a.DownloadCalls + a.CreateFolderCalls + a.FindCalls
}

func (a *Adapter) newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (a *Adapter) insert(parentID string, e model.FileEntry, content []byte) model.FileEntry {
	a.nodes[e.ID] = &node{entry: e, parent: parentID, content: content}
	a.children[parentID] = append(a.children[parentID], e.ID)
	return e
}

func (a *Adapter) folder(op, id string) error {
	n, ok := a.nodes[id]
	if !ok || n.trashed {
		return provider.Errorf(provider.Fatal, op, Name, "folder %q not found", id)
	}
	if !n.entry.IsDirectory {
		return provider.Errorf(provider.Fatal, op, Name, "%q is not a folder", id)
	}
	return nil
}

// ============ ADAPTER ============

func (a *Adapter) Name() string             { return Name }
func (a *Adapter) RootID() string           { return RootID }
func (a *Adapter) RequiredScopes() []string { return []string{Scope} }

func (a *Adapter) List(ctx context.Context, parentID string) ([]model.FileEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ListCalls++
	if a.ListError != nil {
		return nil, provider.Wrap("list", Name, a.ListError, provider.Fatal)
	}
	if err := ctx.Err(); err != nil {
		return nil, provider.Wrap("list", Name, err, provider.Fatal)
	}
	if err := a.folder("list", parentID); err != nil {
		return nil, err
	}
	out := []model.FileEntry{}
	for _, id := range a.children[parentID] {
		if n := a.nodes[id]; !n.trashed {
			out = append(out, n.entry)
		}
	}
	return out, nil
}

func (a *Adapter) Upload(ctx context.Context, parentID, localPath string, progress provider.ProgressFunc) (model.FileEntry, error) {
	a.mu.Lock()
	a.UploadCalls++
	injected := a.UploadError
	ferr := a.folder("upload", parentID)
	a.mu.Unlock()

	if injected != nil {
		return model.FileEntry{}, provider.Wrap("upload", Name, injected, provider.Fatal)
	}
	if ferr != nil {
		return model.FileEntry{}, ferr
	}

	f, err := os.Open(localPath)
	if err != nil {
		return model.FileEntry{}, provider.E(provider.InvalidArgument, "upload", Name, err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	src := transfer.NewReader(ctx, a.paced(ctx, f), progress)
	if _, err := io.CopyBuffer(struct{ io.Writer }{&buf}, src, make([]byte, 32*1024)); err != nil {
		return model.FileEntry{}, provider.Wrap("upload", Name, err, provider.Recoverable)
	}
	data := buf.Bytes()

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insert(parentID, model.NewFile(uuid.NewString(), filepath.Base(localPath), int64(len(data))), data), nil
}

func (a *Adapter) Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error) {
	a.mu.Lock()
	a.DownloadCalls++
	injected := a.DownloadError
	n, ok := a.nodes[entry.ID]
	var content []byte
	if ok && (n.trashed || n.entry.IsDirectory) {
		ok = false
	}
	if ok {
		content = bytes.Clone(n.content)
	}
	a.mu.Unlock()

	if injected != nil {
		return "", provider.Wrap("download", Name, injected, provider.Fatal)
	}
	if !ok {
		return "", provider.Errorf(provider.Fatal, "download", Name, "file %q not found", entry.ID)
	}

	path, err := transfer.WriteFile(ctx, destDir, entry.Name, a.paced(ctx, bytes.NewReader(content)), progress)
	if err != nil {
		return "", provider.Wrap("download", Name, err, provider.Recoverable)
	}
	return path, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, parentID, name string) (model.FileEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CreateFolderCalls++
	if a.CreateFolderError != nil {
		return model.FileEntry{}, provider.Wrap("create_folder", Name, a.CreateFolderError, provider.Fatal)
	}
	if err := a.folder("create_folder", parentID); err != nil {
		return model.FileEntry{}, err
	}
	return a.insert(parentID, model.NewFolder(uuid.NewString(), name), nil), nil
}

// Finding is an Adapter that also implements provider.Finder.
type Finding struct {
	*Adapter
}

// WithFinder exposes the single-query lookup path on a.
func WithFinder(a *Adapter) *Finding { return &Finding{Adapter: a} }

func (f *Finding) FindFolder(ctx context.Context, parentID, name string) (model.FileEntry, bool, error) {
	a := f.Adapter
	a.mu.Lock()
	defer a.mu.Unlock()
	a.FindCalls++
	if a.FindError != nil {
		return model.FileEntry{}, false, provider.Wrap("find_folder", Name, a.FindError, provider.Fatal)
	}
	if err := a.folder("find_folder", parentID); err != nil {
		return model.FileEntry{}, false, err
	}
	for _, id := range a.children[parentID] {
		n := a.nodes[id]
		if n.entry.IsDirectory && !n.trashed && n.entry.Name == name {
			return n.entry, true, nil
		}
	}
	return model.FileEntry{}, false, nil
}

var _ provider.Finder = (*Finding)(nil)

// paced splits r into ChunkSize reads separated by ChunkDelay.
func (a *Adapter) paced(ctx context.Context, r io.Reader) io.Reader {
	if a.ChunkSize <= 0 {
		return r
	}
	return &pacedReader{ctx: ctx, r: r, size: a.ChunkSize, delay: a.ChunkDelay}
}

type pacedReader struct {
	ctx   context.Context
	r     io.Reader
	size  int
	delay time.Duration
	began bool
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if p.began && p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-p.ctx.Done():
			t.Stop()
			return 0, p.ctx.Err()
		case <-t.C:
		}
	}
	p.began = true
	if len(b) > p.size {
		b = b[:p.size]
	}
	return p.r.Read(b)
}
