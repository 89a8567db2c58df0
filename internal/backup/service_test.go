package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/provider/mock"
	"github.com/Chapsvision-dev/remote-backup/internal/retry"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
	"github.com/Chapsvision-dev/remote-backup/internal/storage"
)

var fastRetry = retry.Options{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

func newClient(t *testing.T, a *mock.Adapter) *storage.Client {
	t.Helper()
	sess := &session.Session{Provider: mock.Name, Account: "me@example.com", Scopes: []string{mock.Scope}}
	c, err := storage.New(context.Background(), sess, a, storage.Options{})
	require.NoError(t, err)
	return c
}

func writeFiles(t *testing.T, sizes map[string]int) []string {
	t.Helper()
	dir := t.TempDir()
	var out []string
	for name, n := range sizes {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, make([]byte, n), 0o600))
		out = append(out, p)
	}
	return out
}

// flaky fails the first n uploads with a recoverable error.
type flaky struct {
	Uploader
	n     int32
	calls int32
}

func (f *flaky) Upload(ctx context.Context, folder *model.FileEntry, localPath string, progress provider.ProgressFunc) (model.FileEntry, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.n {
		return model.FileEntry{}, provider.Errorf(provider.Recoverable, "upload", mock.Name, "503")
	}
	return f.Uploader.Upload(ctx, folder, localPath, progress)
}

func TestRun_UploadsAllFiles(t *testing.T) {
	a := mock.New()
	c := newClient(t, a)
	files := writeFiles(t, map[string]int{"a.zip": 10, "b.zip": 20, "c.zip": 30})

	var mu sync.Mutex
	last := map[string]int64{}
	res, err := Run(context.Background(), c, Options{
		Files:       files,
		Concurrency: 2,
		Progress: func(file string, n, total int64) {
			mu.Lock()
			defer mu.Unlock()
			last[file] = n
			assert.LessOrEqual(t, n, total)
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Uploaded, 3)
	assert.Equal(t, int64(60), res.Bytes)

	root, err := c.AppRoot()
	require.NoError(t, err)
	for i, e := range res.Uploaded {
		assert.Equal(t, filepath.Base(files[i]), e.Name)
		assert.Equal(t, root.ID, a.Parent(e.ID))
		assert.Equal(t, e.Size, last[files[i]])
	}
}

func TestRun_RetriesRecoverable(t *testing.T) {
	c := newClient(t, mock.New())
	up := &flaky{Uploader: c, n: 2}

	res, err := Run(context.Background(), up, Options{Files: writeFiles(t, map[string]int{"a.zip": 4}), Retry: fastRetry})
	require.NoError(t, err)
	assert.Len(t, res.Uploaded, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&up.calls))
}

func TestRun_FatalIsNotRetried(t *testing.T) {
	a := mock.New()
	c := newClient(t, a)
	a.UploadError = errors.New("quota exceeded")

	_, err := Run(context.Background(), c, Options{Files: writeFiles(t, map[string]int{"a.zip": 4}), Retry: fastRetry})
	require.Error(t, err)
	assert.True(t, provider.IsFatal(err))
	assert.Equal(t, 1, a.UploadCalls)
}

func TestRun_RejectsBadInput(t *testing.T) {
	c := newClient(t, mock.New())
	ctx := context.Background()

	_, err := Run(ctx, c, Options{})
	assert.Error(t, err)

	_, err = Run(ctx, c, Options{Files: []string{filepath.Join(t.TempDir(), "missing.zip")}})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Run(ctx, c, Options{Files: []string{t.TempDir()}})
	assert.ErrorContains(t, err, "not a regular file")

	d1, d2 := t.TempDir(), t.TempDir()
	for _, d := range []string{d1, d2} {
		require.NoError(t, os.WriteFile(filepath.Join(d, "same.zip"), nil, 0o600))
	}
	_, err = Run(ctx, c, Options{Files: []string{filepath.Join(d1, "same.zip"), filepath.Join(d2, "same.zip")}})
	assert.ErrorContains(t, err, "share the remote name")
}

func TestRun_CustomFolder(t *testing.T) {
	a := mock.New()
	c := newClient(t, a)
	root, err := c.AppRoot()
	require.NoError(t, err)
	sub, err := c.CreateFolder(context.Background(), &root, "2024")
	require.NoError(t, err)

	res, err := Run(context.Background(), c, Options{Files: writeFiles(t, map[string]int{"a.zip": 1}), Folder: &sub})
	require.NoError(t, err)
	assert.Equal(t, sub.ID, a.Parent(res.Uploaded[0].ID))
}
