package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/remote-backup/internal/backup"
	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider/mock"
	"github.com/Chapsvision-dev/remote-backup/internal/restore"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
	"github.com/Chapsvision-dev/remote-backup/internal/state"
	"github.com/Chapsvision-dev/remote-backup/internal/storage"
)

/* ----------------------------- test harness ----------------------------- */

type exitPanic struct{ code int }

func patchExit(t *testing.T) {
	t.Helper()
	prev := exit
	exit = func(code int) { panic(exitPanic{code}) }
	t.Cleanup(func() { exit = prev })
}

func mustExitCode(t *testing.T, fn func()) (code int) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected os.Exit interception, got no panic")
		}
		if ep, ok := r.(exitPanic); ok {
			code = ep.code
			return
		}
		t.Fatalf("unexpected panic: %#v", r)
	}()
	fn()
	return 0
}

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	prev := os.Args
	os.Args = append([]string{prev[0]}, args...)
	t.Cleanup(func() { os.Args = prev })
}

func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	var buf bytes.Buffer
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}

// run invokes main with args and returns stdout. A non-zero exit fails the test.
func run(t *testing.T, args ...string) string {
	t.Helper()
	withArgs(t, args...)
	stop := captureStdout(t)
	main()
	return stop()
}

func resetSeams() {
	loadConfig = config.Load
	loadSession = storedSession
	openClient = openStorage
	backupRun = backup.Run
	restoreRun = restore.Run
	awaitCallback = listenForCallback
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Provider:          config.ProviderAzure,
		AppFolderName:     "MoneyWallet",
		SessionFile:       filepath.Join(dir, "session.json"),
		StateFile:         filepath.Join(dir, "state.json"),
		Azure:             config.AzureConfig{Account: "acct", Container: "backups"},
		BackupConcurrency: 2,
		RetryMaxAttempts:  1,
	}
}

const account = "me@example.com"

// useMock points the seams at an in-memory store holding an app folder "app"
// with one file and one subfolder.
func useMock(t *testing.T, cfg config.Config) *mock.Adapter {
	t.Helper()
	resetSeams()
	t.Cleanup(resetSeams)
	patchExit(t)

	a := mock.New()
	a.AddFolder(mock.RootID, "app", cfg.AppFolderName)
	a.AddFile("app", "f1", "wallet.zip", make([]byte, 2048))
	a.AddFolder("app", "d1", "2024")

	loadConfig = func() (config.Config, error) { return cfg, nil }
	loadSession = func(config.Config) (*session.Session, error) {
		return &session.Session{Provider: mock.Name, Account: account, Scopes: []string{mock.Scope}}, nil
	}
	openClient = func(ctx context.Context, _ config.Config, sess *session.Session) (storageClient, error) {
		c, err := storage.New(ctx, sess, a, storage.Options{AppFolderName: cfg.AppFolderName})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return a
}

/* --------------------------------- tests -------------------------------- */

func TestUsage_NoArgs(t *testing.T) {
	resetSeams()
	patchExit(t)
	withArgs(t)

	stop := captureStdout(t)
	code := mustExitCode(t, func() { main() })
	out := stop()

	assert.Equal(t, 2, code)
	assert.Contains(t, out, "Usage:")
}

func TestUsage_UnknownCommandAndBadArgs(t *testing.T) {
	cfg := testConfig(t)
	useMock(t, cfg)

	for _, args := range [][]string{{"frobnicate"}, {"backup"}, {"restore"}, {"mkdir"}, {"select"}, {"list", "a", "b"}} {
		withArgs(t, args...)
		stop := captureStdout(t)
		code := mustExitCode(t, func() { main() })
		_ = stop()
		assert.Equal(t, 2, code, "%v", args)
	}
}

func TestVersion(t *testing.T) {
	resetSeams()
	patchExit(t)
	withArgs(t, "--version")

	stop := captureStdout(t)
	code := mustExitCode(t, func() { main() })
	out := stop()

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "backupctl ")
}

func TestConfigError(t *testing.T) {
	resetSeams()
	t.Cleanup(resetSeams)
	patchExit(t)
	withArgs(t, "list")
	loadConfig = func() (config.Config, error) { return config.Config{}, errors.New("bad env") }

	assert.Equal(t, 1, mustExitCode(t, func() { main() }))
}

func TestList_NotSignedIn(t *testing.T) {
	resetSeams()
	t.Cleanup(resetSeams)
	patchExit(t)
	cfg := testConfig(t)
	loadConfig = func() (config.Config, error) { return cfg, nil }
	withArgs(t, "list")

	assert.Equal(t, 1, mustExitCode(t, func() { main() }))
}

func TestList(t *testing.T) {
	useMock(t, testConfig(t))

	out := run(t, "list")
	assert.Contains(t, out, "wallet.zip")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "2024")

	out = run(t, "list", "-l")
	assert.Contains(t, out, `"id":"f1"`)
}

func TestSelectThenList(t *testing.T) {
	cfg := testConfig(t)
	a := useMock(t, cfg)
	a.AddFile("d1", "f2", "inner.zip", []byte("x"))

	out := run(t, "select", "2024")
	assert.Contains(t, out, "Selected 2024")

	sel, err := state.NewStore(cfg.StateFile).Folder()
	require.NoError(t, err)
	assert.Equal(t, "d1", sel.ID)
	assert.Equal(t, mock.Name, sel.Provider)

	out = run(t, "list")
	assert.Contains(t, out, "inner.zip")
	assert.NotContains(t, out, "wallet.zip")

	run(t, "select", "-")
	_, err = state.NewStore(cfg.StateFile).Folder()
	assert.ErrorIs(t, err, state.ErrNoFolder)
}

func TestSelect_UnknownFolder(t *testing.T) {
	useMock(t, testConfig(t))
	withArgs(t, "select", "nope")
	assert.Equal(t, 1, mustExitCode(t, func() { main() }))
}

func TestMkdir(t *testing.T) {
	a := useMock(t, testConfig(t))

	out := run(t, "mkdir", "2025")
	assert.Contains(t, out, "Created 2025")
	assert.Equal(t, 1, a.CountFolders("app", "2025"))

	out = run(t, "mkdir", "jan", "2025")
	assert.Contains(t, out, "Created jan")
	assert.Equal(t, 0, a.CountFolders("app", "jan"))
}

func TestBackup_PassesOptions(t *testing.T) {
	cfg := testConfig(t)
	useMock(t, cfg)

	var got backup.Options
	backupRun = func(_ context.Context, _ backup.Uploader, opts backup.Options) (backup.Result, error) {
		got = opts
		return backup.Result{Uploaded: []model.FileEntry{model.NewFile("n", "a.zip", 1)}, Bytes: 1}, nil
	}

	out := run(t, "backup", "a.zip", "b.zip")
	assert.Equal(t, []string{"a.zip", "b.zip"}, got.Files)
	assert.Equal(t, 2, got.Concurrency)
	assert.Nil(t, got.Folder)
	assert.Equal(t, 1, got.Retry.MaxAttempts)
	assert.Contains(t, out, "Uploaded a.zip")
}

func TestBackup_UploadsIntoSelectedFolder(t *testing.T) {
	cfg := testConfig(t)
	a := useMock(t, cfg)
	run(t, "select", "2024")

	src := filepath.Join(t.TempDir(), "new.zip")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	out := run(t, "backup", src)
	assert.Contains(t, out, "Uploaded new.zip")

	entries, err := a.List(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, ok := a.Content(entries[0].ID)
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
}

func TestBackup_Failure(t *testing.T) {
	useMock(t, testConfig(t))
	backupRun = func(context.Context, backup.Uploader, backup.Options) (backup.Result, error) {
		return backup.Result{}, errors.New("stop")
	}
	withArgs(t, "backup", "a.zip")
	assert.Equal(t, 1, mustExitCode(t, func() { main() }))
}

func TestRestore(t *testing.T) {
	useMock(t, testConfig(t))
	dest := t.TempDir()

	out := run(t, "restore", "wallet.zip", dest)
	assert.Contains(t, out, "Restored to")
	assert.FileExists(t, filepath.Join(dest, "wallet.zip"))
}

func TestRestore_IgnoresForeignSelection(t *testing.T) {
	cfg := testConfig(t)
	useMock(t, cfg)
	foreign := model.NewFolder("X", "other").WithOrigin("gdrive", "someone@example.com")
	require.NoError(t, state.NewStore(cfg.StateFile).SetFolder(foreign))

	var got restore.Options
	restoreRun = func(_ context.Context, _ restore.Client, opts restore.Options) (string, error) {
		got = opts
		return "/tmp/x", nil
	}
	run(t, "restore", "wallet.zip")
	assert.Nil(t, got.Folder)
	assert.Equal(t, "wallet.zip", got.Entry)
	assert.Empty(t, got.DestDir)
}

func TestLoginStatusLogout_StaticCredentials(t *testing.T) {
	resetSeams()
	t.Cleanup(resetSeams)
	patchExit(t)
	cfg := testConfig(t)
	loadConfig = func() (config.Config, error) { return cfg, nil }

	out := run(t, "login")
	assert.Contains(t, out, "Signed in to azure as acct/backups")
	assert.FileExists(t, cfg.SessionFile)

	out = run(t, "status")
	assert.Contains(t, out, "acct/backups")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "MoneyWallet (app folder)")

	out = run(t, "logout")
	assert.Contains(t, out, "Signed out of azure")
	assert.NoFileExists(t, cfg.SessionFile)

	out = run(t, "status")
	assert.Contains(t, out, "not signed in")
}

func TestLogin_OAuthStateMismatch(t *testing.T) {
	resetSeams()
	t.Cleanup(resetSeams)
	patchExit(t)
	cfg := testConfig(t)
	cfg.Provider = config.ProviderDrive
	cfg.Drive = config.DriveConfig{ClientID: "cid", RedirectURL: "http://127.0.0.1:8085/callback"}
	loadConfig = func() (config.Config, error) { return cfg, nil }

	var redirect string
	awaitCallback = func(_ context.Context, u string) (session.Result, error) {
		redirect = u
		return session.Result{Code: "code", State: "forged"}, nil
	}

	withArgs(t, "login")
	stop := captureStdout(t)
	code := mustExitCode(t, func() { main() })
	out := stop()

	assert.Equal(t, 1, code)
	assert.Equal(t, cfg.Drive.RedirectURL, redirect)
	assert.Contains(t, out, "accounts.google.com")
	assert.NoFileExists(t, cfg.SessionFile)
}

func TestListenForCallback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	go func() {
		for range 100 {
			resp, err := http.Get("http://" + addr + "/callback?code=abc&state=s1")
			if err == nil {
				_ = resp.Body.Close()
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := listenForCallback(ctx, "http://"+addr+"/callback")
	require.NoError(t, err)
	assert.Equal(t, session.Result{Code: "abc", State: "s1"}, res)
}

func TestListenForCallback_RejectsNonLoopbackURL(t *testing.T) {
	_, err := listenForCallback(context.Background(), "urn:ietf:wg:oauth:2.0:oob")
	assert.Error(t, err)
}

func TestWithSignals_CancelsOnInterrupt(t *testing.T) {
	ctx := withSignals(context.Background())

	// Send SIGINT after a short delay to ensure signal.Notify has been registered.
	time.AfterFunc(100*time.Millisecond, func() {
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Signal(os.Interrupt)
	})

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after os.Interrupt")
	}

	signal.Reset(os.Interrupt)
}
