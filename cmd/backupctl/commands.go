package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/backup"
	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/provider/azure"
	"github.com/Chapsvision-dev/remote-backup/internal/provider/gdrive"
	"github.com/Chapsvision-dev/remote-backup/internal/provider/s3"
	"github.com/Chapsvision-dev/remote-backup/internal/restore"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
	"github.com/Chapsvision-dev/remote-backup/internal/state"
	"github.com/Chapsvision-dev/remote-backup/internal/storage"
)

// storageClient is the subset of *storage.Client the commands use.
type storageClient interface {
	Provider() string
	Account() string
	AppRoot() (model.FileEntry, error)
	List(ctx context.Context, folder *model.FileEntry) ([]model.FileEntry, error)
	CreateFolder(ctx context.Context, parent *model.FileEntry, name string) (model.FileEntry, error)
	Upload(ctx context.Context, folder *model.FileEntry, localPath string, progress provider.ProgressFunc) (model.FileEntry, error)
	Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error)
}

type command func(ctx context.Context, cfg config.Config, args []string) error

var commands = map[string]command{
	"login":   cmdLogin,
	"logout":  cmdLogout,
	"status":  cmdStatus,
	"list":    cmdList,
	"ls":      cmdList,
	"mkdir":   cmdMkdir,
	"select":  cmdSelect,
	"backup":  cmdBackup,
	"restore": cmdRestore,
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

// newBinding returns the session binding for cfg.Provider. Drive signs in
// interactively; Azure and S3 identities come from configured credentials.
func newBinding(cfg config.Config) (*session.Binding, error) {
	store := session.NewStore(cfg.SessionFile)
	switch cfg.Provider {
	case config.ProviderDrive:
		auth := &session.OAuth{
			Provider:  gdrive.Name,
			Config:    gdrive.OAuthConfig(cfg.Drive),
			RevokeURL: gdrive.RevokeURL,
			Identify:  gdrive.Identifier(cfg.Drive),
		}
		return session.NewBinding(gdrive.Name, []string{gdrive.Scope}, auth, store), nil
	case config.ProviderAzure:
		auth := &session.Static{Provider: azure.Name, Account: azure.AccountName(cfg.Azure), Scopes: []string{azure.Scope}}
		return session.NewBinding(azure.Name, []string{azure.Scope}, auth, store), nil
	case config.ProviderS3:
		auth := &session.Static{Provider: s3.Name, Account: s3.AccountName(cfg.S3), Scopes: []string{s3.Scope}}
		return session.NewBinding(s3.Name, []string{s3.Scope}, auth, store), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
}

func storedSession(cfg config.Config) (*session.Session, error) {
	b, err := newBinding(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := b.Session()
	if errors.Is(err, session.ErrNoSession) {
		return nil, fmt.Errorf("not signed in to %s, run \"backupctl login\": %w", cfg.Provider, err)
	}
	return sess, err
}

func openStorage(ctx context.Context, cfg config.Config, sess *session.Session) (storageClient, error) {
	c, err := storage.Open(ctx, cfg.Provider, cfg.ProviderConfig(), sess, storage.Options{AppFolderName: cfg.AppFolderName})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func connect(ctx context.Context, cfg config.Config) (storageClient, error) {
	sess, err := loadSession(cfg)
	if err != nil {
		return nil, err
	}
	return openClient(ctx, cfg, sess)
}

/* ------------------------------- session ------------------------------- */

func cmdLogin(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) > 0 {
		return usageErr("login takes no arguments")
	}
	b, err := newBinding(cfg)
	if err != nil {
		return err
	}
	flow, err := b.BeginSignIn(ctx)
	if err != nil {
		return err
	}

	var res session.Result
	if flow.AuthURL != "" {
		fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", flow.AuthURL)
		if res, err = awaitCallback(ctx, cfg.Drive.RedirectURL); err != nil {
			return err
		}
	}
	out := b.CompleteSignIn(ctx, flow, res)
	if !out.Success {
		return fmt.Errorf("sign-in failed: %s", out.Reason)
	}
	sess, err := b.Session()
	if err != nil {
		return err
	}
	fmt.Printf("Signed in to %s as %s\n", sess.Provider, sess.Account)
	return nil
}

func cmdLogout(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) > 0 {
		return usageErr("logout takes no arguments")
	}
	b, err := newBinding(cfg)
	if err != nil {
		return err
	}
	err = errors.Join(<-b.SignOut(ctx), state.NewStore(cfg.StateFile).Clear())
	if err != nil {
		return err
	}
	fmt.Printf("Signed out of %s\n", cfg.Provider)
	return nil
}

func cmdStatus(ctx context.Context, cfg config.Config, args []string) error {
	b, err := newBinding(cfg)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	fmt.Fprintf(tw, "provider:\t%s\n", cfg.Provider)
	sess, err := b.Session()
	if err != nil {
		fmt.Fprintf(tw, "account:\t(not signed in)\n")
		return nil
	}
	fmt.Fprintf(tw, "account:\t%s\n", sess.Account)
	fmt.Fprintf(tw, "scopes:\t%s\n", strings.Join(sess.Scopes, " "))
	fmt.Fprintf(tw, "authorized:\t%t\n", b.Authorized())

	sel, err := state.NewStore(cfg.StateFile).Folder()
	switch {
	case errors.Is(err, state.ErrNoFolder):
		fmt.Fprintf(tw, "folder:\t%s (app folder)\n", cfg.AppFolderName)
	case err != nil:
		fmt.Fprintf(tw, "folder:\t(unreadable selection: %v)\n", err)
	default:
		fmt.Fprintf(tw, "folder:\t%s\n", sel.Name)
	}
	return nil
}

/* ------------------------------- folders ------------------------------- */

func cmdList(ctx context.Context, cfg config.Config, args []string) error {
	long := false
	if len(args) > 0 && args[0] == "-l" {
		long, args = true, args[1:]
	}
	if len(args) > 1 {
		return usageErr("list takes at most one folder")
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	folder, err := resolveFolder(ctx, c, cfg, argAt(args, 0))
	if err != nil {
		return err
	}
	entries, err := c.List(ctx, folder)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()
	for _, e := range entries {
		kind, size := "file", humanize.Bytes(uint64(e.Size))
		if e.IsDirectory {
			kind, size = "dir", "-"
		}
		if long {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, size, e.Name, e.Encode())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", kind, size, e.Name)
	}
	return nil
}

func cmdMkdir(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageErr("mkdir needs a name and an optional parent")
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	parent, err := resolveFolder(ctx, c, cfg, argAt(args, 1))
	if err != nil {
		return err
	}
	e, err := c.CreateFolder(ctx, parent, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\n", e.Name)
	return nil
}

func cmdSelect(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) != 1 {
		return usageErr("select needs a folder, or - to reset")
	}
	st := state.NewStore(cfg.StateFile)
	if args[0] == "-" {
		if err := st.Clear(); err != nil {
			return err
		}
		fmt.Printf("Selected %s (app folder)\n", cfg.AppFolderName)
		return nil
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	folder, err := resolveFolder(ctx, c, cfg, args[0])
	if err != nil {
		return err
	}
	if folder == nil {
		root, err := c.AppRoot()
		if err != nil {
			return err
		}
		folder = &root
	}
	if err := st.SetFolder(*folder); err != nil {
		return err
	}
	fmt.Printf("Selected %s\n", folder.Name)
	return nil
}

// selectedFolder returns the persisted selection, or nil for the app folder.
// A selection made under another account is ignored.
func selectedFolder(c storageClient, cfg config.Config) (*model.FileEntry, error) {
	e, err := state.NewStore(cfg.StateFile).Folder()
	switch {
	case errors.Is(err, state.ErrNoFolder):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if e.Provider != c.Provider() || e.Account != c.Account() {
		log.Warn().Str("action", "select").Str("folder", e.Name).Str("provider", e.Provider).
			Msg("selected folder belongs to another account, using the app folder")
		return nil, nil
	}
	return &e, nil
}

// resolveFolder maps a CLI folder argument to an entry: empty means the
// selected folder, an encoded entry is decoded, anything else is a child name
// of the selected folder.
func resolveFolder(ctx context.Context, c storageClient, cfg config.Config, arg string) (*model.FileEntry, error) {
	base, err := selectedFolder(c, cfg)
	if err != nil {
		return nil, err
	}
	if arg == "" {
		return base, nil
	}
	if strings.HasPrefix(arg, "{") {
		e, err := model.Decode(arg)
		if err != nil {
			return nil, err
		}
		if !e.IsDirectory {
			return nil, fmt.Errorf("%s is not a folder", e.Name)
		}
		return &e, nil
	}
	entries, err := c.List(ctx, base)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDirectory && e.Name == arg {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("folder %q not found", arg)
}

/* ------------------------------- transfer ------------------------------ */

func cmdBackup(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return usageErr("backup needs at least one file")
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	folder, err := selectedFolder(c, cfg)
	if err != nil {
		return err
	}

	opts := backup.Options{
		Files:       args,
		Folder:      folder,
		Concurrency: cfg.BackupConcurrency,
		Retry:       cfg.RetryOptions(),
	}
	if p := newProgress(); p != nil {
		opts.Progress = p.report
		defer p.done()
	}
	res, err := backupRun(ctx, c, opts)
	if err != nil {
		return err
	}
	for _, e := range res.Uploaded {
		fmt.Printf("Uploaded %s (%s)\n", e.Name, humanize.Bytes(uint64(e.Size)))
	}
	fmt.Printf("%d file(s), %s in %s\n", len(res.Uploaded), humanize.Bytes(uint64(res.Bytes)), res.Elapsed.Round(time.Millisecond))
	return nil
}

func cmdRestore(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageErr("restore needs a name or an encoded entry, and an optional destination")
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	folder, err := selectedFolder(c, cfg)
	if err != nil {
		return err
	}

	opts := restore.Options{
		Entry:   args[0],
		Folder:  folder,
		DestDir: argAt(args, 1),
		Retry:   cfg.RetryOptions(),
	}
	if p := newProgress(); p != nil {
		opts.Progress = func(n, total int64) { p.report("download", n, total) }
		defer p.done()
	}
	path, err := restoreRun(ctx, c, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Restored to %s\n", path)
	return nil
}

func argAt(args []string, i int) string {
	if len(args) > i {
		return strings.TrimSpace(args[i])
	}
	return ""
}

// progress renders transfer counters on stderr when it is a terminal.
type progress struct {
	mu   sync.Mutex
	used bool
}

func newProgress() *progress {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return &progress{}
}

func (p *progress) report(label string, n, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used = true
	fmt.Fprintf(os.Stderr, "\r\033[K%s %s / %s", label, humanize.Bytes(uint64(n)), humanize.Bytes(uint64(total)))
}

func (p *progress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used {
		fmt.Fprintln(os.Stderr)
	}
}
