package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/backup"
	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/logx"
	"github.com/Chapsvision-dev/remote-backup/internal/restore"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
	"github.com/Chapsvision-dev/remote-backup/internal/version"
)

// Test seams, overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig    func() (config.Config, error)                                                 = config.Load
	loadSession   func(config.Config) (*session.Session, error)                                 = storedSession
	openClient    func(context.Context, config.Config, *session.Session) (storageClient, error) = openStorage
	backupRun     func(context.Context, backup.Uploader, backup.Options) (backup.Result, error) = backup.Run
	restoreRun    func(context.Context, restore.Client, restore.Options) (string, error)        = restore.Run
	awaitCallback func(ctx context.Context, redirectURL string) (session.Result, error)         = listenForCallback
	exit          func(int)                                                                     = os.Exit
)

const usage = `
Usage:
  backupctl login
  backupctl logout
  backupctl status
  backupctl list    [-l] [folder]
  backupctl mkdir   <name> [parent]
  backupctl select  <folder | ->
  backupctl backup  <file>...
  backupctl restore <name | entry> [destDir]
  backupctl version | --version | -v
  backupctl help    | --help    | -h

Notes:
  - Provider is selected with STORAGE_PROVIDER (gdrive, azure, s3; default: gdrive).
  - Folders are names inside the selected folder (or the app folder, APP_FOLDER_NAME),
    or encoded entries as printed by "list -l".
  - Drive sign-in waits for the browser redirect on GDRIVE_REDIRECT_URL.
`

// errUsage marks errors that exit with code 2.
var errUsage = errors.New("usage")

// main wires CLI -> config -> session -> storage client -> command.
// Exit codes: 0 success, 1 runtime error, 2 usage error.
func main() {
	_ = godotenv.Load() // best-effort
	logx.InitFromEnv()

	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Print(usage)
		exit(2)
		return
	}
	action := strings.ToLower(args[0])

	switch action {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		exit(0)
		return
	case "help", "--help", "-h":
		fmt.Print(usage)
		exit(0)
		return
	}

	cmd, ok := commands[action]
	if !ok {
		fmt.Print(usage)
		exit(2)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("config error")
		exit(1)
		return
	}

	ctx := withSignals(context.Background())
	if err := cmd(ctx, cfg, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Print(usage)
			exit(2)
			return
		}
		log.Error().Err(err).Str("action", action).Str("provider", cfg.Provider).Msg(action + " failed")
		exit(1)
		return
	}
}

func withSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx
}
