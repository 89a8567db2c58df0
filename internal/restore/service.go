// Package restore downloads a previously uploaded backup into a local directory.
package restore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/retry"
)

var (
	ErrNotFound  = errors.New("restore: no such backup")
	ErrAmbiguous = errors.New("restore: several backups share this name")
)

// Client is the part of storage.Client the workflow needs.
type Client interface {
	List(ctx context.Context, folder *model.FileEntry) ([]model.FileEntry, error)
	Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error)
}

// Options controls the restore workflow.
type Options struct {
	// Entry is either a file name inside Folder or an encoded FileEntry.
	Entry string
	// Folder is searched when Entry is a name; nil means the app root folder.
	Folder *model.FileEntry
	// DestDir receives the file (default: current directory).
	DestDir string
	Retry   retry.Options
	// Progress, if set, receives cumulative and expected byte counts.
	Progress func(transferred, total int64)
}

// Run resolves the entry and downloads it, returning the local path.
func Run(ctx context.Context, c Client, opt Options) (string, error) {
	ref := strings.TrimSpace(opt.Entry)
	if ref == "" {
		return "", errors.New("restore: entry is empty (provide a file name or an encoded entry)")
	}
	dest := strings.TrimSpace(opt.DestDir)
	if dest == "" {
		dest = "."
	}
	dest = filepath.Clean(dest)

	entry, err := resolve(ctx, c, ref, opt)
	if err != nil {
		return "", err
	}

	var progress provider.ProgressFunc
	if opt.Progress != nil {
		progress = func(n int64) { opt.Progress(n, entry.Size) }
	}

	start := time.Now()
	attempt := 0
	log.Info().
		Str("action", "download").
		Str("id", entry.ID).
		Str("name", entry.Name).
		Str("local", dest).
		Msg("starting download")
	path, err := retry.Value(ctx, opt.Retry, provider.IsRecoverable, func(ctx context.Context) (string, error) {
		attempt++
		return c.Download(ctx, entry, dest, progress)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("action", "download").
			Str("id", entry.ID).
			Int("attempts", attempt).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("download failed")
		return "", fmt.Errorf("download %s: %w", entry.Name, err)
	}
	log.Info().
		Str("action", "download").
		Str("id", entry.ID).
		Str("local", path).
		Int("attempts", attempt).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("download OK")
	return path, nil
}

func resolve(ctx context.Context, c Client, ref string, opt Options) (model.FileEntry, error) {
	if strings.HasPrefix(ref, "{") {
		e, err := model.Decode(ref)
		if err != nil {
			return model.FileEntry{}, err
		}
		return e, nil
	}

	entries, err := retry.Value(ctx, opt.Retry, provider.IsRecoverable, func(ctx context.Context) ([]model.FileEntry, error) {
		return c.List(ctx, opt.Folder)
	})
	if err != nil {
		return model.FileEntry{}, fmt.Errorf("list: %w", err)
	}
	var match []model.FileEntry
	for _, e := range entries {
		if !e.IsDirectory && e.Name == ref {
			match = append(match, e)
		}
	}
	switch len(match) {
	case 0:
		return model.FileEntry{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
	case 1:
		return match[0], nil
	default:
		return model.FileEntry{}, fmt.Errorf("%w: %q (%d matches, pass an encoded entry)", ErrAmbiguous, ref, len(match))
	}
}
