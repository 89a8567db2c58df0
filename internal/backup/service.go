// Package backup uploads local files into a remote folder through the storage
// client, retrying transient failures.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/retry"
)

// Uploader is the part of storage.Client the workflow needs.
type Uploader interface {
	Upload(ctx context.Context, folder *model.FileEntry, localPath string, progress provider.ProgressFunc) (model.FileEntry, error)
}

// Options controls a backup run.
type Options struct {
	// Files are the local files to upload. Each is stored under its base name.
	Files []string
	// Folder is the destination; nil means the app root folder.
	Folder *model.FileEntry
	// Concurrency bounds parallel uploads (default 1).
	Concurrency int
	// Retry governs re-attempts of recoverable failures.
	Retry retry.Options
	// Progress, if set, receives per-file byte counts. It may be called from several goroutines.
	Progress func(file string, transferred, total int64)
}

// Result lists the uploaded entries in the order of Options.Files.
type Result struct {
	Uploaded []model.FileEntry
	Bytes    int64
	Elapsed  time.Duration
}

// Run uploads every file. The first failure cancels the remaining uploads.
func Run(ctx context.Context, up Uploader, opt Options) (Result, error) {
	var res Result
	if len(opt.Files) == 0 {
		return res, errors.New("backup: no files given")
	}

	files := make([]string, len(opt.Files))
	sizes := make([]int64, len(opt.Files))
	seen := map[string]string{}
	for i, f := range opt.Files {
		f = strings.TrimSpace(f)
		st, err := os.Stat(f)
		if err != nil {
			return res, fmt.Errorf("backup: %w", err)
		}
		if !st.Mode().IsRegular() {
			return res, fmt.Errorf("backup: %q is not a regular file", f)
		}
		base := filepath.Base(f)
		if prev, dup := seen[base]; dup {
			return res, fmt.Errorf("backup: %q and %q would share the remote name %q", prev, f, base)
		}
		seen[base] = f
		files[i] = f
		sizes[i] = st.Size()
	}

	limit := opt.Concurrency
	if limit < 1 {
		limit = 1
	}

	start := time.Now()
	res.Uploaded = make([]model.FileEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, file := range files {
		g.Go(func() error {
			fileStart := time.Now()
			attempt := 0
			var progress provider.ProgressFunc
			if opt.Progress != nil {
				progress = func(n int64) { opt.Progress(file, n, sizes[i]) }
			}

			log.Info().Str("action", "backup_upload").Str("file", file).Int64("bytes", sizes[i]).Msg("starting upload")
			entry, err := retry.Value(gctx, opt.Retry, provider.IsRecoverable, func(ctx context.Context) (model.FileEntry, error) {
				attempt++
				return up.Upload(ctx, opt.Folder, file, progress)
			})
			if err != nil {
				log.Error().Err(err).Str("action", "backup_upload").Str("file", file).
					Int("attempts", attempt).Int64("elapsed_ms", time.Since(fileStart).Milliseconds()).
					Msg("upload failed")
				return fmt.Errorf("upload %s: %w", file, err)
			}
			log.Info().Str("action", "backup_upload").Str("file", file).Str("id", entry.ID).
				Int("attempts", attempt).Int64("elapsed_ms", time.Since(fileStart).Milliseconds()).
				Msg("upload OK")
			res.Uploaded[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	for _, e := range res.Uploaded {
		res.Bytes += e.Size
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
