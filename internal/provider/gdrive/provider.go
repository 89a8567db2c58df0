// Package gdrive stores backups in Google Drive through the Drive v3 API.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/transfer"
)

const (
	rootID     = "root"
	folderMime = "application/vnd.google-apps.folder"
	fileFields = "id, name, mimeType, size, trashed"
)

type Adapter struct {
	svc *drive.Service
}

func newAdapter(svc *drive.Service) *Adapter {
	return &Adapter{svc: svc}
}

func (p *Adapter) Name() string             { return Name }
func (p *Adapter) RootID() string           { return rootID }
func (p *Adapter) RequiredScopes() []string { return []string{Scope} }

// fromNative maps a Drive file resource. An absent size is reported as 0.
func fromNative(f *drive.File) model.FileEntry {
	if f.MimeType == folderMime {
		return model.NewFolder(f.Id, f.Name)
	}
	return model.NewFile(f.Id, f.Name, f.Size)
}

// quote escapes a value for use inside a single-quoted Drive query literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func (p *Adapter) List(ctx context.Context, parentID string) ([]model.FileEntry, error) {
	q := fmt.Sprintf("%s in parents and trashed=false", quote(parentID))
	call := p.svc.Files.List().
		Q(q).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
		PageSize(1000)

	out := []model.FileEntry{}
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			if f.Trashed {
				continue
			}
			out = append(out, fromNative(f))
		}
		return nil
	})
	if err != nil {
		return nil, classify("list", err)
	}
	log.Debug().Str("action", "gdrive_list").Str("id", parentID).Int("count", len(out)).Msg("listed")
	return out, nil
}

// FindFolder looks up a non-trashed folder by exact name with one query.
func (p *Adapter) FindFolder(ctx context.Context, parentID, name string) (model.FileEntry, bool, error) {
	q := fmt.Sprintf("name=%s and mimeType=%s and trashed=false and %s in parents",
		quote(name), quote(folderMime), quote(parentID))
	res, err := p.svc.Files.List().
		Q(q).
		Fields(googleapi.Field("files(" + fileFields + ")")).
		Context(ctx).
		Do()
	if err != nil {
		return model.FileEntry{}, false, classify("find_folder", err)
	}
	for _, f := range res.Files {
		if !f.Trashed && f.MimeType == folderMime {
			return fromNative(f), true, nil
		}
	}
	return model.FileEntry{}, false, nil
}

// Upload sends localPath as a single multipart request. ChunkSize(0) turns
// off resumable chunking and with it the library's chunk retries.
func (p *Adapter) Upload(ctx context.Context, parentID, localPath string, progress provider.ProgressFunc) (model.FileEntry, error) {
	name := filepath.Base(localPath)
	f, err := os.Open(localPath)
	if err != nil {
		return model.FileEntry{}, provider.E(provider.InvalidArgument, "upload", Name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("file", localPath).Msg("failed to close source file after upload")
		}
	}()
	st, err := f.Stat()
	if err != nil {
		return model.FileEntry{}, provider.E(provider.InvalidArgument, "upload", Name, err)
	}

	start := time.Now()
	created, err := p.svc.Files.Create(&drive.File{Name: name, Parents: []string{parentID}}).
		Media(transfer.NewReader(ctx, f, progress),
			googleapi.ContentType("application/octet-stream"),
			googleapi.ChunkSize(0)).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return model.FileEntry{}, classify("upload", err)
	}
	if created.Size != st.Size() {
		return model.FileEntry{}, provider.Errorf(provider.Fatal, "upload", Name,
			"size mismatch for %q: local=%d, remote=%d", name, st.Size(), created.Size)
	}
	log.Debug().Str("action", "gdrive_upload").Str("id", created.Id).Str("name", name).
		Int64("bytes", created.Size).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("upload OK")
	return fromNative(created), nil
}

func (p *Adapter) Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error) {
	start := time.Now()
	resp, err := p.svc.Files.Get(entry.ID).Context(ctx).Download()
	if err != nil {
		return "", classify("download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	target, err := transfer.WriteFile(ctx, destDir, entry.Name, resp.Body, progress)
	if err != nil {
		return "", classify("download", err)
	}
	log.Debug().Str("action", "gdrive_download").Str("id", entry.ID).Str("local", target).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("download OK")
	return target, nil
}

func (p *Adapter) CreateFolder(ctx context.Context, parentID, name string) (model.FileEntry, error) {
	created, err := p.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMime,
		Parents:  []string{parentID},
	}).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	if err != nil {
		return model.FileEntry{}, classify("create_folder", err)
	}
	log.Debug().Str("action", "gdrive_mkdir").Str("id", created.Id).Str("name", name).Msg("folder created")
	return fromNative(created), nil
}

var _ provider.Finder = (*Adapter)(nil)
