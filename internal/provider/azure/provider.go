// Package azure stores backups as blobs in one Azure Storage container. Folders
// are "/"-delimited name prefixes, materialised by zero-length marker blobs so
// that empty folders survive.
package azure

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/transfer"
)

// rootID is the empty prefix: the container itself.
const rootID = ""

type Adapter struct {
	client    *azblob.Client
	container *container.Client
	name      string
}

func newAdapter(client *azblob.Client, containerName string) *Adapter {
	return &Adapter{
		client:    client,
		container: client.ServiceClient().NewContainerClient(containerName),
		name:      containerName,
	}
}

func (p *Adapter) Name() string             { return Name }
func (p *Adapter) RootID() string           { return rootID }
func (p *Adapter) RequiredScopes() []string { return []string{Scope} }

// List returns blobs and sub-prefixes directly under parentID, following
// continuation markers until the listing is complete.
func (p *Adapter) List(ctx context.Context, parentID string) ([]model.FileEntry, error) {
	prefix, err := folderPrefix("list", parentID)
	if err != nil {
		return nil, err
	}
	pager := p.container.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: to.Ptr(prefix),
	})

	out := []model.FileEntry{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("list", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, bp := range page.Segment.BlobPrefixes {
			if bp.Name == nil {
				continue
			}
			out = append(out, model.NewFolder(*bp.Name, baseName(*bp.Name)))
		}
		for _, it := range page.Segment.BlobItems {
			if it.Name == nil || *it.Name == prefix {
				// The folder's own marker blob.
				continue
			}
			if it.Deleted != nil && *it.Deleted {
				continue
			}
			var size int64
			if it.Properties != nil && it.Properties.ContentLength != nil {
				size = *it.Properties.ContentLength
			}
			out = append(out, model.NewFile(*it.Name, baseName(*it.Name), size))
		}
	}
	log.Debug().Str("action", "azure_list").Str("container", p.name).Str("prefix", prefix).
		Int("count", len(out)).Msg("listed")
	return out, nil
}

// Upload streams localPath to <parentID><basename>. The blob carries the
// file's sha256 in its metadata and its size is checked after the upload.
func (p *Adapter) Upload(ctx context.Context, parentID, localPath string, progress provider.ProgressFunc) (model.FileEntry, error) {
	prefix, err := folderPrefix("upload", parentID)
	if err != nil {
		return model.FileEntry{}, err
	}
	name := filepath.Base(localPath)
	key := prefix + name

	sum, size, err := transfer.SHA256File(localPath)
	if err != nil {
		return model.FileEntry{}, provider.E(provider.InvalidArgument, "upload", Name, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return model.FileEntry{}, provider.E(provider.InvalidArgument, "upload", Name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("file", localPath).Msg("failed to close source file after upload")
		}
	}()

	start := time.Now()
	_, err = p.client.UploadStream(ctx, p.name, key, transfer.NewReader(ctx, f, progress), &azblob.UploadStreamOptions{
		Metadata: map[string]*string{"sha256": to.Ptr(sum)},
	})
	if err != nil {
		return model.FileEntry{}, classify("upload", err)
	}

	props, err := p.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return model.FileEntry{}, classify("upload", err)
	}
	var remote int64
	if props.ContentLength != nil {
		remote = *props.ContentLength
	}
	if remote != size {
		return model.FileEntry{}, provider.Errorf(provider.Fatal, "upload", Name,
			"size mismatch for %q: local=%d, remote=%d", key, size, remote)
	}

	log.Debug().Str("action", "azure_upload").Str("container", p.name).Str("key", key).
		Int64("bytes", size).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("upload OK")
	return model.NewFile(key, name, size), nil
}

// Download streams the blob into destDir/<entry.Name>.
func (p *Adapter) Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error) {
	if entry.ID == "" || strings.HasSuffix(entry.ID, "/") {
		return "", provider.Errorf(provider.InvalidArgument, "download", Name, "not a blob key: %q", entry.ID)
	}
	start := time.Now()
	resp, err := p.client.DownloadStream(ctx, p.name, entry.ID, nil)
	if err != nil {
		return "", classify("download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	target, err := transfer.WriteFile(ctx, destDir, entry.Name, resp.Body, progress)
	if err != nil {
		return "", classify("download", err)
	}
	log.Debug().Str("action", "azure_download").Str("container", p.name).Str("key", entry.ID).
		Str("local", target).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("download OK")
	return target, nil
}

// CreateFolder writes the marker blob "<parentID><name>/".
func (p *Adapter) CreateFolder(ctx context.Context, parentID, name string) (model.FileEntry, error) {
	prefix, err := folderPrefix("create_folder", parentID)
	if err != nil {
		return model.FileEntry{}, err
	}
	key := prefix + name + "/"
	_, err = p.client.UploadBuffer(ctx, p.name, key, []byte{}, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{"hdi_isfolder": to.Ptr("true")},
	})
	if err != nil {
		return model.FileEntry{}, classify("create_folder", err)
	}
	log.Debug().Str("action", "azure_mkdir").Str("container", p.name).Str("key", key).Msg("folder marker written")
	return model.NewFolder(key, name), nil
}

// folderPrefix validates a folder id: the root "" or a prefix ending in "/".
func folderPrefix(op, id string) (string, error) {
	if id == rootID || strings.HasSuffix(id, "/") {
		return strings.TrimPrefix(id, "/"), nil
	}
	return "", provider.Errorf(provider.InvalidArgument, op, Name, "not a folder id: %q", id)
}

// baseName returns the last path segment of a key, ignoring a trailing "/".
func baseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}
