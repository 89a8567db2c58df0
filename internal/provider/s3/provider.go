// Package s3 stores backups in an S3-compatible bucket. Folders are
// "/"-delimited key prefixes; creating one writes an empty "<prefix>/" object.
package s3

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/transfer"
)

// rootID is the empty prefix: the bucket itself.
const rootID = ""

type Adapter struct {
	client   *awss3.Client
	uploader *manager.Uploader
	bucket   string
}

func newAdapter(client *awss3.Client, bucket string) *Adapter {
	return &Adapter{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

func (p *Adapter) Name() string             { return Name }
func (p *Adapter) RootID() string           { return rootID }
func (p *Adapter) RequiredScopes() []string { return []string{Scope} }

// List returns objects and common prefixes directly under parentID.
func (p *Adapter) List(ctx context.Context, parentID string) ([]model.FileEntry, error) {
	prefix, err := folderPrefix("list", parentID)
	if err != nil {
		return nil, err
	}
	pager := awss3.NewListObjectsV2Paginator(p.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	out := []model.FileEntry{}
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("list", err)
		}
		// Directories (CommonPrefixes)
		for _, cp := range page.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			if key == "" {
				continue
			}
			out = append(out, model.NewFolder(key, baseName(key)))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || key == prefix {
				continue
			}
			out = append(out, model.NewFile(key, baseName(key), aws.ToInt64(obj.Size)))
		}
	}
	log.Debug().Str("action", "s3_list").Str("bucket", p.bucket).Str("prefix", prefix).
		Int("count", len(out)).Msg("listed")
	return out, nil
}

// Upload streams localPath to <parentID><basename> and checks the stored size.
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
	_, err = p.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:   aws.String(p.bucket),
		Key:      aws.String(key),
		Body:     transfer.NewReader(ctx, f, progress),
		Metadata: map[string]string{"sha256": sum},
	})
	if err != nil {
		return model.FileEntry{}, classify("upload", err)
	}

	head, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.FileEntry{}, classify("upload", err)
	}
	if remote := aws.ToInt64(head.ContentLength); remote != size {
		return model.FileEntry{}, provider.Errorf(provider.Fatal, "upload", Name,
			"size mismatch for %q: local=%d, remote=%d", key, size, remote)
	}

	log.Debug().Str("action", "s3_upload").Str("bucket", p.bucket).Str("key", key).
		Int64("bytes", size).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("upload OK")
	return model.NewFile(key, name, size), nil
}

// Download streams the object into destDir/<entry.Name>.
func (p *Adapter) Download(ctx context.Context, entry model.FileEntry, destDir string, progress provider.ProgressFunc) (string, error) {
	if entry.ID == "" || strings.HasSuffix(entry.ID, "/") {
		return "", provider.Errorf(provider.InvalidArgument, "download", Name, "not an object key: %q", entry.ID)
	}
	start := time.Now()
	resp, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(entry.ID),
	})
	if err != nil {
		return "", classify("download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	target, err := transfer.WriteFile(ctx, destDir, entry.Name, resp.Body, progress)
	if err != nil {
		return "", classify("download", err)
	}
	log.Debug().Str("action", "s3_download").Str("bucket", p.bucket).Str("key", entry.ID).
		Str("local", target).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("download OK")
	return target, nil
}

// CreateFolder writes the empty object "<parentID><name>/".
func (p *Adapter) CreateFolder(ctx context.Context, parentID, name string) (model.FileEntry, error) {
	prefix, err := folderPrefix("create_folder", parentID)
	if err != nil {
		return model.FileEntry{}, err
	}
	key := prefix + name + "/"
	_, err = p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return model.FileEntry{}, classify("create_folder", err)
	}
	log.Debug().Str("action", "s3_mkdir").Str("bucket", p.bucket).Str("key", key).Msg("folder object written")
	return model.NewFolder(key, name), nil
}

func folderPrefix(op, id string) (string, error) {
	if id == rootID || strings.HasSuffix(id, "/") {
		return strings.TrimPrefix(id, "/"), nil
	}
	return "", provider.Errorf(provider.InvalidArgument, op, Name, "not a folder id: %q", id)
}

func baseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}
