package s3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

const listXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>bkt</Name>
  <Prefix>backups/</Prefix>
  <Delimiter>/</Delimiter>
  <KeyCount>3</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>backups/</Key><Size>0</Size></Contents>
  <Contents><Key>backups/a.zip</Key><Size>1024</Size></Contents>
  <CommonPrefixes><Prefix>backups/2024/</Prefix></CommonPrefixes>
</ListBucketResult>`

func newTestAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := newClientFromConfig(context.Background(), config.S3Config{
		Bucket:    "bkt",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIDTEST",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	return newAdapter(client, "bkt")
}

func TestList_PrefixesAndObjects(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bkt", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("list-type"))
		assert.Equal(t, "/", r.URL.Query().Get("delimiter"))
		assert.Equal(t, "backups/", r.URL.Query().Get("prefix"))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listXML))
	})

	got, err := a.List(context.Background(), "backups/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.FileEntry{
		model.NewFolder("backups/2024/", "2024"),
		model.NewFile("backups/a.zip", "a.zip", 1024),
	}, got)
}

func TestDownload_WritesFile(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bkt/backups/a.zip", r.URL.Path)
		w.Header().Set("Content-Length", "5")
		_, _ = w.Write([]byte("hello"))
	})

	dest := t.TempDir()
	p, err := a.Download(context.Background(), model.NewFile("backups/a.zip", "a.zip", 5), dest, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, filepath.Join(dest, "a.zip"), p)
}

func TestDownload_NoSuchKeyIsFatal(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
	})

	dest := t.TempDir()
	_, err := a.Download(context.Background(), model.NewFile("gone.zip", "gone.zip", 1), dest, nil)
	assert.True(t, provider.IsFatal(err))
	left, _ := os.ReadDir(dest)
	assert.Empty(t, left)
}

func TestCreateFolder_PutsMarker(t *testing.T) {
	var method, path string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	e, err := a.CreateFolder(context.Background(), "backups/", "2025")
	require.NoError(t, err)
	assert.Equal(t, model.NewFolder("backups/2025/", "2025"), e)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/bkt/backups/2025/", path)
}

func TestFolderIDValidation(t *testing.T) {
	a := &Adapter{}
	_, err := a.List(context.Background(), "backups/a.zip")
	assert.True(t, provider.IsInvalidArgument(err))
	_, err = a.Download(context.Background(), model.NewFolder("backups/", "backups"), t.TempDir(), nil)
	assert.True(t, provider.IsInvalidArgument(err))
}

func TestClassify(t *testing.T) {
	status := func(code int) error {
		return &awshttp.ResponseError{ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New("http error"),
		}}
	}

	assert.True(t, provider.IsCancelled(classify("list", context.Canceled)))
	assert.True(t, provider.IsRecoverable(classify("list", &smithy.GenericAPIError{Code: "SlowDown"})))
	assert.True(t, provider.IsFatal(classify("list", &smithy.GenericAPIError{Code: "NoSuchBucket"})))
	assert.True(t, provider.IsRecoverable(classify("list", status(503))))
	assert.True(t, provider.IsFatal(classify("list", status(403))))
	assert.True(t, provider.IsRecoverable(classify("upload", errors.New("connection dropped"))))
	assert.True(t, provider.IsFatal(classify("list", errors.New("weird"))))
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	cfg := config.S3Config{Bucket: "bkt", Region: "eu-west-1", AccessKey: "a", SecretKey: "b"}

	_, err := provider.New(ctx, Name, cfg, &session.Session{Provider: Name, Account: "other"})
	assert.True(t, provider.IsUnauthenticated(err))

	_, err = provider.New(ctx, Name, config.S3Config{}, nil)
	assert.True(t, provider.IsInvalidArgument(err))

	a, err := provider.New(ctx, Name, cfg, &session.Session{Provider: Name, Account: AccountName(cfg)})
	require.NoError(t, err)
	assert.Equal(t, rootID, a.RootID())
}
