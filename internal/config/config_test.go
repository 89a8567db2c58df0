package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/remote-backup/internal/retry"
)

func setenv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func baseEnv(t *testing.T) {
	dir := t.TempDir()
	setenv(t, map[string]string{
		"SESSION_FILE": filepath.Join(dir, "s.json"),
		"STATE_FILE":   filepath.Join(dir, "st.json"),
	})
}

func TestLoad_DriveDefaults(t *testing.T) {
	baseEnv(t)
	setenv(t, map[string]string{"STORAGE_PROVIDER": "gdrive", "GDRIVE_CLIENT_ID": "cid"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderDrive, cfg.Provider)
	assert.Equal(t, "MoneyWallet", cfg.AppFolderName)
	assert.Equal(t, 2, cfg.BackupConcurrency)
	assert.Equal(t, retry.Default.MaxAttempts, cfg.RetryOptions().MaxAttempts)
	assert.Equal(t, DriveConfig{ClientID: "cid", RedirectURL: defaultRedirect}, cfg.ProviderConfig())
}

func TestLoad_Azure(t *testing.T) {
	baseEnv(t)
	setenv(t, map[string]string{
		"STORAGE_PROVIDER":        "Azure",
		"AZURE_STORAGE_ACCOUNT":   "acct",
		"AZURE_STORAGE_CONTAINER": "backups",
		"AZURE_STORAGE_SAS":       "sv=x",
		"APP_FOLDER_NAME":         "Wallet",
		"RETRY_INITIAL_DELAY":     "1s",
		"RETRY_JITTER":            "off",
		"BACKUP_CONCURRENCY":      "4",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderAzure, cfg.Provider)
	assert.Equal(t, "Wallet", cfg.AppFolderName)
	assert.Equal(t, 4, cfg.BackupConcurrency)
	assert.Equal(t, time.Second, cfg.RetryOptions().InitialDelay)
	assert.False(t, cfg.RetryOptions().Jitter)

	az, ok := cfg.ProviderConfig().(AzureConfig)
	require.True(t, ok)
	assert.Equal(t, "sv=x", az.SASToken)
}

func TestLoad_S3(t *testing.T) {
	baseEnv(t)
	setenv(t, map[string]string{
		"STORAGE_PROVIDER": "s3",
		"S3_BUCKET":        "bkt",
		"S3_ENDPOINT":      "http://localhost:9000",
		"S3_PATH_STYLE":    "true",
	})

	cfg, err := Load()
	require.NoError(t, err)
	s3, ok := cfg.ProviderConfig().(S3Config)
	require.True(t, ok)
	assert.Equal(t, "us-east-1", s3.Region)
	assert.True(t, s3.PathStyle)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown provider": {"STORAGE_PROVIDER": "dropbox"},
		"drive no client":  {"STORAGE_PROVIDER": "gdrive", "GDRIVE_CLIENT_ID": ""},
		"azure no account": {"STORAGE_PROVIDER": "azure", "AZURE_STORAGE_ACCOUNT": "", "AZURE_STORAGE_CONTAINER": "c"},
		"s3 no bucket":     {"STORAGE_PROVIDER": "s3", "S3_BUCKET": ""},
		"s3 half keys":     {"STORAGE_PROVIDER": "s3", "S3_BUCKET": "b", "S3_ACCESS_KEY": "k", "S3_SECRET_KEY": ""},
		"folder slash":     {"STORAGE_PROVIDER": "s3", "S3_BUCKET": "b", "APP_FOLDER_NAME": "a/b"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			baseEnv(t)
			setenv(t, env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
