package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Chapsvision-dev/remote-backup/internal/retry"
)

const (
	ProviderDrive = "gdrive"
	ProviderAzure = "azure"
	ProviderS3    = "s3"

	defaultAppFolder = "MoneyWallet"
	defaultRedirect  = "http://127.0.0.1:8085/callback"
)

type Config struct {
	Provider      string
	AppFolderName string

	// Local state
	SessionFile string
	StateFile   string

	Drive DriveConfig
	Azure AzureConfig
	S3    S3Config

	BackupConcurrency int

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryEnableJitter bool
}

type DriveConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     string // optional API base override
}

type AzureConfig struct {
	Account   string
	Container string
	SASToken  string
	Endpoint  string // optional, defaults to https://<account>.blob.core.windows.net/

	ClientID     string
	ClientSecret string
	TenantID     string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible stores
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Load reads config from environment variables, applies defaults and validates.
func Load() (Config, error) {
	get := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return def
	}

	parseInt := func(key string, def int) int {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				return n
			}
		}
		return def
	}

	parseDur := func(key string, def time.Duration) time.Duration {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
		return def
	}

	parseFloat := func(key string, def float64) float64 {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				return f
			}
		}
		return def
	}

	parseBool := func(key string, def bool) bool {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "y", "on":
				return true
			case "0", "false", "no", "n", "off":
				return false
			}
		}
		return def
	}

	stateDir, err := defaultStateDir()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Provider:      strings.ToLower(strings.TrimSpace(get("STORAGE_PROVIDER", ProviderDrive))),
		AppFolderName: strings.TrimSpace(get("APP_FOLDER_NAME", defaultAppFolder)),

		SessionFile: get("SESSION_FILE", filepath.Join(stateDir, "session.json")),
		StateFile:   get("STATE_FILE", filepath.Join(stateDir, "state.json")),

		Drive: DriveConfig{
			ClientID:     get("GDRIVE_CLIENT_ID", ""),
			ClientSecret: get("GDRIVE_CLIENT_SECRET", ""),
			RedirectURL:  get("GDRIVE_REDIRECT_URL", defaultRedirect),
			Endpoint:     get("GDRIVE_ENDPOINT", ""),
		},

		Azure: AzureConfig{
			Account:      get("AZURE_STORAGE_ACCOUNT", ""),
			Container:    get("AZURE_STORAGE_CONTAINER", ""),
			SASToken:     get("AZURE_STORAGE_SAS", ""),
			Endpoint:     get("AZURE_BLOB_ENDPOINT", ""),
			ClientID:     get("AZURE_CLIENT_ID", ""),
			ClientSecret: get("AZURE_CLIENT_SECRET", ""),
			TenantID:     get("AZURE_TENANT_ID", ""),
		},

		S3: S3Config{
			Bucket:    get("S3_BUCKET", ""),
			Region:    get("S3_REGION", "us-east-1"),
			Endpoint:  get("S3_ENDPOINT", ""),
			AccessKey: get("S3_ACCESS_KEY", ""),
			SecretKey: get("S3_SECRET_KEY", ""),
			PathStyle: parseBool("S3_PATH_STYLE", false),
		},

		BackupConcurrency: parseInt("BACKUP_CONCURRENCY", 2),

		RetryMaxAttempts:  parseInt("RETRY_MAX_ATTEMPTS", retry.Default.MaxAttempts),
		RetryInitialDelay: parseDur("RETRY_INITIAL_DELAY", retry.Default.InitialDelay),
		RetryMaxDelay:     parseDur("RETRY_MAX_DELAY", retry.Default.MaxDelay),
		RetryMultiplier:   parseFloat("RETRY_MULTIPLIER", retry.Default.Multiplier),
		RetryEnableJitter: parseBool("RETRY_JITTER", retry.Default.Jitter),
	}
	if cfg.AppFolderName == "" {
		cfg.AppFolderName = defaultAppFolder
	}
	if cfg.BackupConcurrency < 1 {
		cfg.BackupConcurrency = 1
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultStateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.New("cannot determine config dir: set SESSION_FILE and STATE_FILE")
	}
	return filepath.Join(base, "remote-backup"), nil
}

// validate checks provider-specific requirements.
// Azure accepts SAS, a service principal, or falls back to the default credential chain.
// S3 falls back to the SDK's default credential chain when no static keys are set.
func (c *Config) validate() error {
	switch c.Provider {
	case ProviderDrive:
		if strings.TrimSpace(c.Drive.ClientID) == "" {
			return errors.New("gdrive: GDRIVE_CLIENT_ID is required")
		}
	case ProviderAzure:
		if c.Azure.Account == "" || c.Azure.Container == "" {
			return errors.New("azure: AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_CONTAINER are required")
		}
	case ProviderS3:
		if c.S3.Bucket == "" {
			return errors.New("s3: S3_BUCKET is required")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			return errors.New("s3: S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	default:
		return errors.New("unsupported provider: " + c.Provider)
	}
	if strings.Contains(c.AppFolderName, "/") {
		return errors.New("APP_FOLDER_NAME must not contain '/'")
	}
	return nil
}

// ProviderConfig returns the provider-specific section for c.Provider, as
// passed to provider factories.
func (c Config) ProviderConfig() any {
	switch c.Provider {
	case ProviderDrive:
		return c.Drive
	case ProviderAzure:
		return c.Azure
	case ProviderS3:
		return c.S3
	}
	return nil
}

// RetryOptions converts retry-related config values to retry.Options.
func (c Config) RetryOptions() retry.Options {
	return retry.Options{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryMultiplier,
		Jitter:       c.RetryEnableJitter,
	}
}
