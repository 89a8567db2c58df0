package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

const (
	Name  = "azure"
	Scope = "azure.blob.readwrite"
)

// AccountName is the session account for an Azure configuration: one
// container of one storage account.
func AccountName(c config.AzureConfig) string {
	return c.Account + "/" + c.Container
}

// Endpoint returns the configured blob endpoint, or the public cloud default.
func Endpoint(c config.AzureConfig) string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.Account)
}

// clientOptions disables SDK retries; the caller owns retry policy.
func clientOptions() *azblob.ClientOptions {
	return &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
}

// Build client from config.
// Priority: 1) SAS  2) Service Principal  3) DefaultAzureCredential.
func newClientFromConfig(c config.AzureConfig) (*azblob.Client, error) {
	endpoint := Endpoint(c)

	// 1) SAS
	if sasRaw := strings.TrimSpace(c.SASToken); sasRaw != "" {
		sas := strings.TrimPrefix(sasRaw, "?")
		return azblob.NewClientWithNoCredential(endpoint+"?"+sas, clientOptions())
	}

	// 2) Service Principal
	if c.ClientID != "" && c.ClientSecret != "" && c.TenantID != "" {
		cred, err := azidentity.NewClientSecretCredential(c.TenantID, c.ClientID, c.ClientSecret, nil)
		if err != nil {
			return nil, err
		}
		return azblob.NewClient(endpoint, cred, clientOptions())
	}

	// 3) Managed Identity / DefaultAzureCredential
	defCred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azblob.NewClient(endpoint, defCred, clientOptions())
}

func init() {
	provider.Register(Name, []string{Scope}, func(ctx context.Context, cfg any, sess *session.Session) (provider.Adapter, error) {
		c, ok := cfg.(config.AzureConfig)
		if !ok {
			return nil, provider.Errorf(provider.InvalidArgument, "open", Name, "invalid config type %T", cfg)
		}
		if c.Account == "" || c.Container == "" {
			return nil, provider.Errorf(provider.InvalidArgument, "open", Name, "account and container are required")
		}
		if sess == nil || sess.Account != AccountName(c) {
			return nil, provider.Errorf(provider.Unauthenticated, "open", Name, "session is not bound to %s", AccountName(c))
		}
		client, err := newClientFromConfig(c)
		if err != nil {
			return nil, provider.E(provider.Fatal, "open", Name, err)
		}
		return newAdapter(client, c.Container), nil
	})
}
