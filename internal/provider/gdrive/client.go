package gdrive

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

const (
	Name = "gdrive"
	// Scope grants access to files created by this application only.
	Scope = drive.DriveFileScope
	// RevokeURL is Google's OAuth token revocation endpoint.
	RevokeURL = "https://oauth2.googleapis.com/revoke"
)

// OAuthConfig returns the authorization-code flow configuration for c.
func OAuthConfig(c config.DriveConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{Scope},
		Endpoint:     google.Endpoint,
	}
}

func serviceOptions(c config.DriveConfig, ts oauth2.TokenSource) []option.ClientOption {
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(c.Endpoint, "/")+"/"))
	}
	return opts
}

// Identifier returns a function resolving the signed-in user's email, used to
// name the session account after sign-in.
func Identifier(c config.DriveConfig) func(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	return func(ctx context.Context, ts oauth2.TokenSource) (string, error) {
		svc, err := drive.NewService(ctx, serviceOptions(c, ts)...)
		if err != nil {
			return "", err
		}
		about, err := svc.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
		if err != nil {
			return "", classify("identify", err)
		}
		if about.User == nil || about.User.EmailAddress == "" {
			return "", fmt.Errorf("drive returned no user email")
		}
		return about.User.EmailAddress, nil
	}
}

func init() {
	provider.Register(Name, []string{Scope}, func(ctx context.Context, cfg any, sess *session.Session) (provider.Adapter, error) {
		c, ok := cfg.(config.DriveConfig)
		if !ok {
			return nil, provider.Errorf(provider.InvalidArgument, "open", Name, "invalid config type %T", cfg)
		}
		ts, err := sess.TokenSource(ctx, OAuthConfig(c))
		if err != nil {
			return nil, provider.E(provider.Unauthenticated, "open", Name, err)
		}
		svc, err := drive.NewService(ctx, serviceOptions(c, ts)...)
		if err != nil {
			return nil, provider.E(provider.Fatal, "open", Name, err)
		}
		return newAdapter(svc), nil
	})
}
