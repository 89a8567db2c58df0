// Package session tracks the authenticated identity bound to one provider and
// drives its sign-in and sign-out lifecycle.
package session

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/oauth2"
)

var (
	ErrNoSession = errors.New("session: not signed in")
	ErrNoToken   = errors.New("session: no oauth token")
)

// Session is the signed-in identity for one provider. It is created by a
// completed sign-in and only read afterwards.
type Session struct {
	Provider string        `json:"provider"`
	Account  string        `json:"account"`
	Scopes   []string      `json:"scopes"`
	Token    *oauth2.Token `json:"token,omitempty"`
}

// Valid reports whether s names a provider and an account.
func (s *Session) Valid() bool {
	return s != nil && s.Provider != "" && s.Account != ""
}

// HasScopes reports whether s is valid and its granted scopes are a superset of required.
func (s *Session) HasScopes(required ...string) bool {
	if !s.Valid() {
		return false
	}
	for _, r := range required {
		if !slices.Contains(s.Scopes, r) {
			return false
		}
	}
	return true
}

// TokenSource returns a refreshing token source seeded with the session
// token. Refreshed tokens stay in memory; the stored session is not modified.
func (s *Session) TokenSource(ctx context.Context, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	if s == nil || s.Token == nil {
		return nil, ErrNoToken
	}
	tok := *s.Token
	return cfg.TokenSource(ctx, &tok), nil
}
