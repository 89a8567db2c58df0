package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OAuth authorizes through an authorization-code flow with PKCE.
type OAuth struct {
	Provider string
	Config   *oauth2.Config
	// RevokeURL receives a form-encoded token=... POST on sign-out. Empty disables remote revocation.
	RevokeURL  string
	HTTPClient *http.Client
	// Identify resolves the account name (e.g. an email) for a freshly issued token.
	Identify func(ctx context.Context, ts oauth2.TokenSource) (string, error)
}

func (a *OAuth) Begin(ctx context.Context) (*Flow, error) {
	if a.Config == nil || a.Config.ClientID == "" {
		return nil, errors.New("oauth client id is not configured")
	}
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	authURL := a.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	return &Flow{
		Provider: a.Provider,
		AuthURL:  authURL,
		State:    state,
		Verifier: verifier,
		Scopes:   slices.Clone(a.Config.Scopes),
	}, nil
}

func (a *OAuth) Complete(ctx context.Context, flow *Flow, res Result) (*Session, error) {
	if res.State != flow.State {
		return nil, errors.New("state mismatch")
	}
	if strings.TrimSpace(res.Code) == "" {
		return nil, errors.New("empty authorization code")
	}
	ctx = a.withClient(ctx)
	tok, err := a.Config.Exchange(ctx, res.Code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	scopes := flow.Scopes
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}

	account := ""
	if a.Identify != nil {
		account, err = a.Identify(ctx, a.Config.TokenSource(ctx, tok))
		if err != nil {
			return nil, fmt.Errorf("identify account: %w", err)
		}
	}
	return &Session{Provider: a.Provider, Account: account, Scopes: scopes, Token: tok}, nil
}

// Revoke posts the refresh token (or the access token when none) to RevokeURL.
func (a *OAuth) Revoke(ctx context.Context, sess *Session) error {
	if a.RevokeURL == "" || sess == nil || sess.Token == nil {
		return nil
	}
	token := sess.Token.RefreshToken
	if token == "" {
		token = sess.Token.AccessToken
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revoke failed: %s (%s)", resp.Status, strings.TrimSpace(string(data)))
	}
	log.Debug().Str("action", "revoke").Str("provider", a.Provider).Msg("token revoked")
	return nil
}

func (a *OAuth) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (a *OAuth) withClient(ctx context.Context) context.Context {
	if a.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Static authorizes providers whose credentials come from configuration
// (account keys, SAS tokens, service principals). There is no interactive
// step; the identity is fixed.
type Static struct {
	Provider string
	Account  string
	Scopes   []string
}

func (s *Static) Begin(ctx context.Context) (*Flow, error) {
	if strings.TrimSpace(s.Account) == "" {
		return nil, fmt.Errorf("%s: account is not configured", s.Provider)
	}
	return &Flow{Provider: s.Provider, Scopes: slices.Clone(s.Scopes)}, nil
}

func (s *Static) Complete(ctx context.Context, flow *Flow, res Result) (*Session, error) {
	return &Session{Provider: s.Provider, Account: s.Account, Scopes: slices.Clone(flow.Scopes)}, nil
}

func (s *Static) Revoke(ctx context.Context, sess *Session) error { return nil }
