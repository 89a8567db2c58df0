package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// Flow is an in-progress sign-in. AuthURL is empty when no interactive step is
// needed (e.g. credentials supplied by configuration).
type Flow struct {
	Provider string
	AuthURL  string
	State    string
	Verifier string
	Scopes   []string
}

// Result is what the interactive step reports back.
type Result struct {
	Code  string
	State string
	// Err carries an error reported by the authorization page, if any.
	Err string
}

// Outcome of CompleteSignIn.
type Outcome struct {
	Success bool
	Reason  string
}

// Authorizer is the narrow contract to a provider's authorization service.
type Authorizer interface {
	Begin(ctx context.Context) (*Flow, error)
	Complete(ctx context.Context, flow *Flow, res Result) (*Session, error)
	Revoke(ctx context.Context, sess *Session) error
}

// Binding ties one provider's Authorizer to the persisted session.
type Binding struct {
	provider string
	scopes   []string
	auth     Authorizer
	store    *Store
}

// NewBinding returns a binding for provider requiring scopes.
func NewBinding(provider string, scopes []string, auth Authorizer, store *Store) *Binding {
	return &Binding{provider: provider, scopes: slices.Clone(scopes), auth: auth, store: store}
}

// Provider returns the provider this binding is for.
func (b *Binding) Provider() string { return b.provider }

// Session loads the stored session for this binding's provider.
func (b *Binding) Session() (*Session, error) {
	sess, err := b.store.Load()
	if err != nil {
		return nil, err
	}
	if sess.Provider != b.provider {
		return nil, fmt.Errorf("%w: stored session belongs to %q", ErrNoSession, sess.Provider)
	}
	return sess, nil
}

// IsAuthorized reports whether a signed-in identity exists whose granted
// scopes include every scope in required. With no arguments any signed-in
// identity qualifies; use Authorized to check the binding's own scopes.
func (b *Binding) IsAuthorized(required ...string) bool {
	sess, err := b.Session()
	if err != nil {
		return false
	}
	return sess.HasScopes(required...)
}

// Authorized is IsAuthorized for the scopes the binding was created with.
func (b *Binding) Authorized() bool {
	return b.IsAuthorized(b.scopes...)
}

// BeginSignIn starts an authorization flow. The caller drives any interactive
// step (opening AuthURL) and passes the result to CompleteSignIn.
func (b *Binding) BeginSignIn(ctx context.Context) (*Flow, error) {
	flow, err := b.auth.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin sign-in: %w", err)
	}
	log.Debug().Str("action", "sign_in_begin").Str("provider", b.provider).
		Bool("interactive", flow.AuthURL != "").Msg("sign-in started")
	return flow, nil
}

// CompleteSignIn finalizes flow. It succeeds only when the resulting identity
// holds every required scope; the session is then persisted.
func (b *Binding) CompleteSignIn(ctx context.Context, flow *Flow, res Result) Outcome {
	if flow == nil {
		return Outcome{Reason: "no sign-in in progress"}
	}
	if res.Err != "" {
		return Outcome{Reason: res.Err}
	}
	sess, err := b.auth.Complete(ctx, flow, res)
	if err != nil {
		return Outcome{Reason: err.Error()}
	}
	if !sess.Valid() {
		return Outcome{Reason: "authorization returned no account"}
	}
	if !sess.HasScopes(b.scopes...) {
		var missing []string
		for _, s := range b.scopes {
			if !slices.Contains(sess.Scopes, s) {
				missing = append(missing, s)
			}
		}
		return Outcome{Reason: "required scopes not granted: " + strings.Join(missing, ", ")}
	}
	if err := b.store.Save(sess); err != nil {
		return Outcome{Reason: fmt.Sprintf("store session: %v", err)}
	}
	log.Info().Str("action", "sign_in_complete").Str("provider", b.provider).
		Str("account", sess.Account).Msg("signed in")
	return Outcome{Success: true}
}

// SignOut revokes the stored session at the provider (when supported) and
// removes it locally. The returned channel yields one value (nil on success)
// once both steps finished, then closes. The local session is removed even if
// remote revocation fails.
func (b *Binding) SignOut(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)

		var revokeErr error
		sess, err := b.store.Load()
		switch {
		case err == nil:
			revokeErr = b.auth.Revoke(ctx, sess)
		case !errors.Is(err, ErrNoSession):
			revokeErr = err
		}
		if revokeErr != nil {
			revokeErr = fmt.Errorf("revoke: %w", revokeErr)
		}
		done <- errors.Join(revokeErr, b.store.Delete())
	}()
	return done
}
