package provider

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

// Factory creates an adapter from opaque config (provider-specific) and the
// session it acts for. Factories must not perform network calls.
type Factory func(ctx context.Context, cfg any, sess *session.Session) (Adapter, error)

type registration struct {
	scopes  []string
	factory Factory
}

var registry = map[string]registration{}

// Register binds a provider name to its factory and the scopes its sessions need.
func Register(name string, scopes []string, f Factory) {
	registry[name] = registration{scopes: slices.Clone(scopes), factory: f}
}

// New returns an adapter instance by name.
func New(ctx context.Context, name string, cfg any, sess *session.Session) (Adapter, error) {
	r, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return r.factory(ctx, cfg, sess)
}

// RequiredScopes returns the scopes registered for name, or nil if unknown.
func RequiredScopes(name string) []string {
	r, ok := registry[name]
	if !ok {
		return nil
	}
	return slices.Clone(r.scopes)
}

// Registered reports whether a factory exists for name.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names lists registered providers in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
