package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

const loginTimeout = 5 * time.Minute

// listenForCallback serves redirectURL on the loopback interface until the
// authorization page redirects back with a code (or an error) or ctx ends.
func listenForCallback(ctx context.Context, redirectURL string) (session.Result, error) {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Scheme != "http" || u.Host == "" {
		return session.Result{}, fmt.Errorf("redirect URL %q must be an http loopback address", redirectURL)
	}
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return session.Result{}, fmt.Errorf("listen for sign-in callback: %w", err)
	}

	results := make(chan session.Result, 1)
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := session.Result{Code: q.Get("code"), State: q.Get("state"), Err: q.Get("error")}
		if res.Code == "" && res.Err == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		select {
		case results <- res:
		default:
		}
		if res.Err != "" {
			_, _ = fmt.Fprintf(w, "Sign-in failed: %s\n", res.Err)
			return
		}
		_, _ = fmt.Fprintln(w, "Signed in. You can close this window.")
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Debug().Err(err).Str("action", "sign_in_callback").Msg("callback server stopped")
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		return session.Result{}, fmt.Errorf("waiting for sign-in callback: %w", ctx.Err())
	}
}
