// Package loopback captures OAuth redirects on a loopback HTTP listener, the
// native-app equivalent of a browser extension's web auth flow.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const closePage = `<!doctype html><html><body><p>Sign-in finished. You can close this window.</p></body></html>`

// Opener shows authURL to the user.
type Opener func(ctx context.Context, authURL string) error

// BrowserOpener opens authURL in the system browser.
func BrowserOpener(ctx context.Context, authURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", authURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", authURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", authURL)
	}
	return cmd.Start()
}

type Launcher struct {
	addr   string
	path   string
	open   Opener
	logger zerolog.Logger
}

type Option func(*Launcher)

func WithLogger(l zerolog.Logger) Option {
	return func(lc *Launcher) {
		lc.logger = l
	}
}

// NewLauncher listens on addr (host:port) for the callbackPath redirect.
func NewLauncher(addr, callbackPath string, open Opener, opts ...Option) (*Launcher, error) {
	if addr == "" {
		return nil, errors.New("[NewLauncher] listen address is required")
	}
	if open == nil {
		return nil, errors.New("[NewLauncher] opener is required")
	}
	if callbackPath == "" {
		callbackPath = "/callback"
	}
	l := &Launcher{addr: addr, path: callbackPath, open: open, logger: log.Logger}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CallbackPath returns the path portion of a redirect URL.
func CallbackPath(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Path == "" {
		return "/callback"
	}
	return u.Path
}

// Launch serves the callback only for the duration of the call. A provider
// redirect with error=access_denied, a closed context or a non-interactive
// request all report ErrUserCancelled.
func (l *Launcher) Launch(ctx context.Context, authURL string, interactive bool) (string, error) {
	if !interactive {
		return "", fmt.Errorf("[Launcher.Launch] non-interactive: %w", apperrors.ErrUserCancelled)
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return "", fmt.Errorf("[Launcher.Launch] listen %s: %w", l.addr, err)
	}

	redirects := make(chan *url.URL, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(l.path, func(w http.ResponseWriter, r *http.Request) {
		u := *r.URL
		u.Scheme = "http"
		u.Host = r.Host
		select {
		case redirects <- &u:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(closePage))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Err(err).Str("addr", l.addr).Msg("loopback callback server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := l.open(ctx, authURL); err != nil {
		return "", fmt.Errorf("[Launcher.Launch] open: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", apperrors.ErrUserCancelled, ctx.Err())
	case u := <-redirects:
		if u.Query().Get("error") == "access_denied" {
			return "", fmt.Errorf("[Launcher.Launch] access denied: %w", apperrors.ErrUserCancelled)
		}
		return u.String(), nil
	}
}
