// Package oauthflow drives interactive OAuth sign-in: PKCE, the redirect
// capture and the code exchange. It never stores sessions.
package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-coordinator/identity"
	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const defaultInteractiveTimeout = 5 * time.Minute

// ErrFlowInProgress is returned when an interactive sign-in is already running.
var ErrFlowInProgress = errors.New("oauth sign-in already in progress")

// RedirectLauncher is the host's redirect capture: it shows authURL to the
// user and returns the full URL the provider redirected back to.
type RedirectLauncher interface {
	Launch(ctx context.Context, authURL string, interactive bool) (redirectURL string, err error)
}

// RedirectLauncherFunc adapts a function to RedirectLauncher.
type RedirectLauncherFunc func(ctx context.Context, authURL string, interactive bool) (string, error)

func (f RedirectLauncherFunc) Launch(ctx context.Context, authURL string, interactive bool) (string, error) {
	return f(ctx, authURL, interactive)
}

type Controller struct {
	provider           identity.Provider
	launcher           RedirectLauncher
	interactiveTimeout time.Duration
	logger             zerolog.Logger

	flowLock sync.Mutex
	lock     sync.RWMutex
	state    FlowState
}

type Option func(*Controller)

// WithInteractiveTimeout bounds how long the user has to finish the redirect.
func WithInteractiveTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.interactiveTimeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func NewController(provider identity.Provider, launcher RedirectLauncher, opts ...Option) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("[NewController] identity provider is required")
	}
	if launcher == nil {
		return nil, errors.New("[NewController] redirect launcher is required")
	}
	c := &Controller{
		provider:           provider,
		launcher:           launcher,
		interactiveTimeout: defaultInteractiveTimeout,
		logger:             log.Logger,
		state:              StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State reports the last state reached by the most recent flow.
func (c *Controller) State() FlowState {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

func (c *Controller) reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.state = StateIdle
}

func (c *Controller) transition(to FlowState) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !canTransition(c.state, to) {
		return fmt.Errorf("[Controller.transition] %s -> %s: %w", c.state, to, apperrors.ErrIllegalTransition)
	}
	c.state = to
	return nil
}

// fail moves to FAILED and logs err at a level matching its kind.
func (c *Controller) fail(err error) error {
	if terr := c.transition(StateFailed); terr != nil {
		return errors.Join(err, terr)
	}
	ev := c.logger.Error()
	if apperrors.Kind(err) == apperrors.KindUserCancelled {
		ev = c.logger.Info()
	}
	ev.Err(err).Str("kind", string(apperrors.Kind(err))).Msg("oauth sign-in failed")
	return err
}

// SignInWithOAuth runs the full interactive flow for providerID and returns
// the tokens. Only the redirect step honours ctx cancellation.
func (c *Controller) SignInWithOAuth(ctx context.Context, providerID string) (*identity.TokenSet, error) {
	if !c.flowLock.TryLock() {
		return nil, ErrFlowInProgress
	}
	defer c.flowLock.Unlock()
	c.reset()

	if !identity.IsSupported(providerID) {
		return nil, c.fail(apperrors.NewValidationError("provider", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedProvider, providerID)))
	}
	if err := c.transition(StateAwaitingProviderURL); err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()
	state, err := utils.RandomString(32)
	if err != nil {
		return nil, c.fail(apperrors.Wrapf(err, "[Controller.SignInWithOAuth] state"))
	}
	authURL, err := c.provider.AuthorizationURL(ctx, identity.AuthURLRequest{
		Provider:            providerID,
		State:               state,
		CodeVerifier:        verifier,
		SkipBrowserRedirect: true,
	})
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.transition(StateAwaitingUserRedirect); err != nil {
		return nil, err
	}

	redirectURL, err := c.launch(ctx, authURL)
	if err != nil {
		return nil, c.fail(err)
	}
	code, err := codeFromRedirect(redirectURL, state)
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.transition(StateExchangingCode); err != nil {
		return nil, err
	}

	ts, err := c.provider.ExchangeCode(context.WithoutCancel(ctx), code, verifier)
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.transition(StateComplete); err != nil {
		return nil, err
	}
	c.logger.Info().Str("provider", providerID).Str("user_id", ts.User.ID).Msg("oauth sign-in complete")
	return ts, nil
}

func (c *Controller) launch(ctx context.Context, authURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.interactiveTimeout)
	defer cancel()

	redirectURL, err := c.launcher.Launch(ctx, authURL, true)
	switch {
	case err == nil && redirectURL == "":
		return "", apperrors.ErrUserCancelled
	case err == nil:
		return redirectURL, nil
	case errors.Is(err, apperrors.ErrUserCancelled):
		return "", err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", fmt.Errorf("%w: %w", apperrors.ErrUserCancelled, err)
	}
	return "", apperrors.NewTransportError("launch", err)
}

// codeFromRedirect extracts the authorization code from the query, falling
// back to the fragment.
func codeFromRedirect(redirectURL, wantState string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", apperrors.NewValidationError("redirect_url", err)
	}
	params := u.Query()
	if u.Fragment != "" {
		if frag, err := url.ParseQuery(u.Fragment); err == nil {
			for k, v := range frag {
				if _, ok := params[k]; !ok {
					params[k] = v
				}
			}
		}
	}

	if code := params.Get("error"); code != "" {
		return "", apperrors.NewProviderError("authorize", code, params.Get("error_description"), 0, nil)
	}
	if got := params.Get("state"); got != "" && got != wantState {
		return "", apperrors.NewValidationError("state", apperrors.ErrStateMismatch)
	}
	code := params.Get("code")
	if code == "" {
		return "", apperrors.NewValidationError("code", apperrors.ErrMissingAuthorizationCode)
	}
	return code, nil
}

// SignInWithPassword performs the direct password grant. No redirect steps
// are involved so the flow state is untouched.
func (c *Controller) SignInWithPassword(ctx context.Context, email, password string) (*identity.TokenSet, error) {
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("credentials", errors.New("email and password are required"))
	}
	ts, err := c.provider.PasswordGrant(ctx, email, password)
	if err != nil {
		c.logger.Err(err).Str("kind", string(apperrors.Kind(err))).Msg("password sign-in failed")
		return nil, err
	}
	return ts, nil
}
