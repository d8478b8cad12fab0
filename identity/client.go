package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-coordinator/internal/config"
	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Providers that omit expires_in and issue opaque access tokens get this lifetime.
const defaultTokenLifetime = time.Hour

var _ Provider = (*Client)(nil)

// ClientConfig holds the identity provider endpoints and client registration.
type ClientConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	UserInfoURL  string
	JWKSURL      string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
}

// ClientConfigFrom copies identity settings out of the application config.
func ClientConfigFrom(cfg config.IdentityConfig) ClientConfig {
	return ClientConfig{
		IssuerURL:    cfg.GetIssuerURL(),
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		AuthURL:      cfg.GetAuthURL(),
		TokenURL:     cfg.GetTokenURL(),
		RevokeURL:    cfg.GetRevokeURL(),
		UserInfoURL:  cfg.GetUserInfoURL(),
		JWKSURL:      cfg.GetJWKSURL(),
		RedirectURL:  cfg.GetRedirectURL(),
		Scopes:       cfg.GetScopes(),
		Timeout:      cfg.GetNetworkTimeout(),
	}
}

// Client is the OAuth2/OIDC implementation of Provider.
type Client struct {
	cfg        ClientConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	verifier   *oidc.IDTokenVerifier
	now        func() time.Time
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the bounded default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithVerifier sets the ID token verifier, overriding JWKSURL.
func WithVerifier(v *oidc.IDTokenVerifier) Option {
	return func(c *Client) {
		c.verifier = v
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[NewClient] client id is required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("[NewClient] auth and token URLs are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		cfg:    cfg,
		now:    time.Now,
		logger: log.Logger,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if c.verifier == nil && cfg.JWKSURL != "" {
		keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), c.httpClient), cfg.JWKSURL)
		c.verifier = oidc.NewVerifier(cfg.IssuerURL, keySet, &oidc.Config{ClientID: cfg.ClientID, Now: c.now})
	}
	return c, nil
}

// AuthorizationURL builds the PKCE authorization URL for a social provider.
func (c *Client) AuthorizationURL(_ context.Context, req AuthURLRequest) (string, error) {
	if !IsSupported(req.Provider) {
		return "", apperrors.NewValidationError("provider", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedProvider, req.Provider))
	}
	if req.CodeVerifier == "" {
		return "", apperrors.NewValidationError("code_verifier", errors.New("code verifier is required"))
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(req.CodeVerifier),
		oauth2.SetAuthURLParam("provider", req.Provider),
		oauth2.AccessTypeOffline,
	}
	if req.SkipBrowserRedirect {
		opts = append(opts, oauth2.SetAuthURLParam("skip_http_redirect", "true"))
	}
	return c.oauth.AuthCodeURL(req.State, opts...), nil
}

func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, c.grantError("exchange", err)
	}
	return c.tokenSet(ctx, tok, true)
}

func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*TokenSet, error) {
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("credentials", errors.New("email and password are required"))
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	tok, err := c.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, c.grantError("password", err)
	}
	ts, err := c.tokenSet(ctx, tok, true)
	if err != nil {
		return nil, err
	}
	if ts.User.Email == "" {
		ts.User.Email = email
	}
	return ts, nil
}

// Refresh redeems refreshToken. The returned refresh token is the rotated one
// when the provider rotates, otherwise the one passed in. User is only set when
// the provider returned an ID token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrNoRefreshToken
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, c.grantError("refresh", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return c.tokenSet(ctx, tok, false)
}

// bound applies the network timeout and routes oauth2 through our HTTP client.
func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) grantError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		code, desc := re.ErrorCode, re.ErrorDescription
		if code == "" && desc == "" {
			desc = http.StatusText(status)
		}
		return apperrors.NewProviderError(op, code, desc, status, err)
	}
	return apperrors.NewTransportError(op, err)
}
