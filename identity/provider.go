// Package identity talks to the OAuth2/OIDC identity provider on behalf of the
// session coordinator.
package identity

import (
	"context"

	"github.com/jrsteele09/go-session-coordinator/session"
)

// Supported social identity providers.
const (
	Google = "google"
	GitHub = "github"
	Azure  = "azure"
)

// SupportedProviders lists the provider ids accepted by SignInWithOAuth.
func SupportedProviders() []string {
	return []string{Google, GitHub, Azure}
}

// IsSupported reports whether p is one of SupportedProviders.
func IsSupported(p string) bool {
	for _, s := range SupportedProviders() {
		if s == p {
			return true
		}
	}
	return false
}

// AuthURLRequest describes the authorization URL to build.
type AuthURLRequest struct {
	Provider            string
	State               string
	CodeVerifier        string // the S256 challenge is derived from it
	SkipBrowserRedirect bool
}

// TokenSet is the result of any successful grant.
type TokenSet struct {
	User         session.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// Session converts the token set into a new session.
func (t *TokenSet) Session() *session.Session {
	return &session.Session{
		User:         t.User,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
}

// Provider is the identity provider boundary.
type Provider interface {
	AuthorizationURL(ctx context.Context, req AuthURLRequest) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	PasswordGrant(ctx context.Context, email, password string) (*TokenSet, error)

	// SignOut revokes the tokens remotely.
	SignOut(ctx context.Context, accessToken, refreshToken string) error
}
