package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/session"
	"golang.org/x/oauth2"
)

// userClaims is the subset of ID token, access token and userinfo claims the
// coordinator reads.
type userClaims struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func (uc userClaims) user() session.User {
	u := session.User{ID: uc.Sub, Email: uc.Email}
	if t, err := time.Parse(time.RFC3339, uc.CreatedAt); err == nil {
		u.CreatedAt = t
	}
	return u
}

type accessTokenClaims struct {
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	jwt.RegisteredClaims
}

// tokenSet converts an oauth2 token. The user comes from the verified ID token,
// else the access token's own claims, else the userinfo endpoint. When
// requireUser is false a missing identity is not an error.
func (c *Client) tokenSet(ctx context.Context, tok *oauth2.Token, requireUser bool) (*TokenSet, error) {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresAt = tok.Expiry.Unix()
	}

	found, err := c.userFromIDToken(ctx, tok, ts)
	if err != nil {
		return nil, err
	}
	if !found {
		found = c.userFromAccessToken(tok.AccessToken, ts)
	}
	if !found && requireUser {
		u, err := c.userInfo(ctx, tok)
		if err != nil {
			return nil, err
		}
		ts.User = u
		found = true
	}
	if found && ts.User.ID == "" && requireUser {
		return nil, apperrors.NewProviderError("identity", "", "token carries no subject", 0, nil)
	}

	if ts.ExpiresAt == 0 {
		ts.ExpiresAt = c.now().Add(defaultTokenLifetime).Unix()
	}
	return ts, nil
}

func (c *Client) userFromIDToken(ctx context.Context, tok *oauth2.Token, ts *TokenSet) (bool, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" || c.verifier == nil {
		return false, nil
	}

	idToken, err := c.verifier.Verify(oidc.ClientContext(ctx, c.httpClient), raw)
	if err != nil {
		return false, fmt.Errorf("[Client.userFromIDToken] verify: %w", err)
	}
	var claims userClaims
	if err := idToken.Claims(&claims); err != nil {
		return false, fmt.Errorf("[Client.userFromIDToken] claims: %w", err)
	}
	ts.User = claims.user()
	return true, nil
}

// userFromAccessToken reads claims from a JWT access token without verifying
// it. The token came straight from the token endpoint over TLS.
func (c *Client) userFromAccessToken(accessToken string, ts *TokenSet) bool {
	var claims accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return false
	}
	if ts.ExpiresAt == 0 && claims.ExpiresAt != nil {
		ts.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.Subject == "" {
		return false
	}
	ts.User = userClaims{Sub: claims.Subject, Email: claims.Email, CreatedAt: claims.CreatedAt}.user()
	return true
}

func (c *Client) userInfo(ctx context.Context, tok *oauth2.Token) (session.User, error) {
	if c.cfg.UserInfoURL == "" {
		return session.User{}, apperrors.NewProviderError("identity", "", "no identity in token response", 0, nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return session.User{}, fmt.Errorf("[Client.userInfo] %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.User{}, apperrors.NewTransportError("userinfo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return session.User{}, apperrors.NewProviderError("userinfo", "", resp.Status, resp.StatusCode, nil)
	}
	var claims userClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return session.User{}, apperrors.NewTransportError("userinfo", err)
	}
	if claims.Sub == "" {
		return session.User{}, apperrors.NewProviderError("userinfo", "", "userinfo carries no subject", resp.StatusCode, errors.New("missing sub"))
	}
	return claims.user(), nil
}
