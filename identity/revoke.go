package identity

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
)

// SignOut revokes the refresh token then the access token (RFC 7009). Both are
// attempted even if the first fails.
func (c *Client) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	if c.cfg.RevokeURL == "" {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	var errs []error
	if refreshToken != "" {
		errs = append(errs, c.revoke(ctx, refreshToken, "refresh_token"))
	}
	if accessToken != "" {
		errs = append(errs, c.revoke(ctx, accessToken, "access_token"))
	}
	return errors.Join(errs...)
}

func (c *Client) revoke(ctx context.Context, token, tokenTypeHint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.Wrapf(err, "[Client.revoke] %s", tokenTypeHint)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportError("revoke", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewProviderError("revoke", "", resp.Status, resp.StatusCode, nil)
	}
	return nil
}
