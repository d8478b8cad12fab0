package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var _ Service = (*HTTPService)(nil)

// HTTPService looks entitlements up at GET {base}/entitlements/{userID},
// authenticated with the user's bearer token.
type HTTPService struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type HTTPOption func(*HTTPService)

// WithRateLimit throttles outgoing lookups.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(s *HTTPService) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPService) {
		s.client.Timeout = d
	}
}

// NewHTTPService reads a fresh token from tokens on every request.
func NewHTTPService(baseURL string, tokens oauth2.TokenSource, opts ...HTTPOption) (*HTTPService, error) {
	if baseURL == "" {
		return nil, errors.New("[NewHTTPService] base URL is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewHTTPService] token source is required")
	}
	s := &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &oauth2.Transport{Source: tokens, Base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type lookupResponse struct {
	HasAccess bool   `json:"has_access"`
	Tier      string `json:"tier"`
}

func (s *HTTPService) Lookup(ctx context.Context, userID string) (Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Record{}, fmt.Errorf("[HTTPService.Lookup] rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/entitlements/"+url.PathEscape(userID), nil)
	if err != nil {
		return Record{}, fmt.Errorf("[HTTPService.Lookup] %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("[HTTPService.Lookup] %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// No subscription on file.
		return DefaultRecord(userID), nil
	default:
		return Record{}, fmt.Errorf("[HTTPService.Lookup] unexpected status %s", resp.Status)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Record{}, fmt.Errorf("[HTTPService.Lookup] decode: %w", err)
	}
	return Record{UserID: userID, HasAccess: body.HasAccess, Tier: ParseTier(body.Tier)}, nil
}
