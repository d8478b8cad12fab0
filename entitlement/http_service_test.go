package entitlement_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-coordinator/entitlement"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newEntitlementServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /entitlements/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.PathValue("id") {
		case "premium-user":
			_, _ = w.Write([]byte(`{"has_access":true,"tier":"premium"}`))
		case "legacy-user":
			_, _ = w.Write([]byte(`{"has_access":false,"tier":"free"}`))
		case "broken":
			_, _ = w.Write([]byte(`{not json`))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPServiceLookup(t *testing.T) {
	srv := newEntitlementServer(t)
	svc, err := entitlement.NewHTTPService(srv.URL+"/", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "user-token"}),
		entitlement.WithRateLimit(100, 10), entitlement.WithTimeout(2*time.Second))
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := svc.Lookup(ctx, "premium-user")
	require.NoError(t, err)
	require.Equal(t, entitlement.Record{UserID: "premium-user", HasAccess: true, Tier: entitlement.TierPremium}, rec)

	rec, err = svc.Lookup(ctx, "legacy-user")
	require.NoError(t, err)
	require.Equal(t, entitlement.TierLite, rec.Tier)

	rec, err = svc.Lookup(ctx, "nobody")
	require.NoError(t, err)
	require.Equal(t, entitlement.DefaultRecord("nobody"), rec)

	_, err = svc.Lookup(ctx, "broken")
	require.Error(t, err)
}

func TestHTTPServiceUnauthorized(t *testing.T) {
	srv := newEntitlementServer(t)
	svc, err := entitlement.NewHTTPService(srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "stale"}))
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), "premium-user")
	require.Error(t, err)
}

func TestHTTPServiceRateLimitHonoursContext(t *testing.T) {
	srv := newEntitlementServer(t)
	svc, err := entitlement.NewHTTPService(srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "user-token"}),
		entitlement.WithRateLimit(0.001, 1))
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), "premium-user")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Lookup(ctx, "premium-user")
	require.Error(t, err)
}

func TestNewHTTPServiceValidation(t *testing.T) {
	_, err := entitlement.NewHTTPService("", oauth2.StaticTokenSource(&oauth2.Token{}))
	require.Error(t, err)
	_, err = entitlement.NewHTTPService("http://x", nil)
	require.Error(t, err)
}
