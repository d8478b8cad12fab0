package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-coordinator/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c := config.New()

	require.Equal(t, 30*time.Minute, c.GetRefreshInterval())
	require.Equal(t, 5*time.Minute, c.GetRefreshLookahead())
	require.Equal(t, 10*time.Minute, c.GetEntitlementTTL())
	require.Equal(t, 10*time.Second, c.GetNetworkTimeout())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, c.GetScopes())
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("SESSION_REFRESH_INTERVAL", "90s")
	t.Setenv("IDENTITY_SCOPES", "openid,email")
	t.Setenv("IDENTITY_ISSUER_URL", "https://id.example.com")
	t.Setenv("ENTITLEMENT_TTL", "not-a-duration")

	c := config.New()

	require.Equal(t, 90*time.Second, c.GetRefreshInterval())
	require.Equal(t, []string{"openid", "email"}, c.GetScopes())
	require.Equal(t, "https://id.example.com/oauth2/token", c.GetTokenURL())
	require.Equal(t, 10*time.Minute, c.GetEntitlementTTL())
}

func TestLoad_FileBelowEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
CONTEXT_ID: panel
STORE_BACKEND: redis
ENTITLEMENT_BURST: 7
IDENTITY_SCOPES:
  - openid
  - offline_access
MESSAGING_BACKEND: nats
`), 0o600))
	t.Setenv("MESSAGING_BACKEND", "hub")

	c, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "panel", c.GetContextID())
	require.Equal(t, "redis", c.GetStoreBackend())
	require.Equal(t, 7, c.GetEntitlementBurst())
	require.Equal(t, []string{"openid", "offline_access"}, c.GetScopes())
	require.Equal(t, "hub", c.GetMessagingBackend())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "[config.Load] read")
}
