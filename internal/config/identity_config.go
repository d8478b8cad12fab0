package config

import "time"

type IdentityConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetAuthURL() string
	GetTokenURL() string
	GetRevokeURL() string
	GetUserInfoURL() string
	GetJWKSURL() string
	GetRedirectURL() string
	GetCallbackAddr() string
	GetScopes() []string
	GetNetworkTimeout() time.Duration
	GetInteractiveTimeout() time.Duration
}

type Identity struct {
	src source
}

var _ IdentityConfig = Identity{}

func (i Identity) GetIssuerURL() string {
	return i.src.get("IDENTITY_ISSUER_URL", "http://localhost:8080")
}

func (i Identity) GetClientID() string {
	return i.src.get("IDENTITY_CLIENT_ID", "session-coordinator")
}

// GetClientSecret is empty for public clients, which rely on PKCE alone.
func (i Identity) GetClientSecret() string {
	return i.src.get("IDENTITY_CLIENT_SECRET", "")
}

func (i Identity) GetAuthURL() string {
	return i.src.get("IDENTITY_AUTH_URL", i.GetIssuerURL()+"/oauth2/authorize")
}

func (i Identity) GetTokenURL() string {
	return i.src.get("IDENTITY_TOKEN_URL", i.GetIssuerURL()+"/oauth2/token")
}

func (i Identity) GetRevokeURL() string {
	return i.src.get("IDENTITY_REVOKE_URL", i.GetIssuerURL()+"/oauth2/revoke")
}

func (i Identity) GetUserInfoURL() string {
	return i.src.get("IDENTITY_USERINFO_URL", i.GetIssuerURL()+"/oauth2/userinfo")
}

// GetJWKSURL enables ID token signature verification when set.
func (i Identity) GetJWKSURL() string {
	return i.src.get("IDENTITY_JWKS_URL", "")
}

func (i Identity) GetRedirectURL() string {
	return i.src.get("IDENTITY_REDIRECT_URL", "http://127.0.0.1:53682/callback")
}

// GetCallbackAddr is where the loopback redirect capture listens.
func (i Identity) GetCallbackAddr() string {
	return i.src.get("IDENTITY_CALLBACK_ADDR", "127.0.0.1:53682")
}

func (i Identity) GetScopes() []string {
	return i.src.getList("IDENTITY_SCOPES", []string{"openid", "profile", "email", "offline_access"})
}

func (i Identity) GetNetworkTimeout() time.Duration {
	return i.src.getDuration("IDENTITY_NETWORK_TIMEOUT", 10*time.Second)
}

func (i Identity) GetInteractiveTimeout() time.Duration {
	return i.src.getDuration("IDENTITY_INTERACTIVE_TIMEOUT", 5*time.Minute)
}
