package session

import (
	"time"
)

// User is the identity attached to a session. It is replaced wholesale on
// sign-in and on profile updates.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Session is the authenticated state shared by every execution context.
// ExpiresAt is the access token expiry in unix seconds.
type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// ExpiresWithin reports whether the access token expires at or before now+d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return s.ExpiresAt-now.Unix() <= int64(d/time.Second)
}

// Expiry returns ExpiresAt as a time.
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Key names an entry in the durable store.
type Key string

const (
	KeySession           Key = "session"
	KeyAccessToken       Key = "access_token"
	KeyUserData          Key = "user_data"
	KeyCatalogCache      Key = "catalog_cache"
	KeyFavorites         Key = "favorites"
	KeyPrompts           Key = "prompts"
	KeyLastSync          Key = "last_sync"
	KeyReadNotifications Key = "read_notifications"
	KeyEntitlementCache  Key = "entitlement_cache"
)

// UserScopedKeys lists every key that must not outlive the signed-in user.
func UserScopedKeys() []Key {
	return []Key{
		KeySession,
		KeyAccessToken,
		KeyUserData,
		KeyCatalogCache,
		KeyFavorites,
		KeyPrompts,
		KeyLastSync,
		KeyReadNotifications,
		KeyEntitlementCache,
	}
}
