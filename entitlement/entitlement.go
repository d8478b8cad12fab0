// Package entitlement caches whether the signed-in user has access, and at
// which tier, to the premium features.
package entitlement

import (
	"context"
	"strings"
	"time"
)

type Tier string

const (
	TierLite    Tier = "lite"
	TierPremium Tier = "premium"
)

// ParseTier maps service tier names onto the two known tiers. Anything that
// is not premium, including legacy names such as "free", is lite.
func ParseTier(s string) Tier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierPremium)) {
		return TierPremium
	}
	return TierLite
}

// Record is the cached entitlement of one user. ExpiresAt is when the cache
// entry goes stale, not when the subscription ends.
type Record struct {
	UserID    string    `json:"user_id"`
	HasAccess bool      `json:"has_access"`
	Tier      Tier      `json:"tier"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DefaultRecord is what callers see when nothing better is known.
func DefaultRecord(userID string) Record {
	return Record{UserID: userID, HasAccess: false, Tier: TierLite}
}

// Service is the remote entitlement lookup.
type Service interface {
	Lookup(ctx context.Context, userID string) (Record, error)
}
