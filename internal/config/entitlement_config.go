package config

import "time"

type EntitlementConfig interface {
	GetEntitlementURL() string
	GetEntitlementTTL() time.Duration
	GetEntitlementRate() float64
	GetEntitlementBurst() int
}

type Entitlement struct {
	src source
}

var _ EntitlementConfig = Entitlement{}

func (e Entitlement) GetEntitlementURL() string {
	return e.src.get("ENTITLEMENT_URL", "http://localhost:8081")
}

func (e Entitlement) GetEntitlementTTL() time.Duration {
	return e.src.getDuration("ENTITLEMENT_TTL", 10*time.Minute)
}

// GetEntitlementRate is the sustained lookup rate in requests per second.
func (e Entitlement) GetEntitlementRate() float64 {
	return e.src.getFloat("ENTITLEMENT_RATE", 1)
}

func (e Entitlement) GetEntitlementBurst() int {
	return e.src.getInt("ENTITLEMENT_BURST", 3)
}
