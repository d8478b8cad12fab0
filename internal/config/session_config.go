package config

import "time"

type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetRefreshLookahead() time.Duration
}

type Session struct {
	src source
}

var _ SessionConfig = Session{}

func (s Session) GetRefreshInterval() time.Duration {
	return s.src.getDuration("SESSION_REFRESH_INTERVAL", 30*time.Minute)
}

func (s Session) GetRefreshLookahead() time.Duration {
	return s.src.getDuration("SESSION_REFRESH_LOOKAHEAD", 5*time.Minute)
}
