package session

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is the kind of auth state transition an Event reports.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is produced exactly once per auth state transition and is never
// persisted. Initial marks the SIGNED_IN emitted when a stored session is
// restored at startup. Origin is the id of the context that produced it.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Session   *Session  `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Initial   bool      `json:"initial,omitempty"`
	Origin    string    `json:"origin,omitempty"`
}

func NewEvent(kind EventKind, s *Session, origin string, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Session:   s.Clone(),
		Timestamp: now,
		Origin:    origin,
	}
}

// Valid reports whether the event carries what its kind requires.
func (e Event) Valid() bool {
	switch e.Kind {
	case EventSignedOut:
		return true
	case EventSignedIn, EventTokenRefreshed, EventUserUpdated:
		return e.Session != nil && e.Session.User.ID != ""
	}
	return false
}
