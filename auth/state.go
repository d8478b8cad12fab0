package auth

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/session"
)

// State is the auth state of one execution context.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateInitializing  State = "INITIALIZING"
	StateAuthenticated State = "AUTHENTICATED"
	StateAnonymous     State = "ANONYMOUS"
)

var stateTransitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateAuthenticated, StateAnonymous},
	StateAuthenticated: {StateAnonymous, StateAuthenticated},
	StateAnonymous:     {StateAuthenticated},
}

// eventSources lists the states each event kind may be produced from, and
// eventTargets the state it leads to.
var (
	eventSources = map[session.EventKind][]State{
		session.EventSignedIn:       {StateInitializing, StateAnonymous, StateAuthenticated},
		session.EventSignedOut:      {StateAuthenticated},
		session.EventTokenRefreshed: {StateAuthenticated},
		session.EventUserUpdated:    {StateAuthenticated},
	}
	eventTargets = map[session.EventKind]State{
		session.EventSignedIn:       StateAuthenticated,
		session.EventSignedOut:      StateAnonymous,
		session.EventTokenRefreshed: StateAuthenticated,
		session.EventUserUpdated:    StateAuthenticated,
	}
)

func contains(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !contains(stateTransitions[from], to) {
		return fmt.Errorf("%s -> %s: %w", from, to, apperrors.ErrIllegalTransition)
	}
	return nil
}

// checkEvent validates that kind may be emitted from state and returns the
// state it leads to.
func checkEvent(from State, kind session.EventKind) (State, error) {
	to, ok := eventTargets[kind]
	if !ok || !contains(eventSources[kind], from) {
		return from, fmt.Errorf("%s while %s: %w", kind, from, apperrors.ErrIllegalTransition)
	}
	return to, checkTransition(from, to)
}
