package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	s := testSession()
	now := time.Unix(1700000000, 0)
	ev := session.NewEvent(session.EventSignedIn, s, "popup", now)

	require.NotEmpty(t, ev.ID)
	require.Equal(t, session.EventSignedIn, ev.Kind)
	require.Equal(t, "popup", ev.Origin)
	require.Equal(t, now, ev.Timestamp)
	require.True(t, ev.Valid())

	s.AccessToken = "mutated"
	require.Equal(t, "access-1", ev.Session.AccessToken)

	require.NotEqual(t, ev.ID, session.NewEvent(session.EventSignedIn, s, "popup", now).ID)
}

func TestEventValid(t *testing.T) {
	require.True(t, session.Event{Kind: session.EventSignedOut}.Valid())
	require.False(t, session.Event{Kind: session.EventSignedIn}.Valid())
	require.False(t, session.Event{Kind: session.EventTokenRefreshed, Session: &session.Session{}}.Valid())
	require.False(t, session.Event{Kind: "INITIAL_SESSION"}.Valid())
}

func TestEventJSON(t *testing.T) {
	ev := session.NewEvent(session.EventSignedOut, nil, "background", time.Unix(1, 0).UTC())
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NotContains(t, string(data), `"session"`)

	var back session.Event
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, ev, back)
}
