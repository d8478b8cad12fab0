package broadcast_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-coordinator/broadcast"
	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/jrsteele09/go-session-coordinator/messaging"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var sender = messaging.Sender{ExtensionID: "ext", ContextID: "background"}

type failingMessenger struct {
	messaging.Messenger
}

func (failingMessenger) Send(context.Context, messaging.Message) error {
	return errors.New("port disconnected")
}

func signedIn() session.Event {
	s := &session.Session{User: session.User{ID: "u1"}, AccessToken: "at", RefreshToken: "rt", ExpiresAt: 100}
	return session.NewEvent(session.EventSignedIn, s, "background", time.Unix(1, 0))
}

func TestNewBroadcasterValidation(t *testing.T) {
	_, err := broadcast.NewBroadcaster(nil, sender)
	require.Error(t, err)
	_, err = broadcast.NewBroadcaster(messaging.NewHub().Connect("x"), messaging.Sender{})
	require.Error(t, err)
}

func TestBroadcastOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	hub := messaging.NewHub()
	background := hub.Connect("background")
	var logs bytes.Buffer
	b, err := broadcast.NewBroadcaster(background, sender,
		broadcast.WithLogger(zerolog.New(&logs).Level(zerolog.InfoLevel)),
		broadcast.WithMetrics(collector))
	require.NoError(t, err)

	t.Run("no receiver", func(t *testing.T) {
		require.Equal(t, broadcast.NoReceiver, b.Broadcast(ctx, signedIn()))
		require.Empty(t, logs.String())
	})

	t.Run("delivered", func(t *testing.T) {
		var got session.Event
		popup := hub.Connect("popup")
		require.NoError(t, popup.Listen(messaging.HandlerFunc(func(_ context.Context, raw []byte) messaging.Response {
			var msg messaging.Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			require.Equal(t, messaging.TypeAuthStateChanged, msg.Type)
			require.Equal(t, sender, msg.Sender)
			require.NoError(t, json.Unmarshal(msg.Payload, &got))
			return messaging.DataResponse(nil)
		})))

		ev := signedIn()
		require.Equal(t, broadcast.Delivered, b.Broadcast(ctx, ev))
		require.Equal(t, ev.ID, got.ID)
		require.Equal(t, "rt", got.Session.RefreshToken)
	})

	t.Run("failed", func(t *testing.T) {
		fb, err := broadcast.NewBroadcaster(failingMessenger{}, sender,
			broadcast.WithLogger(zerolog.New(&logs)), broadcast.WithMetrics(collector))
		require.NoError(t, err)
		require.Equal(t, broadcast.Failed, fb.Broadcast(ctx, signedIn()))
		require.Contains(t, logs.String(), "port disconnected")
	})

	expected := `
# HELP coordinator_broadcasts_total Auth state broadcasts by outcome.
# TYPE coordinator_broadcasts_total counter
coordinator_broadcasts_total{outcome="delivered"} 1
coordinator_broadcasts_total{outcome="failed"} 1
coordinator_broadcasts_total{outcome="no_receiver"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "coordinator_broadcasts_total"))
}
