// Package broadcast announces auth state transitions to the other execution
// contexts of the extension.
package broadcast

import (
	"context"
	"errors"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/jrsteele09/go-session-coordinator/messaging"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Delivered  Outcome = "delivered"
	NoReceiver Outcome = "no_receiver"
	Failed     Outcome = "failed"
)

// Broadcaster is fire-and-forget: the outcome is reported and logged but a
// failed broadcast never fails the transition that caused it.
type Broadcaster struct {
	messenger messaging.Messenger
	sender    messaging.Sender
	logger    zerolog.Logger
	metrics   metrics.Recorder
}

type Option func(*Broadcaster)

func WithLogger(l zerolog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(b *Broadcaster) {
		b.metrics = r
	}
}

func NewBroadcaster(m messaging.Messenger, sender messaging.Sender, opts ...Option) (*Broadcaster, error) {
	if m == nil {
		return nil, errors.New("[NewBroadcaster] messenger is required")
	}
	if sender.ExtensionID == "" {
		return nil, errors.New("[NewBroadcaster] sender extension id is required")
	}
	b := &Broadcaster{messenger: m, sender: sender, logger: log.Logger, metrics: metrics.Nop{}}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Broadcast sends ev as AUTH_STATE_CHANGED. The absence of any other context
// is expected and only logged at debug.
func (b *Broadcaster) Broadcast(ctx context.Context, ev session.Event) Outcome {
	outcome := b.send(ctx, ev)
	b.metrics.RecordBroadcast(string(outcome))
	return outcome
}

func (b *Broadcaster) send(ctx context.Context, ev session.Event) Outcome {
	msg, err := messaging.NewMessage(messaging.TypeAuthStateChanged, b.sender, ev)
	if err != nil {
		b.logger.Err(err).Str("event_id", ev.ID).Msg("[Broadcaster.Broadcast] encode")
		return Failed
	}

	err = b.messenger.Send(ctx, msg)
	switch {
	case err == nil:
		b.logger.Debug().Str("event", string(ev.Kind)).Str("event_id", ev.ID).Msg("auth state broadcast")
		return Delivered
	case apperrors.Is(err, apperrors.ErrNoReceiver):
		b.logger.Debug().Str("event", string(ev.Kind)).Msg("auth state broadcast had no receiver")
		return NoReceiver
	}
	b.logger.Err(err).Str("event", string(ev.Kind)).Str("event_id", ev.ID).Msg("auth state broadcast failed")
	return Failed
}
