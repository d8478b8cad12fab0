package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultRequestTimeout = 2 * time.Second

// ConnectNATS dials a connection that never receives its own publications,
// so a context does not answer itself.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("[ConnectNATS] %w", err)
	}
	return nc, nil
}

// NATSMessenger exchanges messages on one subject. Every context subscribes
// to it; a send is a request so that an absent audience is detected through
// the no-responders status.
type NATSMessenger struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
	logger  zerolog.Logger

	lock sync.Mutex
	sub  *nats.Subscription
}

var _ Messenger = (*NATSMessenger)(nil)

type NATSOption func(*NATSMessenger)

func WithRequestTimeout(d time.Duration) NATSOption {
	return func(n *NATSMessenger) {
		n.timeout = d
	}
}

func WithLogger(l zerolog.Logger) NATSOption {
	return func(n *NATSMessenger) {
		n.logger = l
	}
}

func NewNATSMessenger(conn *nats.Conn, subject string, opts ...NATSOption) (*NATSMessenger, error) {
	if conn == nil {
		return nil, errors.New("[NewNATSMessenger] connection is required")
	}
	if subject == "" {
		return nil, errors.New("[NewNATSMessenger] subject is required")
	}
	n := &NATSMessenger{conn: conn, subject: subject, timeout: defaultRequestTimeout, logger: log.Logger}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *NATSMessenger) Send(ctx context.Context, msg Message) error {
	_, err := n.Request(ctx, msg)
	return err
}

func (n *NATSMessenger) Request(ctx context.Context, msg Message) (Response, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Response{}, fmt.Errorf("[NATSMessenger.Request] encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	reply, err := n.conn.RequestWithContext(ctx, n.subject, data)
	if err != nil {
		return Response{}, requestError(err)
	}

	var resp Response
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return Response{}, apperrors.NewTransportError("messaging.request", fmt.Errorf("decode reply: %w", err))
	}
	return resp, nil
}

func requestError(err error) error {
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return apperrors.ErrNoReceiver
	case errors.Is(err, nats.ErrConnectionClosed):
		return apperrors.ErrMessengerShutdown
	}
	return apperrors.NewTransportError("messaging.request", err)
}

// Listen answers every message on the subject with h.
func (n *NATSMessenger) Listen(h Handler) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("[NATSMessenger.Listen] unsubscribe: %w", err)
		}
	}
	sub, err := n.conn.Subscribe(n.subject, func(m *nats.Msg) {
		resp := h.Handle(context.Background(), m.Data)
		data, err := json.Marshal(resp)
		if err != nil {
			n.logger.Err(err).Msg("[NATSMessenger.Listen] encode response")
			return
		}
		if err := m.Respond(data); err != nil {
			n.logger.Err(err).Str("subject", n.subject).Msg("[NATSMessenger.Listen] respond")
		}
	})
	if err != nil {
		return fmt.Errorf("[NATSMessenger.Listen] subscribe: %w", err)
	}
	n.sub = sub
	return nil
}

// Close stops listening. The connection belongs to the caller.
func (n *NATSMessenger) Close() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.sub == nil {
		return nil
	}
	err := n.sub.Unsubscribe()
	n.sub = nil
	return err
}
