package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-session-coordinator/entitlement"
	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Coordinator is the part of the session manager the router dispatches to.
type Coordinator interface {
	ApplyRemoteEvent(ev session.Event) error
	CurrentUser() *session.User
	IsAuthenticated() bool
	CheckAccess(ctx context.Context) entitlement.Record
	RefreshAccess(ctx context.Context) entitlement.Record
	SignOut(ctx context.Context) error
}

// AuthState answers GET_AUTH_STATE.
type AuthState struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
}

// Router handles the inbound messages of one context.
type Router struct {
	extensionID string
	coord       Coordinator
	logger      zerolog.Logger
}

var _ Handler = (*Router)(nil)

type RouterOption func(*Router)

func WithRouterLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter accepts messages only from senders of extensionID.
func NewRouter(extensionID string, coord Coordinator, opts ...RouterOption) (*Router, error) {
	if extensionID == "" {
		return nil, errors.New("[NewRouter] extension id is required")
	}
	if coord == nil {
		return nil, errors.New("[NewRouter] coordinator is required")
	}
	r := &Router{extensionID: extensionID, coord: coord, logger: log.Logger}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// envelope defers decoding of type so a missing or non-string type can be
// told apart from an unknown one.
type envelope struct {
	Type    json.RawMessage `json:"type"`
	Sender  Sender          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

func (r *Router) Handle(ctx context.Context, raw []byte) Response {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return r.reject(fmt.Errorf("%w: %v", apperrors.ErrMalformedMessage, err))
	}
	if env.Sender.ExtensionID != r.extensionID {
		r.logger.Warn().Str("sender", env.Sender.ExtensionID).Msg("rejected message from foreign sender")
		return ErrorResponse(apperrors.ErrForeignSender)
	}
	var msgType string
	if len(env.Type) == 0 || json.Unmarshal(env.Type, &msgType) != nil || msgType == "" {
		return r.reject(fmt.Errorf("%w: type must be a non-empty string", apperrors.ErrMalformedMessage))
	}

	switch MessageType(msgType) {
	case TypeAuthStateChanged:
		var ev session.Event
		if err := json.Unmarshal(env.Payload, &ev); err != nil || !ev.Valid() {
			return r.reject(fmt.Errorf("%w: invalid auth event", apperrors.ErrMalformedMessage))
		}
		if err := r.coord.ApplyRemoteEvent(ev); err != nil {
			r.logger.Err(err).Str("event", string(ev.Kind)).Str("event_id", ev.ID).Msg("apply remote auth event")
			return ErrorResponse(err)
		}
		return DataResponse(nil)
	case TypeGetAuthState:
		return DataResponse(AuthState{Authenticated: r.coord.IsAuthenticated(), User: r.coord.CurrentUser()})
	case TypeCheckAccess:
		return DataResponse(r.coord.CheckAccess(ctx))
	case TypeRefreshAccess:
		return DataResponse(r.coord.RefreshAccess(ctx))
	case TypeSignOut:
		if err := r.coord.SignOut(ctx); err != nil {
			return ErrorResponse(err)
		}
		return DataResponse(nil)
	}
	return r.reject(fmt.Errorf("%w: %q", apperrors.ErrUnknownMessage, msgType))
}

func (r *Router) reject(err error) Response {
	r.logger.Warn().Err(err).Msg("rejected inbound message")
	return ErrorResponse(err)
}
