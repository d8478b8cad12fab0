// Package messaging carries messages between the execution contexts of one
// extension. Contexts share no memory; every message is a JSON envelope.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeAuthStateChanged MessageType = "AUTH_STATE_CHANGED"
	TypeGetAuthState     MessageType = "GET_AUTH_STATE"
	TypeCheckAccess      MessageType = "CHECK_ACCESS"
	TypeRefreshAccess    MessageType = "REFRESH_ACCESS"
	TypeSignOut          MessageType = "SIGN_OUT"
)

// Sender identifies the context a message came from.
type Sender struct {
	ExtensionID string `json:"extension_id"`
	ContextID   string `json:"context_id"`
}

type Message struct {
	Type    MessageType     `json:"type"`
	Sender  Sender          `json:"sender"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload, which may be nil.
func NewMessage(t MessageType, sender Sender, payload any) (Message, error) {
	msg := Message{Type: t, Sender: sender}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("[NewMessage] %s payload: %w", t, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Response is what a receiving context answers.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ErrorResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

// DataResponse encodes v as the response data.
func DataResponse(v any) Response {
	if v == nil {
		return Response{OK: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{OK: true, Data: data}
}

// Decode unmarshals the response data into v.
func (r Response) Decode(v any) error {
	if !r.OK {
		return fmt.Errorf("[Response.Decode] %s", r.Error)
	}
	return json.Unmarshal(r.Data, v)
}

// Handler answers inbound raw messages.
type Handler interface {
	Handle(ctx context.Context, raw []byte) Response
}

type HandlerFunc func(ctx context.Context, raw []byte) Response

func (f HandlerFunc) Handle(ctx context.Context, raw []byte) Response {
	return f(ctx, raw)
}

// Messenger is the asynchronous messaging primitive. Send and Request return
// errors.ErrNoReceiver when no other context is listening, which callers must
// treat as distinct from a transport failure.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
	Request(ctx context.Context, msg Message) (Response, error)
	Listen(h Handler) error
	Close() error
}
