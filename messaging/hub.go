package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
)

// Hub connects the contexts of one process. A message sent by one endpoint is
// delivered synchronously to every other endpoint that is listening.
type Hub struct {
	lock      sync.RWMutex
	endpoints map[string]*HubEndpoint
}

func NewHub() *Hub {
	return &Hub{endpoints: make(map[string]*HubEndpoint)}
}

// Connect registers a context. Connecting an id twice replaces the old endpoint.
func (h *Hub) Connect(contextID string) *HubEndpoint {
	h.lock.Lock()
	defer h.lock.Unlock()
	e := &HubEndpoint{hub: h, id: contextID}
	h.endpoints[contextID] = e
	return e
}

func (h *Hub) receivers(from string) []*HubEndpoint {
	h.lock.RLock()
	defer h.lock.RUnlock()

	out := make([]*HubEndpoint, 0, len(h.endpoints))
	for id, e := range h.endpoints {
		if id != from && e.listening() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (h *Hub) remove(e *HubEndpoint) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.endpoints[e.id] == e {
		delete(h.endpoints, e.id)
	}
}

// HubEndpoint is one context's Messenger on a Hub.
type HubEndpoint struct {
	hub *Hub
	id  string

	lock    sync.RWMutex
	handler Handler
	closed  bool
}

var _ Messenger = (*HubEndpoint)(nil)

func (e *HubEndpoint) listening() bool {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.handler != nil && !e.closed
}

func (e *HubEndpoint) deliver(ctx context.Context, raw []byte) Response {
	e.lock.RLock()
	h := e.handler
	e.lock.RUnlock()
	return h.Handle(ctx, raw)
}

func (e *HubEndpoint) prepare(ctx context.Context, msg Message) ([]byte, []*HubEndpoint, error) {
	e.lock.RLock()
	closed := e.closed
	e.lock.RUnlock()
	if closed {
		return nil, nil, apperrors.ErrMessengerShutdown
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.NewTransportError("messaging.send", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("[HubEndpoint.prepare] encode: %w", err)
	}
	receivers := e.hub.receivers(e.id)
	if len(receivers) == 0 {
		return nil, nil, apperrors.ErrNoReceiver
	}
	return raw, receivers, nil
}

// Send delivers msg to every other listening context.
func (e *HubEndpoint) Send(ctx context.Context, msg Message) error {
	raw, receivers, err := e.prepare(ctx, msg)
	if err != nil {
		return err
	}
	for _, r := range receivers {
		r.deliver(ctx, raw)
	}
	return nil
}

// Request delivers msg to every other listening context and returns the
// first answer.
func (e *HubEndpoint) Request(ctx context.Context, msg Message) (Response, error) {
	raw, receivers, err := e.prepare(ctx, msg)
	if err != nil {
		return Response{}, err
	}
	var first Response
	for i, r := range receivers {
		resp := r.deliver(ctx, raw)
		if i == 0 {
			first = resp
		}
	}
	return first, nil
}

func (e *HubEndpoint) Listen(h Handler) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return apperrors.ErrMessengerShutdown
	}
	e.handler = h
	return nil
}

func (e *HubEndpoint) Close() error {
	e.lock.Lock()
	e.closed = true
	e.lock.Unlock()
	e.hub.remove(e)
	return nil
}
