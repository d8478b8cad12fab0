// Package auth owns the session of one execution context: it is the only
// writer of the persisted session and the source of every auth event.
package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-coordinator/broadcast"
	"github.com/jrsteele09/go-session-coordinator/entitlement"
	"github.com/jrsteele09/go-session-coordinator/identity"
	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLookahead      = 5 * time.Minute
	defaultRefreshTimeout = 30 * time.Second
	defaultSignOutTimeout = 10 * time.Second
)

// SignInFlow performs the interactive and password sign-in grants.
type SignInFlow interface {
	SignInWithOAuth(ctx context.Context, provider string) (*identity.TokenSet, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.TokenSet, error)
}

// SessionStore is the durable session store.
type SessionStore interface {
	Load(ctx context.Context) *session.Session
	Save(ctx context.Context, s *session.Session) error
	Clear(ctx context.Context, keys ...session.Key) error
}

// Broadcaster announces local transitions to other contexts.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev session.Event) broadcast.Outcome
}

// EntitlementCache is the per-user entitlement cache.
type EntitlementCache interface {
	CheckAccess(ctx context.Context, userID string) entitlement.Record
	Invalidate(userID string)
	Clear()
}

// Listener receives every auth event of this context, local or remote.
type Listener func(ev session.Event)

// Deps are the required collaborators of a Manager.
type Deps struct {
	Provider     identity.Provider
	Flow         SignInFlow
	Store        SessionStore
	Broadcaster  Broadcaster
	Entitlements EntitlementCache
}

type Manager struct {
	provider     identity.Provider
	flow         SignInFlow
	store        SessionStore
	broadcaster  Broadcaster
	entitlements EntitlementCache

	nowTime        func() time.Time
	logger         zerolog.Logger
	metrics        metrics.Recorder
	origin         string
	lookahead      time.Duration
	refreshTimeout time.Duration
	signOutTimeout time.Duration

	// writeLock serialises transitions; lock guards the fields below it.
	// emitLock keeps events in transition order.
	writeLock sync.Mutex
	emitLock  sync.Mutex
	lock      sync.RWMutex
	state     State
	session   *session.Session
	// generation changes whenever the session is replaced or removed.
	generation uint64

	// outbox holds events waiting to be broadcast, in emit order. At most
	// one caller drains it at a time and no other lock is held meanwhile.
	outboxLock sync.Mutex
	outbox     []session.Event
	draining   bool

	listenerLock sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	refreshGroup singleflight.Group
}

type Option func(*Manager)

func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithOrigin names this context in the events it emits.
func WithOrigin(contextID string) Option {
	return func(m *Manager) {
		m.origin = contextID
	}
}

// WithLookahead sets how close to expiry CheckAuthStatus refreshes.
func WithLookahead(d time.Duration) Option {
	return func(m *Manager) {
		m.lookahead = d
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

func WithSignOutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.signOutTimeout = d
	}
}

func NewManager(deps Deps, opts ...Option) (*Manager, error) {
	if deps.Provider == nil {
		return nil, errors.New("[NewManager] identity provider is required")
	}
	if deps.Flow == nil {
		return nil, errors.New("[NewManager] sign-in flow is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[NewManager] session store is required")
	}
	if deps.Broadcaster == nil {
		return nil, errors.New("[NewManager] broadcaster is required")
	}
	if deps.Entitlements == nil {
		return nil, errors.New("[NewManager] entitlement cache is required")
	}

	m := &Manager{
		provider:       deps.Provider,
		flow:           deps.Flow,
		store:          deps.Store,
		broadcaster:    deps.Broadcaster,
		entitlements:   deps.Entitlements,
		nowTime:        time.Now,
		logger:         log.Logger,
		metrics:        metrics.Nop{},
		lookahead:      DefaultLookahead,
		refreshTimeout: defaultRefreshTimeout,
		signOutTimeout: defaultSignOutTimeout,
		state:          StateUninitialized,
		listeners:      make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current auth state.
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

func (m *Manager) IsAuthenticated() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session != nil
}

// CurrentSession returns a copy of the session, or nil.
func (m *Manager) CurrentSession() *session.Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session.Clone()
}

func (m *Manager) CurrentUser() *session.User {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.session == nil {
		return nil
	}
	u := m.session.User
	return &u
}

// AccessToken returns the current access token, or "" when anonymous.
func (m *Manager) AccessToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// OnAuthStateChange registers l and returns a function that removes it.
func (m *Manager) OnAuthStateChange(l Listener) (unsubscribe func()) {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenerLock.Lock()
			defer m.listenerLock.Unlock()
			delete(m.listeners, id)
		})
	}
}

func (m *Manager) notify(ev session.Event) {
	m.listenerLock.RLock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.listenerLock.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// emit notifies local listeners and queues ev for the other contexts.
// INITIAL events stay local; the other contexts restore the same session
// from the store. emitLock must be held.
func (m *Manager) emit(ev session.Event) {
	m.logger.Info().Str("event", string(ev.Kind)).Str("event_id", ev.ID).Bool("initial", ev.Initial).Msg("auth state changed")
	m.notify(ev)
	if ev.Initial {
		return
	}
	m.outboxLock.Lock()
	m.outbox = append(m.outbox, ev)
	m.outboxLock.Unlock()
}

// drainOutbox broadcasts queued events in order. If another caller is
// already draining, it will deliver the events queued here as well.
func (m *Manager) drainOutbox(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	m.outboxLock.Lock()
	if m.draining {
		m.outboxLock.Unlock()
		return
	}
	m.draining = true
	for len(m.outbox) > 0 {
		ev := m.outbox[0]
		m.outbox = m.outbox[1:]
		m.outboxLock.Unlock()
		m.broadcaster.Broadcast(ctx, ev)
		m.outboxLock.Lock()
	}
	m.draining = false
	m.outboxLock.Unlock()
}

// transitionLocked applies kind to the in-memory state. lock must be held.
func (m *Manager) transitionLocked(kind session.EventKind, s *session.Session) (session.Event, error) {
	to, err := checkEvent(m.state, kind)
	if err != nil {
		return session.Event{}, err
	}
	if kind == session.EventSignedIn || kind == session.EventSignedOut {
		m.generation++
	}
	m.state = to
	m.session = s.Clone()
	return session.NewEvent(kind, s, m.origin, m.nowTime()), nil
}
