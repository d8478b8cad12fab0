package auth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-coordinator/auth"
	"github.com/jrsteele09/go-session-coordinator/broadcast"
	"github.com/jrsteele09/go-session-coordinator/entitlement"
	"github.com/jrsteele09/go-session-coordinator/entitlement/servicefake"
	"github.com/jrsteele09/go-session-coordinator/identity/providerfake"
	"github.com/jrsteele09/go-session-coordinator/messaging"
	"github.com/jrsteele09/go-session-coordinator/oauthflow"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/jrsteele09/go-session-coordinator/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testExtensionID = "ext"
	aliceEmail      = "alice@example.com"
	aliceID         = "user-alice@example.com"
	bobEmail        = "bob@example.com"
	bobID           = "user-bob@example.com"
)

type testClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *testClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// flakyKV fails writes on demand.
type flakyKV struct {
	storage.KV
	failSet    atomic.Bool
	failRemove atomic.Bool
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet.Load() {
		return errors.New("quota exceeded")
	}
	return f.KV.Set(ctx, key, value)
}

func (f *flakyKV) Remove(ctx context.Context, keys ...string) error {
	if f.failRemove.Load() {
		return errors.New("store unavailable")
	}
	return f.KV.Remove(ctx, keys...)
}

type eventLog struct {
	lock   sync.Mutex
	events []session.Event
}

func (l *eventLog) add(ev session.Event) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []session.Event {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]session.Event(nil), l.events...)
}

func (l *eventLog) kinds() []session.EventKind {
	var kinds []session.EventKind
	for _, ev := range l.all() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// env is what the contexts of one extension share: the identity provider,
// the durable store, the message bus and the entitlement service.
type env struct {
	t            *testing.T
	clock        *testClock
	provider     *providerfake.FakeProvider
	kv           *flakyKV
	hub          *messaging.Hub
	entitlements *servicefake.FakeService
	launch       oauthflow.RedirectLauncherFunc
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := &testClock{now: time.Unix(1700000000, 0)}
	p := providerfake.NewFakeProvider()
	p.Now = clk.Now

	svc := servicefake.NewFakeService()
	svc.Set(aliceID, true, entitlement.TierPremium)
	svc.Set(bobID, false, entitlement.TierLite)

	return &env{
		t:            t,
		clock:        clk,
		provider:     p,
		kv:           &flakyKV{KV: storage.NewMemoryKV()},
		hub:          messaging.NewHub(),
		entitlements: svc,
		launch: func(ctx context.Context, authURL string, _ bool) (string, error) {
			u, err := url.Parse(authURL)
			if err != nil {
				return "", err
			}
			return "http://127.0.0.1:53682/callback?code=the-code&state=" + u.Query().Get("state"), nil
		},
	}
}

// peer is one execution context.
type peer struct {
	id       string
	manager  *auth.Manager
	store    *session.Store
	cache    *entitlement.Cache
	events   *eventLog
	endpoint *messaging.HubEndpoint
}

func (e *env) newPeer(contextID string, opts ...auth.Option) *peer {
	t := e.t
	t.Helper()
	logger := zerolog.Nop()

	store, err := session.NewStore(e.kv, session.WithLogger(logger))
	require.NoError(t, err)

	launcher := oauthflow.RedirectLauncherFunc(func(ctx context.Context, authURL string, interactive bool) (string, error) {
		return e.launch(ctx, authURL, interactive)
	})
	flow, err := oauthflow.NewController(e.provider, launcher, oauthflow.WithLogger(logger))
	require.NoError(t, err)

	cache, err := entitlement.NewCache(e.entitlements, entitlement.WithNowTime(e.clock.Now), entitlement.WithLogger(logger))
	require.NoError(t, err)

	endpoint := e.hub.Connect(contextID)
	t.Cleanup(func() { _ = endpoint.Close() })
	b, err := broadcast.NewBroadcaster(endpoint, messaging.Sender{ExtensionID: testExtensionID, ContextID: contextID}, broadcast.WithLogger(logger))
	require.NoError(t, err)

	m, err := auth.NewManager(auth.Deps{
		Provider:     e.provider,
		Flow:         flow,
		Store:        store,
		Broadcaster:  b,
		Entitlements: cache,
	}, append([]auth.Option{
		auth.WithNowTime(e.clock.Now),
		auth.WithLogger(logger),
		auth.WithOrigin(contextID),
	}, opts...)...)
	require.NoError(t, err)

	router, err := messaging.NewRouter(testExtensionID, m, messaging.WithRouterLogger(logger))
	require.NoError(t, err)
	require.NoError(t, endpoint.Listen(router))

	events := &eventLog{}
	m.OnAuthStateChange(events.add)

	return &peer{id: contextID, manager: m, store: store, cache: cache, events: events, endpoint: endpoint}
}

// initialized returns a peer that has completed Initialize.
func (e *env) initialized(contextID string, opts ...auth.Option) *peer {
	e.t.Helper()
	p := e.newPeer(contextID, opts...)
	require.NoError(e.t, p.manager.Initialize(context.Background()))
	return p
}

// signedIn returns an initialized peer signed in as alice.
func (e *env) signedIn(contextID string, opts ...auth.Option) *peer {
	e.t.Helper()
	p := e.initialized(contextID, opts...)
	require.NoError(e.t, p.manager.SignInWithPassword(context.Background(), aliceEmail, "pw"))
	return p
}
