package main

import (
	"errors"
	"fmt"

	"github.com/jrsteele09/go-session-coordinator/auth"
	"github.com/jrsteele09/go-session-coordinator/broadcast"
	"github.com/jrsteele09/go-session-coordinator/entitlement"
	"github.com/jrsteele09/go-session-coordinator/identity"
	"github.com/jrsteele09/go-session-coordinator/internal/config"
	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/jrsteele09/go-session-coordinator/messaging"
	"github.com/jrsteele09/go-session-coordinator/oauthflow"
	"github.com/jrsteele09/go-session-coordinator/oauthflow/loopback"
	"github.com/jrsteele09/go-session-coordinator/refresh"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/jrsteele09/go-session-coordinator/storage"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// coordinator is one fully wired execution context.
type coordinator struct {
	manager   *auth.Manager
	scheduler *refresh.Scheduler
	messenger messaging.Messenger
	closers   []func() error
	logger    zerolog.Logger
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func newCoordinator(cfg config.Config, contextID string, logger zerolog.Logger, recorder metrics.Recorder) (c *coordinator, returnError error) {
	c = &coordinator{logger: logger}
	defer func() {
		if returnError != nil {
			_ = c.Close()
		}
	}()

	kv, err := c.newKV(cfg)
	if err != nil {
		return nil, err
	}
	storeOpts := []session.StoreOption{session.WithLogger(logger)}
	if key := cfg.GetSealKey(); key != "" {
		sealer, err := storage.NewSealerFromHex(key)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, session.WithSealer(sealer))
	}
	store, err := session.NewStore(kv, storeOpts...)
	if err != nil {
		return nil, err
	}

	client, err := identity.NewClient(identity.ClientConfigFrom(cfg), identity.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	launcher, err := loopback.NewLauncher(cfg.GetCallbackAddr(), loopback.CallbackPath(cfg.GetRedirectURL()), loopback.BrowserOpener, loopback.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	flow, err := oauthflow.NewController(client, launcher,
		oauthflow.WithInteractiveTimeout(cfg.GetInteractiveTimeout()),
		oauthflow.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	messenger, err := c.newMessenger(cfg, contextID)
	if err != nil {
		return nil, err
	}
	c.messenger = messenger
	broadcaster, err := broadcast.NewBroadcaster(c.messenger,
		messaging.Sender{ExtensionID: cfg.GetExtensionID(), ContextID: contextID},
		broadcast.WithLogger(logger),
		broadcast.WithMetrics(recorder),
	)
	if err != nil {
		return nil, err
	}

	// The entitlement service authenticates with the manager's access
	// token, and the manager needs the cache; bind the token source late.
	var manager *auth.Manager
	tokens := tokenSourceFunc(func() (*oauth2.Token, error) { return manager.Token() })
	service, err := entitlement.NewHTTPService(cfg.GetEntitlementURL(), tokens,
		entitlement.WithRateLimit(cfg.GetEntitlementRate(), cfg.GetEntitlementBurst()),
		entitlement.WithTimeout(cfg.GetNetworkTimeout()),
	)
	if err != nil {
		return nil, err
	}
	cache, err := entitlement.NewCache(service,
		entitlement.WithTTL(cfg.GetEntitlementTTL()),
		entitlement.WithLogger(logger),
		entitlement.WithMetrics(recorder),
	)
	if err != nil {
		return nil, err
	}

	manager, err = auth.NewManager(auth.Deps{
		Provider:     client,
		Flow:         flow,
		Store:        store,
		Broadcaster:  broadcaster,
		Entitlements: cache,
	},
		auth.WithLogger(logger),
		auth.WithMetrics(recorder),
		auth.WithOrigin(contextID),
		auth.WithLookahead(cfg.GetRefreshLookahead()),
	)
	if err != nil {
		return nil, err
	}
	c.manager = manager

	router, err := messaging.NewRouter(cfg.GetExtensionID(), manager, messaging.WithRouterLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := c.messenger.Listen(router); err != nil {
		return nil, fmt.Errorf("[newCoordinator] listen: %w", err)
	}

	if c.scheduler, err = refresh.NewScheduler(manager, refresh.WithLogger(logger)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *coordinator) newKV(cfg config.StoreConfig) (storage.KV, error) {
	switch backend := cfg.GetStoreBackend(); backend {
	case "memory":
		return storage.NewMemoryKV(), nil
	case "file":
		return storage.NewFileKV(cfg.GetStorePath())
	case "redis":
		kv, client, err := storage.NewRedisKVFromURL(cfg.GetRedisURL(), storage.WithKeyPrefix(cfg.GetStoreKeyPrefix()))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		return kv, nil
	default:
		return nil, fmt.Errorf("[newKV] unknown store backend %q", backend)
	}
}

// newMessenger connects this context to its peers. The hub only reaches
// contexts inside this process; NATS reaches every process on the subject.
func (c *coordinator) newMessenger(cfg config.Config, contextID string) (messaging.Messenger, error) {
	switch backend := cfg.GetMessagingBackend(); backend {
	case "hub":
		c.logger.Warn().Str("context_id", contextID).Msg("hub messaging only reaches contexts in this process, set MESSAGING_BACKEND=nats to share auth events across processes")
		return messaging.NewHub().Connect(contextID), nil
	case "nats":
		conn, err := messaging.ConnectNATS(cfg.GetNATSURL(), cfg.GetAppName()+"-"+contextID)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error {
			conn.Close()
			return nil
		})
		m, err := messaging.NewNATSMessenger(conn, cfg.GetMessagingSubject(),
			messaging.WithRequestTimeout(cfg.GetNetworkTimeout()),
			messaging.WithLogger(c.logger),
		)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("[newMessenger] unknown messaging backend %q", backend)
	}
}

// Close stops the scheduler and releases connections, newest first.
func (c *coordinator) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	var errs []error
	if c.messenger != nil {
		errs = append(errs, c.messenger.Close())
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
