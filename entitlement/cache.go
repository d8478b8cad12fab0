package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 10 * time.Minute

// Cache is a per-user TTL cache in front of a Service. Lookup failures are
// never cached so the next call retries.
type Cache struct {
	service Service
	ttl     time.Duration
	nowTime func() time.Time
	logger  zerolog.Logger
	metrics metrics.Recorder

	lock    sync.RWMutex
	records map[string]Record
	gen     uint64
	group   singleflight.Group
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithNowTime(nowFunc func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

func WithMetrics(r metrics.Recorder) CacheOption {
	return func(c *Cache) {
		c.metrics = r
	}
}

func NewCache(service Service, opts ...CacheOption) (*Cache, error) {
	if service == nil {
		return nil, errors.New("[NewCache] entitlement service is required")
	}
	c := &Cache{
		service: service,
		ttl:     DefaultTTL,
		nowTime: time.Now,
		logger:  log.Logger,
		metrics: metrics.Nop{},
		records: make(map[string]Record),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckAccess returns the cached record for userID while it is fresh, and
// otherwise asks the service. Concurrent misses for a user share one lookup.
// A failed lookup yields DefaultRecord.
func (c *Cache) CheckAccess(ctx context.Context, userID string) Record {
	if userID == "" {
		return DefaultRecord("")
	}

	c.lock.RLock()
	rec, ok := c.records[userID]
	gen := c.gen
	c.lock.RUnlock()
	if ok && c.nowTime().Before(rec.ExpiresAt) {
		c.metrics.RecordEntitlement("hit")
		return rec
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		return c.service.Lookup(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		c.metrics.RecordEntitlement("failure")
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("[Cache.CheckAccess] entitlement lookup failed")
		return DefaultRecord(userID)
	}
	c.metrics.RecordEntitlement("miss")

	rec = v.(Record)
	rec.UserID = userID
	rec.Tier = ParseTier(string(rec.Tier))
	rec.ExpiresAt = c.nowTime().Add(c.ttl)

	c.lock.Lock()
	// A Clear or Invalidate during the lookup wins.
	if c.gen == gen {
		c.records[userID] = rec
	}
	c.lock.Unlock()
	return rec
}

// Clear drops every cached record.
func (c *Cache) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.records = make(map[string]Record)
	c.gen++
}

// Invalidate drops the record of one user so the next check goes remote.
func (c *Cache) Invalidate(userID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.records, userID)
	c.gen++
}

// Len reports how many records are cached.
func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.records)
}
