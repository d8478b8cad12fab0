// Package refresh keeps the session fresh by periodically asking the session
// manager to check it. It never talks to the identity provider itself.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 30 * time.Minute

// StatusChecker is implemented by the session manager.
type StatusChecker interface {
	IsAuthenticated() bool
	CheckAuthStatus(ctx context.Context) (bool, error)
}

type Scheduler struct {
	checker StatusChecker
	logger  zerolog.Logger

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(checker StatusChecker, opts ...Option) (*Scheduler, error) {
	if checker == nil {
		return nil, errors.New("[NewScheduler] status checker is required")
	}
	s := &Scheduler{checker: checker, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins ticking every interval, replacing any running timer. A
// non-positive interval means DefaultInterval.
func (s *Scheduler) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go s.run(ctx, interval, done)
	s.logger.Info().Dur("interval", interval).Msg("token refresh scheduler started")
}

// Stop halts the timer and waits for an in-progress tick to return. It is a
// no-op when the scheduler is not running.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopLocked() {
		s.logger.Info().Msg("token refresh scheduler stopped")
	}
}

func (s *Scheduler) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	return true
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.checker.IsAuthenticated() {
		return
	}
	authenticated, err := s.checker.CheckAuthStatus(ctx)
	if err != nil {
		s.logger.Err(err).Bool("authenticated", authenticated).Msg("scheduled auth check failed")
		return
	}
	s.logger.Debug().Bool("authenticated", authenticated).Msg("scheduled auth check")
}
