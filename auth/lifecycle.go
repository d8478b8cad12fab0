package auth

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-session-coordinator/entitlement"
	"github.com/jrsteele09/go-session-coordinator/identity"
	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/session"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Manager)(nil)

// commit releases the write lock and emits ev, if any, before any later
// transition can emit. The broadcast happens after every Manager lock is
// released, since delivery may run another context's transition.
// Listeners must not call mutating Manager methods synchronously.
func (m *Manager) commit(ctx context.Context, ev *session.Event) {
	m.emitLock.Lock()
	m.writeLock.Unlock()
	if ev != nil {
		m.emit(*ev)
	}
	m.emitLock.Unlock()
	m.drainOutbox(ctx)
}

// Initialize restores the persisted session. Only the first call does any
// work. The restored session is adopted without checking its expiry.
func (m *Manager) Initialize(ctx context.Context) error {
	m.writeLock.Lock()
	m.lock.Lock()
	if m.state != StateUninitialized {
		state := m.state
		m.lock.Unlock()
		m.writeLock.Unlock()
		m.logger.Debug().Str("state", string(state)).Msg("[Manager.Initialize] already initialized")
		return nil
	}
	m.state = StateInitializing
	m.lock.Unlock()

	stored := m.store.Load(ctx)

	m.lock.Lock()
	var (
		ev  *session.Event
		err error
	)
	if stored != nil {
		var e session.Event
		if e, err = m.transitionLocked(session.EventSignedIn, stored); err == nil {
			e.Initial = true
			ev = &e
		}
	} else if err = checkTransition(m.state, StateAnonymous); err == nil {
		m.state = StateAnonymous
	}
	m.lock.Unlock()

	if err != nil {
		m.writeLock.Unlock()
		return err
	}
	m.commit(ctx, ev)
	return nil
}

func (m *Manager) ensureInitialized(ctx context.Context) error {
	if m.State() != StateUninitialized {
		return nil
	}
	return m.Initialize(ctx)
}

// SignInWithPassword signs in with email and password. On failure the
// current state is left untouched.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	ts, err := m.flow.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	return m.adopt(ctx, ts, "password")
}

// SignInWithOAuth runs the interactive flow for provider. Cancelling ctx only
// interrupts the user interaction.
func (m *Manager) SignInWithOAuth(ctx context.Context, provider string) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	ts, err := m.flow.SignInWithOAuth(ctx, provider)
	if err != nil {
		return err
	}
	return m.adopt(ctx, ts, "oauth_"+provider)
}

// adopt persists the new session first; if that fails the session is not
// adopted at all.
func (m *Manager) adopt(ctx context.Context, ts *identity.TokenSet, method string) error {
	ctx = context.WithoutCancel(ctx)
	s := ts.Session()
	if s.User.ID == "" || s.AccessToken == "" {
		return apperrors.NewValidationError("session", errors.New("sign-in returned no user or access token"))
	}

	m.writeLock.Lock()
	if err := m.store.Save(ctx, s); err != nil {
		m.writeLock.Unlock()
		m.logger.Err(err).Str("method", method).Msg("[Manager.adopt] persist session")
		return err
	}

	m.lock.Lock()
	prev := m.session
	ev, err := m.transitionLocked(session.EventSignedIn, s)
	m.lock.Unlock()
	if err != nil {
		m.writeLock.Unlock()
		return err
	}

	if prev == nil || prev.User.ID != s.User.ID {
		m.entitlements.Clear()
	}
	m.metrics.RecordSignIn(method)
	m.commit(ctx, &ev)
	return nil
}

// UpdateUser replaces the profile of the signed-in user. The user id cannot
// change; a different user must sign in instead.
func (m *Manager) UpdateUser(ctx context.Context, u session.User) error {
	ctx = context.WithoutCancel(ctx)
	m.writeLock.Lock()
	m.lock.RLock()
	current := m.session.Clone()
	m.lock.RUnlock()
	if current == nil {
		m.writeLock.Unlock()
		return apperrors.ErrNotAuthenticated
	}
	if u.ID != current.User.ID {
		m.writeLock.Unlock()
		return apperrors.NewValidationError("user", errors.New("user id cannot change"))
	}

	updated := current.Clone()
	updated.User = u
	if err := m.store.Save(ctx, updated); err != nil {
		m.writeLock.Unlock()
		m.logger.Err(err).Msg("[Manager.UpdateUser] persist session")
		return err
	}

	m.lock.Lock()
	ev, err := m.transitionLocked(session.EventUserUpdated, updated)
	m.lock.Unlock()
	if err != nil {
		m.writeLock.Unlock()
		return err
	}
	m.commit(ctx, &ev)
	return nil
}

// SignOut revokes the session remotely (best effort), then forgets it locally
// and in the store. Signing out while anonymous only clears the store.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.signOut(ctx, "user", nil)
}

// signOut runs to completion regardless of ctx. With onlyGeneration set it
// does nothing if the session has been replaced since.
func (m *Manager) signOut(ctx context.Context, reason string, onlyGeneration *uint64) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.signOutTimeout)
	defer cancel()

	m.writeLock.Lock()
	m.lock.RLock()
	current := m.session.Clone()
	gen := m.generation
	m.lock.RUnlock()

	if onlyGeneration != nil && *onlyGeneration != gen {
		m.writeLock.Unlock()
		m.logger.Info().Str("reason", reason).Msg("session replaced meanwhile, not signing out")
		return nil
	}

	if current != nil {
		if err := m.provider.SignOut(ctx, current.AccessToken, current.RefreshToken); err != nil {
			m.logger.Warn().Err(err).Msg("[Manager.signOut] remote sign-out failed")
		}
	}

	var ev *session.Event
	m.lock.Lock()
	if m.session != nil {
		e, err := m.transitionLocked(session.EventSignedOut, nil)
		if err != nil {
			m.lock.Unlock()
			m.writeLock.Unlock()
			return err
		}
		ev = &e
	}
	m.lock.Unlock()

	clearErr := m.store.Clear(ctx, session.UserScopedKeys()...)
	m.entitlements.Clear()
	if ev != nil {
		m.metrics.RecordSignOut(reason)
	}
	m.commit(ctx, ev)

	if clearErr != nil {
		m.logger.Err(clearErr).Msg("[Manager.signOut] clear store")
		return clearErr
	}
	return nil
}

// Refresh redeems the refresh token. Concurrent callers share one provider
// call. The refresh runs to completion even if ctx is cancelled; ctx only
// bounds how long this caller waits.
func (m *Manager) Refresh(ctx context.Context) error {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	m.lock.RLock()
	current := m.session.Clone()
	gen := m.generation
	m.lock.RUnlock()

	if current == nil {
		return apperrors.ErrNotAuthenticated
	}
	if current.RefreshToken == "" {
		m.metrics.RecordRefresh("rejected")
		if err := m.signOut(ctx, "no_refresh_token", &gen); err != nil {
			m.logger.Err(err).Msg("[Manager.refresh] sign out")
		}
		return apperrors.ErrNoRefreshToken
	}

	ts, err := m.provider.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if apperrors.IsRefreshTokenRejected(err) {
			m.metrics.RecordRefresh("rejected")
			m.logger.Warn().Err(err).Str("user_id", current.User.ID).Msg("refresh token rejected, signing out")
			if serr := m.signOut(ctx, "refresh_rejected", &gen); serr != nil {
				m.logger.Err(serr).Msg("[Manager.refresh] sign out")
			}
			return err
		}
		m.metrics.RecordRefresh("failed")
		m.logger.Err(err).Str("kind", string(apperrors.Kind(err))).Msg("token refresh failed")
		return err
	}

	m.writeLock.Lock()
	m.lock.Lock()
	if m.generation != gen || m.session == nil {
		m.lock.Unlock()
		m.writeLock.Unlock()
		m.metrics.RecordRefresh("discarded")
		m.logger.Info().Msg("session changed during refresh, discarding result")
		return nil
	}
	updated := m.session.Clone()
	updated.AccessToken = ts.AccessToken
	if ts.RefreshToken != "" {
		updated.RefreshToken = ts.RefreshToken
	}
	updated.ExpiresAt = ts.ExpiresAt
	ev, err := m.transitionLocked(session.EventTokenRefreshed, updated)
	m.lock.Unlock()
	if err != nil {
		m.writeLock.Unlock()
		return err
	}

	// The old refresh token may already be rotated away, so the new tokens
	// stay in memory even if they cannot be persisted.
	saveErr := m.store.Save(ctx, updated)
	m.commit(ctx, &ev)
	if saveErr != nil {
		m.metrics.RecordRefresh("persist_failed")
		m.logger.Err(saveErr).Msg("[Manager.refresh] persist refreshed session")
		return saveErr
	}
	m.metrics.RecordRefresh("success")
	return nil
}

// CheckAuthStatus reports whether a session exists, refreshing it first when
// it expires within the lookahead. Anonymous contexts never touch the network.
func (m *Manager) CheckAuthStatus(ctx context.Context) (bool, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return false, err
	}
	current := m.CurrentSession()
	if current == nil {
		return false, nil
	}
	if current.ExpiresWithin(m.nowTime(), m.lookahead) {
		if err := m.Refresh(ctx); err != nil {
			return m.IsAuthenticated(), err
		}
	}
	return m.IsAuthenticated(), nil
}

// ApplyRemoteEvent mirrors a transition made by another context. It updates
// memory and notifies local listeners only; the store was already written by
// the sender and the event is not broadcast again. Events that originated
// here, and events arriving before initialization, are ignored.
func (m *Manager) ApplyRemoteEvent(ev session.Event) error {
	if m.origin != "" && ev.Origin == m.origin {
		return nil
	}
	if !ev.Valid() {
		return apperrors.NewValidationError("event", apperrors.ErrMalformedMessage)
	}

	m.writeLock.Lock()
	m.lock.Lock()
	if m.state == StateUninitialized || m.state == StateInitializing {
		m.lock.Unlock()
		m.writeLock.Unlock()
		m.logger.Debug().Str("event", string(ev.Kind)).Msg("remote auth event before initialization ignored")
		return nil
	}
	if ev.Kind == session.EventSignedOut && m.session == nil {
		m.lock.Unlock()
		m.writeLock.Unlock()
		return nil
	}

	to, err := checkEvent(m.state, ev.Kind)
	if err != nil {
		m.lock.Unlock()
		m.writeLock.Unlock()
		return err
	}
	prev := m.session
	m.state = to
	m.session = ev.Session.Clone()
	if ev.Kind == session.EventSignedOut {
		m.session = nil
	}
	m.generation++
	next := m.session
	m.lock.Unlock()

	if next == nil || prev == nil || prev.User.ID != next.User.ID {
		m.entitlements.Clear()
	}

	m.emitLock.Lock()
	m.writeLock.Unlock()
	defer m.emitLock.Unlock()
	m.logger.Info().Str("event", string(ev.Kind)).Str("event_id", ev.ID).Str("origin", ev.Origin).Msg("applied remote auth event")
	m.notify(ev)
	return nil
}

// CheckAccess returns the entitlement of the signed-in user, or the default
// record when anonymous.
func (m *Manager) CheckAccess(ctx context.Context) entitlement.Record {
	u := m.CurrentUser()
	if u == nil {
		return entitlement.DefaultRecord("")
	}
	return m.entitlements.CheckAccess(ctx, u.ID)
}

// RefreshAccess drops the cached entitlement of the signed-in user and looks
// it up again.
func (m *Manager) RefreshAccess(ctx context.Context) entitlement.Record {
	u := m.CurrentUser()
	if u == nil {
		return entitlement.DefaultRecord("")
	}
	m.entitlements.Invalidate(u.ID)
	return m.entitlements.CheckAccess(ctx, u.ID)
}

// Token makes the Manager an oauth2.TokenSource for calls made on behalf of
// the signed-in user.
func (m *Manager) Token() (*oauth2.Token, error) {
	s := m.CurrentSession()
	if s == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: s.AccessToken, TokenType: "Bearer", Expiry: s.Expiry()}, nil
}
