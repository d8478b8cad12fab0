// Package session holds the session data model and its persistent store.
package session

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/jrsteele09/go-session-coordinator/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store persists the single session blob and clears user scoped keys.
// It performs no retries; callers decide what a failed write means.
type Store struct {
	kv     storage.KV
	sealer *storage.Sealer
	logger zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSealer encrypts the session blob at rest.
func WithSealer(s *storage.Sealer) StoreOption {
	return func(st *Store) {
		st.sealer = s
	}
}

func WithLogger(l zerolog.Logger) StoreOption {
	return func(st *Store) {
		st.logger = l
	}
}

func NewStore(kv storage.KV, opts ...StoreOption) (*Store, error) {
	if kv == nil {
		return nil, errors.New("[NewStore] key/value store is required")
	}
	st := &Store{kv: kv, logger: log.Logger}
	for _, opt := range opts {
		opt(st)
	}
	return st, nil
}

// Load returns the persisted session, or nil when there is none or it cannot
// be read. It never fails; problems are logged.
func (st *Store) Load(ctx context.Context) *Session {
	data, ok, err := st.kv.Get(ctx, string(KeySession))
	if err != nil {
		st.logger.Warn().Err(err).Msg("[Store.Load] read session")
		return nil
	}
	if !ok || len(data) == 0 {
		return nil
	}

	if st.sealer != nil {
		data, err = st.sealer.Open(data, []byte(KeySession))
		if err != nil {
			st.logger.Warn().Err(err).Msg("[Store.Load] unseal session")
			return nil
		}
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		st.logger.Warn().Err(err).Msg("[Store.Load] decode session")
		return nil
	}
	if s.AccessToken == "" || s.User.ID == "" {
		st.logger.Warn().Msg("[Store.Load] stored session is incomplete")
		return nil
	}
	return &s
}

// Save overwrites the session blob.
func (st *Store) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return apperrors.NewValidationError("session", errors.New("nil session"))
	}
	data, err := json.Marshal(s)
	if err != nil {
		return apperrors.Wrapf(err, "[Store.Save] encode")
	}
	if st.sealer != nil {
		if data, err = st.sealer.Seal(data, []byte(KeySession)); err != nil {
			return apperrors.Wrapf(err, "[Store.Save] seal")
		}
	}
	if err := st.kv.Set(ctx, string(KeySession), data); err != nil {
		return apperrors.NewTransportError("store.save", err)
	}
	return nil
}

// Clear removes keys. With no keys it removes only the session blob.
func (st *Store) Clear(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		keys = []Key{KeySession}
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	if err := st.kv.Remove(ctx, names...); err != nil {
		return apperrors.NewTransportError("store.clear", err)
	}
	return nil
}
