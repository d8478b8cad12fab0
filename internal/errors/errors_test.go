package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-session-coordinator/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.KindType
	}{
		{"nil", nil, apperrors.KindNone},
		{"cancelled", fmt.Errorf("launch: %w", apperrors.ErrUserCancelled), apperrors.KindUserCancelled},
		{"provider", apperrors.NewProviderError("refresh", "invalid_grant", "", 400, nil), apperrors.KindProvider},
		{"transport", apperrors.NewTransportError("store.save", fmt.Errorf("quota")), apperrors.KindTransport},
		{"validation", apperrors.NewValidationError("code", apperrors.ErrMissingAuthorizationCode), apperrors.KindValidation},
		{"wrapped validation", apperrors.Wrapf(apperrors.NewValidationError("code", apperrors.ErrMissingAuthorizationCode), "flow"), apperrors.KindValidation},
		{"other", fmt.Errorf("boom"), apperrors.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, apperrors.Kind(tt.err))
		})
	}
}

func TestIsRefreshTokenRejected(t *testing.T) {
	t.Run("invalid_grant code", func(t *testing.T) {
		require.True(t, apperrors.IsRefreshTokenRejected(apperrors.NewProviderError("refresh", "invalid_grant", "", 400, nil)))
	})

	t.Run("expired in description", func(t *testing.T) {
		err := apperrors.NewProviderError("refresh", "", "Refresh Token Expired", 401, nil)
		require.True(t, apperrors.IsRefreshTokenRejected(fmt.Errorf("wrapped: %w", err)))
	})

	t.Run("server error", func(t *testing.T) {
		require.False(t, apperrors.IsRefreshTokenRejected(apperrors.NewProviderError("refresh", "server_error", "try later", 503, nil)))
	})

	t.Run("transport error mentioning invalid", func(t *testing.T) {
		require.False(t, apperrors.IsRefreshTokenRejected(apperrors.NewTransportError("refresh", fmt.Errorf("invalid response"))))
	})
}

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "ctx"))
	err := apperrors.Wrapf(apperrors.ErrNoReceiver, "[Broadcaster.Broadcast] %s", "send")
	require.True(t, apperrors.Is(err, apperrors.ErrNoReceiver))
	require.Equal(t, "[Broadcaster.Broadcast] send: no receiving context", err.Error())
}
