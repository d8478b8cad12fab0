package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-session-coordinator/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestStringSlice(t *testing.T) {
	require.Equal(t, []string{"openid", "42", "true"}, utils.StringSlice([]any{"openid", 42, nil, true}))
	require.Empty(t, utils.StringSlice(nil))
}

func TestPtr(t *testing.T) {
	p := utils.Ptr(3)
	require.Equal(t, 3, *p)
	*p = 4
	require.NotSame(t, p, utils.Ptr(4))
}

func TestRandomString(t *testing.T) {
	a, err := utils.RandomString(32)
	require.NoError(t, err)
	b, err := utils.RandomString(32)
	require.NoError(t, err)
	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
}
