package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-session-coordinator/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisKV(t *testing.T, opts ...storage.RedisOption) (*storage.RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisKV(client, opts...), mr
}

func backends(t *testing.T) map[string]storage.KV {
	t.Helper()
	fileKV, err := storage.NewFileKV(filepath.Join(t.TempDir(), "nested", "store.json"))
	require.NoError(t, err)
	redisKV, _ := newRedisKV(t)
	return map[string]storage.KV{
		"memory": storage.NewMemoryKV(),
		"file":   fileKV,
		"redis":  redisKV,
	}
}

func TestKVBackends(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, kv.Set(ctx, "a", []byte("one")))
			require.NoError(t, kv.Set(ctx, "b", []byte("two")))
			require.NoError(t, kv.Set(ctx, "a", []byte("uno")))

			v, ok, err := kv.Get(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("uno"), v)

			require.NoError(t, kv.Remove(ctx, "a", "never-set"))
			_, ok, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			require.False(t, ok)

			v, ok, err = kv.Get(ctx, "b")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("two"), v)
		})
	}
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	in := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", in))
	in[0] = 'z'

	out, _, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), out)
	require.ElementsMatch(t, []string{"k"}, kv.Keys())
}

func TestMemoryKVCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, storage.NewMemoryKV().Set(ctx, "k", nil), context.Canceled)
}

func TestFileKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	first, err := storage.NewFileKV(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "session", []byte(`{"access_token":"x"}`)))

	second, err := storage.NewFileKV(path)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, "session")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"access_token":"x"}`, string(v))
}

func TestFileKVCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	kv, err := storage.NewFileKV(path)
	require.NoError(t, err)
	_, _, err = kv.Get(context.Background(), "session")
	require.Error(t, err)
}

func TestNewFileKVRequiresPath(t *testing.T) {
	_, err := storage.NewFileKV("")
	require.Error(t, err)
}

func TestRedisKVPrefix(t *testing.T) {
	ctx := context.Background()
	kv, mr := newRedisKV(t, storage.WithKeyPrefix("ext-1"))

	require.NoError(t, kv.Set(ctx, "session", []byte("blob")))
	require.True(t, mr.Exists("ext-1:session"))
	require.False(t, mr.Exists("session"))

	require.NoError(t, kv.Remove(ctx))
	require.NoError(t, kv.Remove(ctx, "session"))
	require.False(t, mr.Exists("ext-1:session"))
}

func TestRedisKVUnavailable(t *testing.T) {
	kv, mr := newRedisKV(t)
	mr.Close()
	require.Error(t, kv.Set(context.Background(), "k", []byte("v")))
}

func TestNewRedisKVFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, client, err := storage.NewRedisKVFromURL("redis://"+mr.Addr()+"/0", storage.WithKeyPrefix("p"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, kv.Set(context.Background(), "k", []byte("v")))
	got, err := mr.Get("p:k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	_, _, err = storage.NewRedisKVFromURL("::not a url")
	require.Error(t, err)
}

func TestSealer(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := storage.NewSealer(key)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("refresh-token"), []byte("session"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "refresh-token")

	opened, err := s.Open(sealed, []byte("session"))
	require.NoError(t, err)
	require.Equal(t, []byte("refresh-token"), opened)

	t.Run("wrong additional data", func(t *testing.T) {
		_, err := s.Open(sealed, []byte("other"))
		require.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := s.Open(sealed[:10], []byte("session"))
		require.Error(t, err)
	})

	t.Run("bad key length", func(t *testing.T) {
		_, err := storage.NewSealer([]byte("short"))
		require.Error(t, err)
	})

	t.Run("hex key", func(t *testing.T) {
		_, err := storage.NewSealerFromHex("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
		require.NoError(t, err)
		_, err = storage.NewSealerFromHex("zz")
		require.Error(t, err)
	})
}
