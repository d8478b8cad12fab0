package config

type StoreConfig interface {
	GetStoreBackend() string
	GetStorePath() string
	GetRedisURL() string
	GetStoreKeyPrefix() string
	GetSealKey() string
}

type Store struct {
	src source
}

var _ StoreConfig = Store{}

// GetStoreBackend is one of "memory", "file" or "redis".
func (s Store) GetStoreBackend() string {
	return s.src.get("STORE_BACKEND", "file")
}

func (s Store) GetStorePath() string {
	return s.src.get("STORE_PATH", "./data/session-store.json")
}

func (s Store) GetRedisURL() string {
	return s.src.get("REDIS_URL", "redis://localhost:6379/0")
}

func (s Store) GetStoreKeyPrefix() string {
	return s.src.get("STORE_KEY_PREFIX", "coordinator")
}

// GetSealKey is a hex encoded 32 byte key. Empty stores the session unsealed.
func (s Store) GetSealKey() string {
	return s.src.get("STORE_SEAL_KEY", "")
}
