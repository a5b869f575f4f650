package config

type StoreConfig interface {
	GetRedisURL() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetRedisURL returns the Redis connection URL for OAuth flow state.
// Empty means flow state is kept in process memory.
func (Store) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}
