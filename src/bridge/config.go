package bridge

import (
	"os"
	"strconv"
	"time"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	Prefix         string        // channel namespace
	Channel        string        // joined to Prefix; instances on the same channel share traffic
	MaxFieldSize   int           // decode limit for remote frames, 0 = wire default
	PublishTimeout time.Duration // per Publish call
}

// DefaultRedisConfig returns the bridge defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:           "localhost:6379",
		Prefix:         "relay:",
		Channel:        "broadcast",
		PublishTimeout: 5 * time.Second,
	}
}

// RedisConfigFromEnv overlays REDIS_* environment variables on the
// defaults. Unparseable numbers are ignored.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.Password = os.Getenv("REDIS_PASSWORD")
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.DB = db
	}
	if prefix := os.Getenv("REDIS_RELAY_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	if ch := os.Getenv("REDIS_RELAY_CHANNEL"); ch != "" {
		cfg.Channel = ch
	}
	return cfg
}
