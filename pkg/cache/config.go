package cache

import (
	"fmt"
	"time"
)

// RedisOption configures the redis layer.
type RedisOption func(*RedisConfig)

// RedisConfig holds the redis connection settings. Keys are namespaced by
// Prefix so the regime and price entries of several deployments can share
// one database.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// DefaultRedisConfig is a local single-node redis under the finscan prefix.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		Prefix:       "finscan",
	}
}

// Addr is host:port as go-redis expects it.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate rejects settings go-redis would only fail on at dial time.
func (c RedisConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("redis host is empty")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("redis port %d out of range", c.Port)
	case c.DB < 0:
		return fmt.Errorf("redis db %d is negative", c.DB)
	case c.PoolSize <= 0:
		return fmt.Errorf("redis pool size must be positive")
	case c.MinIdleConns < 0 || c.MinIdleConns > c.PoolSize:
		return fmt.Errorf("redis min idle conns %d outside [0,%d]", c.MinIdleConns, c.PoolSize)
	}
	return nil
}

// WithRedisHost sets the redis host.
func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) {
		c.Host = host
	}
}

// WithRedisPort sets the redis port.
func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) {
		c.Port = port
	}
}

// WithRedisPassword sets the AUTH password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
	}
}

// WithRedisDB selects the logical database.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) {
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets the key namespace.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// MemoryOption configures the in-process cache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig bounds the in-process cache. MaxSize counts entries, not
// bytes; a candle window for one symbol is a single entry.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// DefaultMemoryConfig holds a thousand entries and sweeps every five minutes.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{MaxSize: 1000, CleanupInterval: 5 * time.Minute}
}

func (c *MemoryConfig) normalize() {
	d := DefaultMemoryConfig()
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
}

// WithMemoryMaxSize sets the entry limit before LRU eviction.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		c.MaxSize = size
	}
}

// WithMemoryCleanup sets the expiry sweep interval.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
	}
}

// LayeredOption configures the memory-over-redis cache.
type LayeredOption func(*LayeredConfig)

// LayeredConfig sizes the L1 in front of redis.
type LayeredConfig struct {
	MemoryMaxSize int
	// MemoryTTL caps how long L1 may serve a value that another process
	// has since invalidated in L2.
	MemoryTTL time.Duration
}

// DefaultLayeredConfig keeps L1 entries for at most a minute.
func DefaultLayeredConfig() LayeredConfig {
	return LayeredConfig{MemoryMaxSize: 1000, MemoryTTL: time.Minute}
}

// WithLayeredMemorySize sets the L1 entry limit.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		c.MemoryMaxSize = size
	}
}

// WithLayeredMemoryTTL sets the L1 lifetime. Non-positive values keep the default.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if ttl > 0 {
			c.MemoryTTL = ttl
		}
	}
}
