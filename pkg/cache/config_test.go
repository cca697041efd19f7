package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultRedisConfig().Validate())
	assert.Equal(t, "localhost:6379", DefaultRedisConfig().Addr())

	cases := map[string]RedisOption{
		"empty host":    WithRedisHost(""),
		"port zero":     WithRedisPort(0),
		"port too high": WithRedisPort(70000),
		"negative db":   WithRedisDB(-1),
		"empty pool":    WithRedisPool(0, 0, time.Second),
		"idle > pool":   WithRedisPool(2, 3, time.Second),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultRedisConfig()
			opt(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewRedisCache_RejectsBadConfigBeforeDialing(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache(WithRedisPort(0))
	assert.ErrorContains(t, err, "port")
}

func TestLayeredConfig_KeepsDefaultTTL(t *testing.T) {
	t.Parallel()

	cfg := DefaultLayeredConfig()
	WithLayeredMemoryTTL(0)(&cfg)
	assert.Equal(t, time.Minute, cfg.MemoryTTL)
	WithLayeredMemoryTTL(5 * time.Second)(&cfg)
	assert.Equal(t, 5*time.Second, cfg.MemoryTTL)
}

func TestMemoryConfig_Normalize(t *testing.T) {
	t.Parallel()

	cfg := MemoryConfig{MaxSize: -1}
	cfg.normalize()
	assert.Equal(t, DefaultMemoryConfig(), cfg)
}
