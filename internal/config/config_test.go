package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STOCK_CHECK_POLICY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, StockPolicyAll, cfg.StockCheckPolicy)
	assert.Equal(t, 5*time.Minute, cfg.StockCacheTTL)
	assert.Equal(t, 3, cfg.OrderCodeRetries)
	assert.Equal(t, "UTC", cfg.Location.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("STOCK_CHECK_POLICY", "any")
	t.Setenv("ORDER_CODE_RETRIES", "0")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, StockPolicyAny, cfg.StockCheckPolicy)
	assert.Equal(t, 1, cfg.OrderCodeRetries)
	assert.EqualValues(t, 3, cfg.LowStockThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORAGE_DRIVER":     "mongo",
		"STOCK_CHECK_POLICY": "some",
		"STOCK_CACHE_TTL":    "soon",
		"APP_TIMEZONE":       "Mars/Olympus",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
