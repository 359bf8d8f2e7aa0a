package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KVAULT_ENV", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 200, cfg.Limits.ListPageSize)
	assert.Equal(t, 100, cfg.Limits.TagLimit)
	assert.Equal(t, 10, cfg.Limits.RecommendLimit)
	assert.Equal(t, 3, cfg.WriteRetries)
	assert.Equal(t, 10, cfg.Auth.Limit)
	assert.Equal(t, time.Minute, cfg.Auth.Window)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Seed.Enabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("WRITE_RETRIES", "5")
	t.Setenv("SEED_REGION", "North")
	t.Setenv("SEED_ADMIN_EMAIL", "admin@example.com")
	t.Setenv("SEED_ADMIN_PASSWORD", "secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 5, cfg.WriteRetries)
	assert.True(t, cfg.Seed.Enabled())
}

func TestValidate(t *testing.T) {
	t.Run("production requires a signing key", func(t *testing.T) {
		t.Setenv("KVAULT_ENV", "production")
		t.Setenv("JWT_SIGNING_KEY", "")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("bucket requires an endpoint", func(t *testing.T) {
		t.Setenv("BLOB_BUCKET", "vault")
		t.Setenv("BLOB_ENDPOINT", "")
		t.Setenv("BLOB_PUBLIC_BASE_URL", "")
		_, err := FromEnv()
		require.Error(t, err)
	})
}
