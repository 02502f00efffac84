package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Setenv("GANTRY_STORE_ENDPOINT", "http://store.local/admin/api")
	t.Setenv("GANTRY_GATEWAY_ADMIN_URL", "http://kong.local:8001")
}

func TestLoadConfigDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "http://store.local/admin/api", cfg.Store.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, time.Hour, cfg.IDP.DiscoveryTTL)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.LogJSON)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("GANTRY_PORT", "9999")
	t.Setenv("GANTRY_STORE_TOKEN", "secret")
	t.Setenv("GANTRY_REDIS_ADDR", "redis.local:6380")
	t.Setenv("GANTRY_REDIS_DB", "3")
	t.Setenv("GANTRY_IDP_DISCOVERY_TTL", "10m")
	t.Setenv("GANTRY_LOG_LEVEL", "debug")
	t.Setenv("GANTRY_LOG_JSON", "true")
	t.Setenv("GANTRY_METRICS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Store.Token)
	assert.Equal(t, "redis.local:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 10*time.Minute, cfg.IDP.DiscoveryTTL)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.LogJSON)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigMissingStoreEndpoint(t *testing.T) {
	t.Setenv("GANTRY_GATEWAY_ADMIN_URL", "http://kong.local:8001")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store endpoint")
}

func TestLoadConfigMissingGatewayURL(t *testing.T) {
	t.Setenv("GANTRY_STORE_ENDPOINT", "http://store.local/admin/api")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway admin URL")
}

func TestValidateLogLevel(t *testing.T) {
	validEnv(t)
	t.Setenv("GANTRY_LOG_LEVEL", "verbose")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestEnvHelpersIgnoreMalformedValues(t *testing.T) {
	validEnv(t)
	t.Setenv("GANTRY_REDIS_DB", "not-a-number")
	t.Setenv("GANTRY_STORE_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
}
