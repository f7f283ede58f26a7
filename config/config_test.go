package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flywheel-gateway/control-plane/config"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30000, cfg.HeartbeatIntervalMs)
	assert.Equal(t, 90000, cfg.ConnectionTimeoutMs)
	assert.Equal(t, 30, cfg.DrainDeadlineSeconds)
	assert.Equal(t, int64(86400000), cfg.Idempotency.TTLMs)
	assert.Equal(t, 10000, cfg.Idempotency.MaxRecords)
	assert.ElementsMatch(t, []string{"POST", "PUT", "PATCH"}, cfg.Idempotency.Methods)
}

func TestLoad_DurationHelpers(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, int64(30000), cfg.HeartbeatInterval().Milliseconds())
	assert.Equal(t, int64(90000), cfg.ConnectionTimeout().Milliseconds())
}
