package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/renewal/internal/engine"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &engine.Config{}
	require.NoError(t, cfg.Finalize(nil))

	assert.Equal(t, time.Minute, cfg.TickIntervalDuration())
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 200*24*time.Hour, cfg.MaxDurationValue())
	assert.Equal(t, 2*time.Minute, cfg.StepTimeoutDuration())
	assert.Equal(t, engine.StoreMemory, cfg.Store)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("TEST_ENGINE_WORKERS", "2")
	t.Setenv("TEST_ENGINE_STORE", "postgres")
	t.Setenv("TEST_ENGINE_TICK", "5s")

	cfg := &engine.Config{}
	require.NoError(t, cfg.Finalize(&engine.Env{
		Workers:      "TEST_ENGINE_WORKERS",
		Store:        "TEST_ENGINE_STORE",
		TickInterval: "TEST_ENGINE_TICK",
	}))

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, engine.StorePostgres, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.TickIntervalDuration())
}

func TestConfigMerge(t *testing.T) {
	cfg := &engine.Config{Workers: 4, TickInterval: "30s"}
	cfg.Merge(&engine.Config{Workers: 16})

	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, "30s", cfg.TickInterval)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  engine.Config
	}{
		{"bad interval", engine.Config{TickInterval: "often"}},
		{"sub-second interval", engine.Config{TickInterval: "500ms"}},
		{"negative workers", engine.Config{Workers: -1}},
		{"bad duration", engine.Config{MaxDuration: "forever"}},
		{"unknown store", engine.Config{Store: "redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Finalize(nil))
		})
	}
}
