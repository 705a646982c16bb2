package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PhotoFlow/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Address)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.ProcessingDuration)
	assert.InDelta(t, 0.8, cfg.SuccessRate, 1e-9)
	assert.Equal(t, 20, cfg.MaxFilesPerUpload)
	assert.Contains(t, cfg.AllowedTypes, "image/png")
	assert.NotEmpty(t, cfg.SigningSecret)
	assert.Empty(t, cfg.S3Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PHOTOFLOW_ADDRESS", ":9999")
	t.Setenv("PHOTOFLOW_TICK_INTERVAL", "250ms")
	t.Setenv("PHOTOFLOW_PROCESSING_DURATION", "1s")
	t.Setenv("PHOTOFLOW_SUCCESS_RATE", "0.5")
	t.Setenv("PHOTOFLOW_ALLOWED_TYPES", "image/png , image/webp")
	t.Setenv("PHOTOFLOW_SIGNING_SECRET", "sekrit")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, time.Second, cfg.ProcessingDuration)
	assert.InDelta(t, 0.5, cfg.SuccessRate, 1e-9)
	// Entries are trimmed after splitting.
	assert.Equal(t, []string{"image/png", "image/webp"}, cfg.AllowedTypes)
	assert.Equal(t, []byte("sekrit"), cfg.SigningSecret)
}

func TestLoadRejectsNonsenseValues(t *testing.T) {
	t.Setenv("PHOTOFLOW_SUCCESS_RATE", "7.5")
	t.Setenv("PHOTOFLOW_MAX_FILE_BYTES", "-1")

	cfg, err := config.Load()
	require.NoError(t, err)

	// Out-of-range values fall back to the defaults instead of erroring.
	assert.InDelta(t, 0.8, cfg.SuccessRate, 1e-9)
	assert.Equal(t, int64(25<<20), cfg.MaxFileSize)
}
