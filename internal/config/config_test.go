package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(500), cfg.MaxStorageSizeMB)
	assert.Equal(t, int64(500), cfg.MaxFileSizeMB)
	assert.Equal(t, 0, cfg.MaxFilesPerStorage)
	assert.Equal(t, 7, cfg.ExpirationDays)
	assert.Equal(t, 60, cfg.MaxRequestsPerMinute)
	assert.Equal(t, 5, cfg.MaxFailedAttempts)
	assert.Equal(t, 300, cfg.BlockTimeSeconds)
	assert.True(t, cfg.CSRFEnabled)
	assert.NotEmpty(t, cfg.AllowedExtensions)
	assert.Contains(t, cfg.AllowedExtensions, "pdf")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MAX_STORAGE_SIZE_MB", "100")
	t.Setenv("MAX_FILES_PER_STORAGE", "25")
	t.Setenv("ALLOWED_EXTENSIONS", "txt, .PDF ,png")
	t.Setenv("CSRF_PROTECTION_ENABLED", "false")
	t.Setenv("MAX_REQUESTS_PER_MINUTE", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.MaxStorageSizeMB)
	assert.Equal(t, 25, cfg.MaxFilesPerStorage)
	assert.Equal(t, []string{"txt", "pdf", "png"}, cfg.AllowedExtensions)
	assert.False(t, cfg.CSRFEnabled)
	assert.Equal(t, 5, cfg.MaxRequestsPerMinute)
}

func TestSizeHelpers(t *testing.T) {
	cfg := &Config{MaxStorageSizeMB: 500, MaxFileSizeMB: 10}
	assert.Equal(t, int64(500*1024*1024), cfg.MaxStorageBytes())
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileBytes())
}

func TestParseExtensions(t *testing.T) {
	assert.Equal(t, defaultExtensions, parseExtensions(""))
	assert.Equal(t, defaultExtensions, parseExtensions(" , ,"))
	assert.Equal(t, []string{"mp4", "mkv"}, parseExtensions(".MP4,mkv"))
}
