package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)
	assert.Equal(t, 200*time.Millisecond, cfg.Checks.Delay())
	assert.Equal(t, 1, cfg.Checks.Concurrency)
	assert.Equal(t, DefaultCheckModel, cfg.Checks.DefaultModel)
	assert.Equal(t, filepath.Join(dir, "nested", "console.db"), cfg.Database.Path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadAppliesDefaultsAndTrimsBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  base_url: https://proxy.example.com/\nchecks:\n  delay_ms: 500\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Checks.Delay())
	assert.Equal(t, 60*time.Second, cfg.Server.Timeout())
	assert.Equal(t, "local", cfg.Media.StorageType)
	assert.Equal(t, 10, cfg.Media.PageSize)
	assert.Equal(t, 10*time.Minute, cfg.Watch.Interval())
	assert.Equal(t, 120, cfg.Watch.RateLimitPerMinute)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"scheme":    "server:\n  base_url: proxy.example.com\n",
		"page size": "media:\n  page_size: 15\n",
		"delay":     "checks:\n  delay_ms: -1\n",
		"yaml":      "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnableMetricsStoresOnlyHash(t *testing.T) {
	cfg := &Config{}
	password, err := EnableMetrics(cfg, "")
	require.NoError(t, err)

	assert.Len(t, password, 20)
	assert.True(t, cfg.Watch.Metrics.Enabled)
	assert.Equal(t, "prometheus", cfg.Watch.Metrics.Username)
	assert.NotEqual(t, password, cfg.Watch.Metrics.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(cfg.Watch.Metrics.PasswordHash), []byte(password)))
}
