package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "*/5 * * * *", cfg.RefreshCron)
	assert.Equal(t, 300*time.Millisecond, cfg.DoubleClickWindow())
	assert.Equal(t, 52, cfg.Recurrence.MaxOccurrences)
	assert.Equal(t, 365, cfg.Recurrence.SafetyCap)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Snapshot.BaseURL)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
timezone: Australia/Sydney
log_level: DEBUG
api:
  base_url: https://clinic.example.com/api/
recurrence:
  strategy: weird
  max_occurrences: 500
  safety_cap: 100
clinics_disabled: ["3"]
snapshot:
  base_url: " http://127.0.0.1:3000/ "
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://clinic.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "/csrf-token/", cfg.API.TokenPath)
	assert.Equal(t, "X-CSRFToken", cfg.API.TokenHeader)
	assert.Equal(t, 15*time.Second, cfg.APITimeout())
	assert.Equal(t, "client", cfg.Recurrence.Strategy)
	assert.Equal(t, 100, cfg.Recurrence.MaxOccurrences, "clamped to the safety cap")
	assert.Equal(t, []string{"3"}, cfg.ClinicsDisabled)
	assert.Empty(t, cfg.RefreshCron, "auto-refresh stays off")
	assert.Equal(t, "http://127.0.0.1:3000", cfg.Snapshot.BaseURL)
	assert.Equal(t, 1280, cfg.Snapshot.Width)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Australia/Sydney", loc.String())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.Recurrence.Strategy = "server"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestBadTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err := cfg.Location()
	assert.Error(t, err)
}

func TestEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "x.yaml"), nil))
}
