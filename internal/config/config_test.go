package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
	assert.Equal(t, 60, cfg.RangeTTLMinutes)
	assert.Equal(t, 30, cfg.DriveTTLMinutes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := []byte("listen: 0.0.0.0:9090\norigin: 1 Main St\nbuffer_minutes: 20\n")
	require.NoError(t, os.WriteFile(path, partial, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "1 Main St", cfg.Origin)
	assert.Equal(t, 20, cfg.BufferMinutes)
	// Gaps are filled from defaults.
	assert.Equal(t, 7, cfg.HorizonDays)
	assert.Equal(t, 5, cfg.Routing.TimeoutSeconds)
	assert.NotEmpty(t, cfg.Routing.RouteURL)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Origin = "42 Nowhere Ln"
	cfg.ICS = []ICSConfig{{ID: "work", URL: "https://example.com/work.ics", Name: "Work"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Origin, loaded.Origin)
	require.Len(t, loaded.ICS, 1)
	assert.Equal(t, "work", loaded.ICS[0].ID)
}
