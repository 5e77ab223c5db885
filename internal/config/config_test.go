package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskswitcher", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config is written")

	cfg := m.Get()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 9876, cfg.RelayPort)
	assert.Equal(t, 2*time.Second, cfg.TabRequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"osascript"}, cfg.Helpers.Osascript)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "tasks.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "helpers"), cfg.Helpers.ScriptDir)
	assert.Empty(t, cfg.Helpers.ListWindows, "empty selects the bundled helper on macOS")
	assert.Equal(t, filepath.Dir(path), m.GetConfigDir())
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay_port: 9999\ncache_ttl: 30s\nhelpers:\n  raise_window: [raise-window]\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 9999, cfg.RelayPort)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"raise-window"}, cfg.Helpers.RaiseWindow)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.EnumerationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Helpers.Timeout)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "helpers"), cfg.Helpers.ScriptDir)
}

func TestNewManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9876\n"), 0644))

	_, err := NewManager(path)
	assert.ErrorIs(t, err, ErrInvalid, "server and relay ports collide")
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.ServerPort = 1
	cfg.Helpers.Osascript[0] = "changed"

	again := m.Get()
	assert.Equal(t, 8080, again.ServerPort)
	assert.Equal(t, "osascript", again.Helpers.Osascript[0])
}

func TestSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, m.SetPort(8181))
	require.NoError(t, m.SetLogLevel("debug"))
	require.NoError(t, m.Set("tab_request_timeout", "500ms"))
	require.NoError(t, m.Set("helpers.list_windows", "swift, /opt/helpers/list.swift"))
	require.NoError(t, m.Set("platform", PlatformX11))

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	cfg := reloaded.Get()
	assert.Equal(t, 8181, cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.TabRequestTimeout)
	assert.Equal(t, []string{"swift", "/opt/helpers/list.swift"}, cfg.Helpers.ListWindows)
	assert.Equal(t, PlatformX11, cfg.Platform)
}

func TestSetRejectsBadValues(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	tests := []struct {
		key, value string
	}{
		{"server_port", "abc"},
		{"server_port", "70000"},
		{"cache_ttl", "soon"},
		{"cache_ttl", "0s"},
		{"platform", "windows"},
		{"no_such_key", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			assert.ErrorIs(t, m.Set(tt.key, tt.value), ErrInvalid)
		})
	}

	assert.Equal(t, 8080, m.Get().ServerPort, "rejected values are not applied")
}
