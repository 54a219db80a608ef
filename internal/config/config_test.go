package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "http", cfg.Transport.Mode)
	require.False(t, cfg.Auth.Enabled)
	require.Equal(t, "applets.db", cfg.DB.Path)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPLET_SERVER_HOST", "127.0.0.1")
	t.Setenv("APPLET_SERVER_PORT", "9090")
	t.Setenv("APPLET_TRANSPORT_MODE", "stdio")
	t.Setenv("APPLET_AUTH_ENABLED", "true")
	t.Setenv("APPLET_DB_PATH", "/tmp/applets.db")
	t.Setenv("APPLET_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "stdio", cfg.Transport.Mode)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "/tmp/applets.db", cfg.DB.Path)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\nauth:\n  enabled: true\n"), 0o600))
	t.Setenv("APPLET_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	// File values still lose to env.
	t.Setenv("APPLET_SERVER_PORT", "7071")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 7071, cfg.Server.Port)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("APPLET_SERVER_PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("APPLET_SERVER_PORT", "8080")
	t.Setenv("APPLET_TRANSPORT_MODE", "carrier-pigeon")
	_, err = Load()
	require.Error(t, err)
}
