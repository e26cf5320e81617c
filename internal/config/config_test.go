package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, &Config{
			ServerURL:      "http://localhost:3000",
			LogLevel:       "info",
			RequestTimeout: 15 * time.Second,
			HistoryCount:   50,
		}, cfg)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("GOCHAT_SERVER_URL", "https://chat.example.com")
		t.Setenv("GOCHAT_USERNAME", "alice")
		t.Setenv("GOCHAT_DEBUG_ADDR", "localhost:6060")
		t.Setenv("GOCHAT_LOG_LEVEL", "debug")
		t.Setenv("GOCHAT_REQUEST_TIMEOUT", "3s")
		t.Setenv("GOCHAT_HISTORY_COUNT", "20")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, &Config{
			ServerURL:      "https://chat.example.com",
			Username:       "alice",
			DebugAddr:      "localhost:6060",
			LogLevel:       "debug",
			RequestTimeout: 3 * time.Second,
			HistoryCount:   20,
		}, cfg)
	})

	t.Run("dotenv file", func(t *testing.T) {
		// godotenv never overrides variables that are already set
		t.Setenv("GOCHAT_USERNAME", "")
		os.Unsetenv("GOCHAT_USERNAME")
		t.Setenv("GOCHAT_LOG_LEVEL", "warn")

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("GOCHAT_USERNAME=bob\nGOCHAT_LOG_LEVEL=trace\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("GOCHAT_USERNAME") })

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "bob", cfg.Username)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("bad value", func(t *testing.T) {
		t.Setenv("GOCHAT_REQUEST_TIMEOUT", "soon")
		_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := Config{
		ServerURL:      "http://localhost:3000",
		LogLevel:       "info",
		RequestTimeout: time.Second,
	}

	tcases := []struct {
		name   string
		modify func(*Config)
		err    bool
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "missing server", modify: func(c *Config) { c.ServerURL = "" }, err: true},
		{name: "websocket server", modify: func(c *Config) { c.ServerURL = "ws://localhost:3000" }, err: true},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "loud" }, err: true},
		{name: "zero timeout", modify: func(c *Config) { c.RequestTimeout = 0 }, err: true},
		{name: "negative history", modify: func(c *Config) { c.HistoryCount = -1 }, err: true},
		{name: "debug addr", modify: func(c *Config) { c.DebugAddr = "127.0.0.1:6060" }},
		{name: "bad debug addr", modify: func(c *Config) { c.DebugAddr = "not an addr" }, err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
