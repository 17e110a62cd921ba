package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000", cfg.Client.BaseURL)
	assert.Equal(t, "/sanctum/csrf-cookie", cfg.Client.CSRFPath)
	assert.Equal(t, "XSRF-TOKEN", cfg.Client.CookieName)
	assert.Equal(t, "X-XSRF-TOKEN", cfg.Client.HeaderName)
	assert.Equal(t, 30*time.Second, cfg.Client.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labportal.yaml")
	content := `
client:
  base_url: https://lab.example.org
  timeout: 5s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "https://lab.example.org", cfg.Client.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Не указанные в файле значения остаются по умолчанию
	assert.Equal(t, "XSRF-TOKEN", cfg.Client.CookieName)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LABPORTAL_BASE_URL":   "https://env.example.org",
		"LABPORTAL_TIMEOUT":    "2s",
		"LABPORTAL_RATE_LIMIT": "10",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "https://env.example.org", cfg.Client.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 10, cfg.Server.RateLimit)
}

func TestApplyEnv_InvalidDuration(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "LABPORTAL_TIMEOUT" {
			return "soon", true
		}
		return "", false
	}

	cfg := Default()
	err := cfg.ApplyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LABPORTAL_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "empty base url", mutate: func(c *Config) { c.Client.BaseURL = "" }},
		{name: "no scheme", mutate: func(c *Config) { c.Client.BaseURL = "lab.example.org" }},
		{name: "same cookie and header", mutate: func(c *Config) { c.Client.HeaderName = c.Client.CookieName }},
		{name: "zero timeout", mutate: func(c *Config) { c.Client.Timeout = 0 }},
		{name: "zero rate limit", mutate: func(c *Config) { c.Server.RateLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labportal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  base_url: https://file.example.org\n  timeout: 7s\n"), 0o600))

	args := []string{"--config", path, "--server", "https://flag.example.org", "login", "--role", "admin"}
	cfg, fs, err := Load("labctl", args, func(c *Config, fs *pflag.FlagSet) { c.BindClientFlags(fs) })
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.org", cfg.Client.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.Client.Timeout)
	// Разбор останавливается на команде, ее флаги остаются позиционными
	assert.Equal(t, []string{"login", "--role", "admin"}, fs.Args())
}

func TestConfigPathFromArgs(t *testing.T) {
	assert.Equal(t, "a.yaml", configPathFromArgs([]string{"--config=a.yaml"}))
	assert.Equal(t, "b.yaml", configPathFromArgs([]string{"--server", "x", "--config", "b.yaml"}))
	assert.Equal(t, "", configPathFromArgs([]string{"--", "--config", "c.yaml"}))
	assert.Equal(t, "", configPathFromArgs(nil))
}
