package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Auth: AuthConfig{
			JWTSecret:               "0123456789abcdef-secret",
			AccessTokenTTL:          15 * time.Minute,
			RefreshTokenTTLDefault:  24 * time.Hour,
			RefreshTokenTTLRemember: 168 * time.Hour,
			Cookie:                  CookieConfig{SameSite: "Lax"},
		},
		Storage: StorageConfig{Driver: "local"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Job:     JobConfig{Timezone: "Africa/Cairo"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret 不能为空"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "16"},
		{"access not shorter", func(c *Config) { c.Auth.AccessTokenTTL = 48 * time.Hour }, "access_token_ttl"},
		{"bad samesite", func(c *Config) { c.Auth.Cookie.SameSite = "weird" }, "same_site"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"oss missing bucket", func(c *Config) { c.Storage.Driver = "oss" }, "bucket"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "s3" }, "storage.driver"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad timezone", func(c *Config) { c.Job.Timezone = "Mars/Olympus" }, "job.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	c := validConfig()
	c.Auth.JWTSecret = ""
	c.Server.Port = 0
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
	assert.Contains(t, err.Error(), "server.port")
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
auth:
  jwt_secret: file-secret-0123456789
redis:
  key_prefix: "test:"
`), 0o600))
	t.Setenv("SCHOOL_SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, "test:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)
	assert.Equal(t, "local", cfg.Storage.Driver)
}
