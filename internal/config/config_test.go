package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
akahu:
  user_token: user-from-file
  app_token: app-from-file
ynab:
  enabled: false
sync:
  debug: all
http:
  schedule_interval: 15m
`), 0o600))

	t.Setenv("AKAHU_USER_TOKEN", "user-from-env")
	t.Setenv("RUN_SYNC_TO_YNAB", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "user-from-env", cfg.Akahu.UserToken)
	assert.Equal(t, "app-from-file", cfg.Akahu.AppToken)
	assert.Equal(t, "https://api.akahu.io/v1", cfg.Akahu.Endpoint)
	assert.True(t, cfg.YNAB.Enabled)
	assert.Equal(t, "all", cfg.Sync.Debug)
	assert.Equal(t, 15*time.Minute, cfg.HTTP.ScheduleInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv_BadBool(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"RUN_SYNC_TO_AB": "maybe",
		"FORCE_REFRESH":  "1",
	}))
	assert.ErrorContains(t, err, "RUN_SYNC_TO_AB")
	assert.True(t, cfg.Sync.ForceRefresh)
}

func TestHeaders(t *testing.T) {
	cfg := Default()
	cfg.Akahu.UserToken = "u"
	cfg.Akahu.AppToken = "a"
	cfg.YNAB.Token = "y"

	assert.Equal(t, map[string]string{"Authorization": "Bearer u", "X-Akahu-Id": "a"}, cfg.AkahuHeaders())
	assert.Equal(t, "Bearer y", cfg.YNABHeaders()["Authorization"])
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Akahu.UserToken = "u"
	valid.Akahu.AppToken = "a"
	valid.YNAB.Token = "y"
	valid.Actual.BridgeURL = "http://localhost:5007"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"ynab token missing", func(c *Config) { c.YNAB.Token = "" }, "ynab token"},
		{"ynab disabled without token", func(c *Config) { c.YNAB.Enabled = false; c.YNAB.Token = "" }, ""},
		{"actual bridge missing", func(c *Config) { c.Actual.BridgeURL = "" }, "actual bridge url"},
		{"akahu tokens missing", func(c *Config) { c.Akahu.AppToken = "" }, "akahu user and app tokens"},
		{"no mapping location", func(c *Config) { c.Mapping.File = "" }, "mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
