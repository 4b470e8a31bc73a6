package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studybuddy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// clearEnv blanks every variable Load reads; blank values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvDB, EnvStaleTimeout, EnvMatchingInterval, EnvReconcileInterval,
		EnvNotifier, EnvHTTPAddr, EnvLock, EnvLockTTL, EnvCORSOrigins,
		EnvSNSSenderID, EnvAWSRegion,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 24*time.Hour, cfg.StaleTimeout.Std())
	assert.Equal(t, time.Hour, cfg.MatchingInterval.Std())
	assert.Equal(t, NotifierLog, cfg.Notifier)
	assert.Equal(t, LockMutex, cfg.Lock)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr, "ops server listens on loopback unless configured")
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
db: /var/lib/studybuddy/buddy.db
stale_timeout: 12h
matching_interval: 30m
notifier: sns
sns:
  region: ap-northeast-2
  sender_id: SEJONG
lock: lease
cors_origins:
  - https://ops.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/studybuddy/buddy.db", cfg.DB)
	assert.Equal(t, 12*time.Hour, cfg.StaleTimeout.Std())
	assert.Equal(t, 30*time.Minute, cfg.MatchingInterval.Std())
	assert.Equal(t, time.Hour, cfg.ReconcileInterval.Std(), "unset keys keep defaults")
	assert.Equal(t, NotifierSNS, cfg.Notifier)
	assert.Equal(t, SNSConfig{Region: "ap-northeast-2", SenderID: "SEJONG"}, cfg.SNS)
	assert.Equal(t, LockLease, cfg.Lock)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.CORSOrigins)
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "stale_timout: 12h\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale_timout")
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "stale_timeout: a day\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "stale_timeout: 12h\ndb: from-file.db\n")
	t.Setenv(EnvStaleTimeout, "36h")
	t.Setenv(EnvDB, "from-env.db")
	t.Setenv(EnvCORSOrigins, "https://a.example, ,https://b.example")
	t.Setenv(EnvLock, LockLease)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, cfg.StaleTimeout.Std())
	assert.Equal(t, "from-env.db", cfg.DB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, LockLease, cfg.Lock)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv(EnvMatchingInterval, "hourly")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMatchingInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty db", func(c *Config) { c.DB = "" }},
		{"zero timeout", func(c *Config) { c.StaleTimeout = 0 }},
		{"negative interval", func(c *Config) { c.ReconcileInterval = Duration(-time.Minute) }},
		{"unknown notifier", func(c *Config) { c.Notifier = "kakao" }},
		{"sns without region", func(c *Config) { c.Notifier = NotifierSNS }},
		{"unknown lock", func(c *Config) { c.Lock = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
