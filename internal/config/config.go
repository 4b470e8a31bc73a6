// Package config loads service settings from defaults, an optional YAML
// file, a .env file and environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Notifier and lock modes.
const (
	NotifierLog = "log"
	NotifierSNS = "sns"

	LockMutex = "mutex"
	LockLease = "lease"
)

// Environment variable names.
const (
	EnvDB                = "STUDYBUDDY_DB"
	EnvStaleTimeout      = "STUDYBUDDY_STALE_TIMEOUT"
	EnvMatchingInterval  = "STUDYBUDDY_MATCHING_INTERVAL"
	EnvReconcileInterval = "STUDYBUDDY_RECONCILE_INTERVAL"
	EnvNotifier          = "STUDYBUDDY_NOTIFIER"
	EnvHTTPAddr          = "STUDYBUDDY_HTTP_ADDR"
	EnvLock              = "STUDYBUDDY_LOCK"
	EnvLockTTL           = "STUDYBUDDY_LOCK_TTL"
	EnvCORSOrigins       = "STUDYBUDDY_CORS_ORIGINS"
	EnvSNSSenderID       = "STUDYBUDDY_SNS_SENDER_ID"
	EnvAWSRegion         = "AWS_REGION"
)

// Duration is a time.Duration written as a Go duration string ("24h").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every setting of the service.
type Config struct {
	// DB is the SQLite database path.
	DB string `yaml:"db"`

	// StaleTimeout is how long a PAIRED request may go unanswered.
	StaleTimeout Duration `yaml:"stale_timeout"`

	MatchingInterval  Duration `yaml:"matching_interval"`
	ReconcileInterval Duration `yaml:"reconcile_interval"`

	// Notifier selects the gateway: "log" or "sns".
	Notifier string    `yaml:"notifier"`
	SNS      SNSConfig `yaml:"sns"`

	// Lock selects the procedure lock: "mutex" (one process) or "lease"
	// (several processes sharing the database).
	Lock    string   `yaml:"lock"`
	LockTTL Duration `yaml:"lock_ttl"`

	// HTTPAddr is where the ops server listens. Empty disables it. The
	// trigger endpoint is unauthenticated, so the default is loopback only.
	HTTPAddr    string   `yaml:"http_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// SNSConfig configures SMS delivery through Amazon SNS.
type SNSConfig struct {
	Region   string `yaml:"region"`
	SenderID string `yaml:"sender_id"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DB:                "studybuddy.db",
		StaleTimeout:      Duration(24 * time.Hour),
		MatchingInterval:  Duration(time.Hour),
		ReconcileInterval: Duration(time.Hour),
		Notifier:          NotifierLog,
		Lock:              LockMutex,
		LockTTL:           Duration(10 * time.Minute),
		HTTPAddr:          "127.0.0.1:8080",
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Strict decoding catches typos like "stale_timout:".
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(d)
		return nil
	}

	str(EnvDB, &c.DB)
	str(EnvNotifier, &c.Notifier)
	str(EnvHTTPAddr, &c.HTTPAddr)
	str(EnvLock, &c.Lock)
	str(EnvAWSRegion, &c.SNS.Region)
	str(EnvSNSSenderID, &c.SNS.SenderID)

	for key, dst := range map[string]*Duration{
		EnvStaleTimeout:      &c.StaleTimeout,
		EnvMatchingInterval:  &c.MatchingInterval,
		EnvReconcileInterval: &c.ReconcileInterval,
		EnvLockTTL:           &c.LockTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvCORSOrigins); ok && v != "" {
		c.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORSOrigins = append(c.CORSOrigins, origin)
			}
		}
	}
	return nil
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	if c.DB == "" {
		return errors.New("db path is required")
	}
	for name, d := range map[string]Duration{
		"stale_timeout":      c.StaleTimeout,
		"matching_interval":  c.MatchingInterval,
		"reconcile_interval": c.ReconcileInterval,
		"lock_ttl":           c.LockTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, time.Duration(d))
		}
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierSNS:
		if c.SNS.Region == "" {
			return errors.New("sns notifier requires a region (sns.region or AWS_REGION)")
		}
	default:
		return fmt.Errorf("invalid notifier %q: must be %q or %q", c.Notifier, NotifierLog, NotifierSNS)
	}

	if c.Lock != LockMutex && c.Lock != LockLease {
		return fmt.Errorf("invalid lock %q: must be %q or %q", c.Lock, LockMutex, LockLease)
	}
	return nil
}
