package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "CANVAS_"

// Loader reads configuration from defaults, an optional YAML file and the
// environment.
type Loader struct {
	path    string
	lookup  func(string) (string, bool)
	sources []string
}

// NewLoader creates a loader for the YAML file at path. An empty path skips
// the file layer.
func NewLoader(path string) *Loader {
	return &Loader{path: path, lookup: os.LookupEnv}
}

// WithLookup replaces the environment lookup, mainly for tests.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	l.sources = append(l.sources[:0], "defaults")

	if l.path != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, err
		}
	}

	if err := l.loadEnvironment(cfg); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = append([]string(nil), l.sources...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open config %s: %w", l.path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", l.path, err)
	}
	l.sources = append(l.sources, l.path)
	return nil
}

// loadEnvironment overlays CANVAS_* variables.
func (l *Loader) loadEnvironment(cfg *Config) error {
	var errs []string
	used := false

	str := func(key string, dst *string) {
		if v, ok := l.lookup(EnvPrefix + key); ok {
			*dst = v
			used = true
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := l.lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = d
			used = true
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := l.lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = b
			used = true
		}
	}

	var env, driver string
	str("ENVIRONMENT", &env)
	if env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("PERSISTENCE_DRIVER", &driver)
	if driver != "" {
		cfg.Persistence.Driver = Driver(strings.ToLower(driver))
	}
	str("PERSISTENCE_DSN", &cfg.Persistence.DSN)
	str("SUPABASE_URL", &cfg.Persistence.SupabaseURL)
	str("SUPABASE_KEY", &cfg.Persistence.SupabaseKey)
	dur("PERSISTENCE_TIMEOUT", &cfg.Persistence.Timeout)
	dur("SESSION_QUIET_PERIOD", &cfg.Session.QuietPeriod)
	boolean("BREAKER_ENABLED", &cfg.Breaker.Enabled)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	boolean("TEMPLATES_PREFER_REMOTE", &cfg.Templates.PreferRemote)
	str("USER_ID", &cfg.Identity.UserID)
	str("ACCESS_TOKEN", &cfg.Identity.AccessToken)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	if used {
		l.sources = append(l.sources, "environment")
	}
	return nil
}

// Load is a convenience wrapper around NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}
