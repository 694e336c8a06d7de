// Package config provides typed configuration for the canvas backend.
//
// Configuration is layered, lowest priority first:
//  1. Defaults (Default)
//  2. An optional YAML file
//  3. CANVAS_* environment variables
//
// The result is validated with go-playground/validator struct tags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Driver selects the persistence gateway implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverSupabase Driver = "supabase"
)

// Config is the root configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`
	Log         Log         `yaml:"log"`
	Persistence Persistence `yaml:"persistence"`
	Session     Session     `yaml:"session"`
	Viewport    Viewport    `yaml:"viewport"`
	Breaker     Breaker     `yaml:"breaker"`
	Metrics     Metrics     `yaml:"metrics"`
	Tracing     Tracing     `yaml:"tracing"`
	Templates   Templates   `yaml:"templates"`
	Identity    Identity    `yaml:"identity"`

	// LoadedFrom lists the sources that contributed to this configuration.
	LoadedFrom []string `yaml:"-"`
}

// Log configures the zap logger.
type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Persistence selects and configures the gateway.
type Persistence struct {
	Driver      Driver        `yaml:"driver" validate:"required,oneof=memory sqlite postgres supabase"`
	DSN         string        `yaml:"dsn" validate:"required_if=Driver sqlite,required_if=Driver postgres"`
	SupabaseURL string        `yaml:"supabase_url" validate:"required_if=Driver supabase"`
	SupabaseKey string        `yaml:"supabase_key" validate:"required_if=Driver supabase"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Retry configures bounded exponential backoff for field updates.
type Retry struct {
	MaxRetries    int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	InitialDelay  time.Duration `yaml:"initial_delay" validate:"gte=0"`
	MaxDelay      time.Duration `yaml:"max_delay" validate:"gtefield=InitialDelay"`
	BackoffFactor float64       `yaml:"backoff_factor" validate:"gte=1"`
	JitterFactor  float64       `yaml:"jitter_factor" validate:"gte=0,lte=1"`
}

// Session configures the editing session controller.
type Session struct {
	// QuietPeriod is how long a coalesced mutation waits for further edits
	// before it is persisted.
	QuietPeriod time.Duration `yaml:"quiet_period" validate:"gt=0"`
	// StaggerStep offsets consecutive nodes added without a position.
	StaggerStep float64 `yaml:"stagger_step" validate:"gte=0"`
	// StaggerWrap resets the stagger after this many placements.
	StaggerWrap     int   `yaml:"stagger_wrap" validate:"gt=0"`
	DefaultNodeSize Size  `yaml:"default_node_size"`
	Retry           Retry `yaml:"retry"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// Viewport configures the navigation controller.
type Viewport struct {
	ZoomStep   float64 `yaml:"zoom_step" validate:"gt=1"`
	MinZoom    float64 `yaml:"min_zoom" validate:"gt=0"`
	MaxZoom    float64 `yaml:"max_zoom" validate:"gtfield=MinZoom"`
	FitPadding float64 `yaml:"fit_padding" validate:"gte=0,lt=0.5"`
	Screen     Size    `yaml:"screen"`
}

// Breaker configures the gateway circuit breaker.
type Breaker struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" validate:"gt=0"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" validate:"gt=0"`
}

// Metrics configures the Prometheus collector.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required"`
}

// Tracing configures OpenTelemetry.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name" validate:"required"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Templates configures the template instantiator.
type Templates struct {
	// PreferRemote makes instantiation call the atomic remote procedure
	// first and fall back to client orchestration when it is unavailable.
	PreferRemote bool `yaml:"prefer_remote"`
}

// Identity configures how the current user is resolved.
type Identity struct {
	// UserID is used by the static provider.
	UserID string `yaml:"user_id"`
	// AccessToken switches to the Supabase provider when set.
	AccessToken string `yaml:"access_token"`
}

// Default returns a configuration that runs without any file or environment.
func Default() *Config {
	return &Config{
		Environment: Development,
		Log:         Log{Level: "info"},
		Persistence: Persistence{
			Driver:  DriverMemory,
			Timeout: 10 * time.Second,
		},
		Session: Session{
			QuietPeriod:     500 * time.Millisecond,
			StaggerStep:     24,
			StaggerWrap:     10,
			DefaultNodeSize: Size{Width: 200, Height: 100},
			Retry: Retry{
				MaxRetries:    3,
				InitialDelay:  100 * time.Millisecond,
				MaxDelay:      5 * time.Second,
				BackoffFactor: 2.0,
				JitterFactor:  0.1,
			},
		},
		Viewport: Viewport{
			ZoomStep:   1.2,
			MinZoom:    0.1,
			MaxZoom:    4.0,
			FitPadding: 0.1,
			Screen:     Size{Width: 1280, Height: 800},
		},
		Breaker: Breaker{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Metrics: Metrics{Enabled: true, Namespace: "canvas"},
		Tracing: Tracing{ServiceName: "canvas-backend", SampleRate: 0.1},
	}
}

var validate = validator.New()

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether the configuration targets production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
