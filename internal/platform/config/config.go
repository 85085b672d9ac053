// Package config loads engine and server settings from the environment.
// Settings are read once at startup; the engine keeps its own copy afterwards.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

// EngineConfig holds the tick engine tuning knobs.
// Fields carry no env defaults: a preset supplies them and the environment only overrides.
type EngineConfig struct {
	TickRate       time.Duration     `env:"GALAXY_TICK_RATE"`
	BatchSize      int               `env:"GALAXY_BATCH_SIZE"`
	MaxConcurrency int               `env:"GALAXY_MAX_CONCURRENCY"`
	AITimeout      time.Duration     `env:"GALAXY_AI_TIMEOUT"`
	CacheSize      int               `env:"GALAXY_CACHE_SIZE"`
	EventBuffer    int               `env:"GALAXY_EVENT_BUFFER"`
	Routes         map[string]string `env:"GALAXY_ROUTES" envSeparator:"," envKeyValSeparator:"="`
}

// ServerConfig holds process level settings for cmd/galaxy-server.
type ServerConfig struct {
	Addr             string        `env:"GALAXY_ADDR" envDefault:":8080"`
	DBDriver         string        `env:"GALAXY_DB_DRIVER" envDefault:"sqlite"` // "sqlite", "postgres" or "none"
	DBPath           string        `env:"GALAXY_DB_PATH" envDefault:"data/galaxy.db"`
	PostgresDSN      string        `env:"GALAXY_POSTGRES_DSN"`
	Profile          string        `env:"GALAXY_PROFILE" envDefault:"default"`
	OpenAIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIModel      string        `env:"GALAXY_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	LLMModules       []string      `env:"GALAXY_LLM_MODULES" envSeparator:","`
	ShadowMode       bool          `env:"GALAXY_LLM_SHADOW" envDefault:"false"`
	DailyBudgetUSD   float64       `env:"GALAXY_LLM_DAILY_BUDGET_USD" envDefault:"10"`
	MonthlyBudgetUSD float64       `env:"GALAXY_LLM_MONTHLY_BUDGET_USD" envDefault:"50"`
	TuneInterval     time.Duration `env:"GALAXY_TUNE_INTERVAL" envDefault:"1m"`
	OTelServiceName  string        `env:"GALAXY_OTEL_SERVICE_NAME" envDefault:"galaxy-server"`
	OTelEndpoint     string        `env:"GALAXY_OTEL_ENDPOINT"` // Empty disables tracing
	OTelEnabled      bool          `env:"GALAXY_OTEL_ENABLED" envDefault:"true"`
	OTelSampleRatio  float64       `env:"GALAXY_OTEL_SAMPLE_RATIO" envDefault:"0.1"`
}

// DefaultRoutes maps action domains to the AI module that decides them.
func DefaultRoutes() map[string]string {
	return map[string]string{
		"character":           "psychology",
		"economic:individual": "financial",
		"economic:business":   "financial",
		"social:cultural":     "culture",
		"social:political":    "political",
		"military":            "military",
	}
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvFrom loads configuration from an explicit variable set instead of the process environment.
func ParseEnvFrom(target any, vars map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEngine starts from the named preset and overlays any GALAXY_* variables set in the environment.
func LoadEngine(profile string) (EngineConfig, error) {
	return loadEngine(profile, ParseEnv)
}

// LoadEngineFrom is LoadEngine reading from an explicit variable set.
func LoadEngineFrom(profile string, vars map[string]string) (EngineConfig, error) {
	return loadEngine(profile, func(target any) error { return ParseEnvFrom(target, vars) })
}

func loadEngine(profile string, parse func(any) error) (EngineConfig, error) {
	cfg := Preset(profile)
	cfg.Routes = nil
	if err := parse(&cfg); err != nil {
		return EngineConfig{}, err
	}
	cfg = cfg.WithDefaultRoutes()
	return cfg, cfg.Validate()
}

// LoadServer reads a ServerConfig from the environment.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := ParseEnv(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// WithDefaultRoutes returns a copy whose missing domains fall back to DefaultRoutes.
func (c EngineConfig) WithDefaultRoutes() EngineConfig {
	routes := DefaultRoutes()
	for domain, module := range c.Routes {
		routes[domain] = module
	}
	c.Routes = routes
	return c
}

// Clone returns a deep copy so callers cannot mutate a running engine's routes.
func (c EngineConfig) Clone() EngineConfig {
	routes := make(map[string]string, len(c.Routes))
	for k, v := range c.Routes {
		routes[k] = v
	}
	c.Routes = routes
	return c
}

// Validate rejects values the scheduler cannot run with.
func (c EngineConfig) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick rate must be positive, got %s", c.TickRate))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.AITimeout <= 0 {
		errs = append(errs, fmt.Errorf("ai timeout must be positive, got %s", c.AITimeout))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.CacheSize))
	}
	if c.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("event buffer must not be negative, got %d", c.EventBuffer))
	}
	return errors.Join(errs...)
}

// DefaultEngineConfig returns sensible defaults for production.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickRate:       time.Second,
		BatchSize:      10,
		MaxConcurrency: runtime.NumCPU(), // decisions are mostly I/O bound on the AI side
		AITimeout:      5 * time.Second,
		CacheSize:      1000,
		EventBuffer:    256,
		Routes:         DefaultRoutes(),
	}
}

// StressTestEngineConfig returns aggressive settings for load testing.
func StressTestEngineConfig() EngineConfig {
	numCPU := runtime.NumCPU()

	return EngineConfig{
		TickRate:       250 * time.Millisecond,
		BatchSize:      25,
		MaxConcurrency: numCPU * 4,
		AITimeout:      2 * time.Second,
		CacheSize:      10000,
		EventBuffer:    4096,
		Routes:         DefaultRoutes(),
	}
}

// LowResourceEngineConfig returns minimal settings for development.
func LowResourceEngineConfig() EngineConfig {
	return EngineConfig{
		TickRate:       2 * time.Second,
		BatchSize:      5,
		MaxConcurrency: 2,
		AITimeout:      10 * time.Second,
		CacheSize:      100,
		EventBuffer:    64,
		Routes:         DefaultRoutes(),
	}
}

// Preset resolves a named profile. Unknown names fall back to the default profile.
func Preset(name string) EngineConfig {
	switch name {
	case "stress":
		return StressTestEngineConfig()
	case "low":
		return LowResourceEngineConfig()
	default:
		return DefaultEngineConfig()
	}
}
