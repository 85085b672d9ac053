package config

import (
	"testing"
	"time"
)

func TestLoadEngineOverlaysEnvironmentOnPreset(t *testing.T) {
	cfg, err := LoadEngineFrom("low", map[string]string{
		"GALAXY_TICK_RATE":  "150ms",
		"GALAXY_AI_TIMEOUT": "50ms",
		"GALAXY_ROUTES":     "military=war-room,economic:business=corporate",
	})
	if err != nil {
		t.Fatalf("LoadEngineFrom returned error: %v", err)
	}

	if cfg.TickRate != 150*time.Millisecond {
		t.Errorf("expected tick rate override 150ms, got %s", cfg.TickRate)
	}
	if cfg.AITimeout != 50*time.Millisecond {
		t.Errorf("expected ai timeout override 50ms, got %s", cfg.AITimeout)
	}
	if cfg.BatchSize != LowResourceEngineConfig().BatchSize {
		t.Errorf("expected preset batch size %d, got %d", LowResourceEngineConfig().BatchSize, cfg.BatchSize)
	}
	if cfg.Routes["military"] != "war-room" {
		t.Errorf("expected military route override, got %q", cfg.Routes["military"])
	}
	if cfg.Routes["economic:business"] != "corporate" {
		t.Errorf("expected economic:business route override, got %q", cfg.Routes["economic:business"])
	}
	if cfg.Routes["character"] != "psychology" {
		t.Errorf("expected default character route, got %q", cfg.Routes["character"])
	}
}

func TestValidateRejectsNonPositiveKnobs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"tick rate", func(c *EngineConfig) { c.TickRate = 0 }},
		{"batch size", func(c *EngineConfig) { c.BatchSize = 0 }},
		{"concurrency", func(c *EngineConfig) { c.MaxConcurrency = -1 }},
		{"ai timeout", func(c *EngineConfig) { c.AITimeout = 0 }},
		{"cache size", func(c *EngineConfig) { c.CacheSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}

	if err := DefaultEngineConfig().Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestCloneDetachesRoutes(t *testing.T) {
	cfg := DefaultEngineConfig()
	clone := cfg.Clone()
	clone.Routes["character"] = "mutated"

	if cfg.Routes["character"] != "psychology" {
		t.Errorf("clone shares routes map with original")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	var cfg ServerConfig
	if err := ParseEnvFrom(&cfg, map[string]string{"GALAXY_DB_DRIVER": "postgres"}); err != nil {
		t.Fatalf("ParseEnvFrom returned error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("expected driver override, got %q", cfg.DBDriver)
	}
	if cfg.MonthlyBudgetUSD != 50 {
		t.Errorf("expected default monthly budget 50, got %v", cfg.MonthlyBudgetUSD)
	}
}

func TestLoadServerLLMSettings(t *testing.T) {
	var cfg ServerConfig
	err := ParseEnvFrom(&cfg, map[string]string{
		"GALAXY_LLM_MODULES":   "military,political",
		"GALAXY_LLM_SHADOW":    "true",
		"GALAXY_TUNE_INTERVAL": "30s",
	})
	if err != nil {
		t.Fatalf("ParseEnvFrom returned error: %v", err)
	}
	if len(cfg.LLMModules) != 2 || cfg.LLMModules[1] != "political" {
		t.Errorf("unexpected LLM modules %v", cfg.LLMModules)
	}
	if !cfg.ShadowMode || cfg.TuneInterval != 30*time.Second {
		t.Errorf("unexpected shadow/tune settings: %v %v", cfg.ShadowMode, cfg.TuneInterval)
	}
}

func TestLoadServerTracingSettings(t *testing.T) {
	var cfg ServerConfig
	if err := ParseEnvFrom(&cfg, map[string]string{}); err != nil {
		t.Fatalf("ParseEnvFrom returned error: %v", err)
	}
	if cfg.OTelEndpoint != "" || !cfg.OTelEnabled || cfg.OTelSampleRatio != 0.1 {
		t.Errorf("unexpected tracing defaults: %q %v %v", cfg.OTelEndpoint, cfg.OTelEnabled, cfg.OTelSampleRatio)
	}

	err := ParseEnvFrom(&cfg, map[string]string{
		"GALAXY_OTEL_ENDPOINT":     "http://collector:4318",
		"GALAXY_OTEL_ENABLED":      "false",
		"GALAXY_OTEL_SAMPLE_RATIO": "1",
	})
	if err != nil {
		t.Fatalf("ParseEnvFrom returned error: %v", err)
	}
	if cfg.OTelEndpoint != "http://collector:4318" || cfg.OTelEnabled || cfg.OTelSampleRatio != 1 {
		t.Errorf("unexpected tracing overrides: %q %v %v", cfg.OTelEndpoint, cfg.OTelEnabled, cfg.OTelSampleRatio)
	}
}
