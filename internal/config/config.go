package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"testforge/internal/plan"
	"testforge/internal/scoring"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Database     DatabaseConfig     `yaml:"database"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Security     SecurityConfig     `yaml:"security"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	AutoFix      AutoFixConfig      `yaml:"autofix"`
	Economy      plan.CostPolicy    `yaml:"economy"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type OrchestratorConfig struct {
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout"`
	MaxTimeout      time.Duration `yaml:"max_timeout"`
	MaxConcurrent   int64         `yaml:"max_concurrent"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Sample   float64 `yaml:"sample_rate"`
}

type SecurityConfig struct {
	APIKeyHeader   string   `yaml:"api_key_header"`
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// ScoringConfig controls severity penalties and overall-status thresholds.
type ScoringConfig struct {
	Penalties           scoring.Penalties             `yaml:"penalties"`
	Thresholds          scoring.Thresholds            `yaml:"thresholds"`
	CategoryThresholds  map[string]scoring.Thresholds `yaml:"category_thresholds"`
	RescoreAppliedFixes bool                          `yaml:"rescore_applied_fixes"`
}

// AutoFixConfig controls the auto-fix gate.
type AutoFixConfig struct {
	Enabled            bool `yaml:"enabled"`
	AutoApplyThreshold int  `yaml:"auto_apply_threshold"` // Inclusive: confidence >= threshold applies
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // > max analyzer timeout + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Orchestrator: OrchestratorConfig{
			AnalyzerTimeout: 60 * time.Second,
			MaxTimeout:      4 * time.Minute,
			MaxConcurrent:   100,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
			Sample:  0.1,
		},
		Security: SecurityConfig{
			APIKeyHeader:   "X-API-Key",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		Scoring: ScoringConfig{
			Penalties:  scoring.DefaultPenalties(),
			Thresholds: scoring.DefaultThresholds(),
		},
		AutoFix: AutoFixConfig{
			Enabled:            true,
			AutoApplyThreshold: 90,
		},
		Economy: plan.DefaultCostPolicy(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Orchestrator.AnalyzerTimeout > c.Orchestrator.MaxTimeout {
		return fmt.Errorf("orchestrator.analyzer_timeout (%s) must be <= max_timeout (%s)",
			c.Orchestrator.AnalyzerTimeout, c.Orchestrator.MaxTimeout)
	}
	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("orchestrator.max_concurrent must be >= 1")
	}
	if err := c.Economy.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Penalties.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Thresholds.Validate(); err != nil {
		return err
	}
	for cat, t := range c.Scoring.CategoryThresholds {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("category_thresholds.%s: %w", cat, err)
		}
	}
	if c.AutoFix.AutoApplyThreshold < 0 || c.AutoFix.AutoApplyThreshold > 100 {
		return fmt.Errorf("autofix.auto_apply_threshold must be 0-100, got %d", c.AutoFix.AutoApplyThreshold)
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
