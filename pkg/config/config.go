package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for recon-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (PGPASSWORD) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory containing golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// RulesPath is the statically declared rule registry file.
	RulesPath string `yaml:"rules_path" env:"RULES_PATH" env-default:"config/rules.yaml"`

	// Matcher configuration (account-label matching thresholds)
	Matcher MatcherConfig `yaml:"matcher"`

	// Covenants holds the global covenant defaults overridable per property.
	Covenants []CovenantDefault `yaml:"covenants"`

	// OptionalFeatures lists the table/column features the schema guard probes
	// at startup. Rules requiring an absent feature are skipped, not failed.
	OptionalFeatures []OptionalFeature `yaml:"optional_features"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"recon"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"recon_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// MatcherConfig holds account-matcher thresholds. SimilarityThreshold is the
// minimum normalized similarity for a fuzzy_name match; ConfidenceFloor is the
// floor below which a best candidate is still reported as unmatched.
type MatcherConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"MATCHER_SIMILARITY_THRESHOLD" env-default:"0.82"`
	ConfidenceFloor     float64 `yaml:"confidence_floor" env:"MATCHER_CONFIDENCE_FLOOR" env-default:"0.60"`
}

// CovenantDefault is one global covenant threshold, used when no
// property-specific override is effective.
type CovenantDefault struct {
	CovenantType string `yaml:"covenant_type"`
	Threshold    string `yaml:"threshold"`
	Operator     string `yaml:"operator"`

	// ThresholdValue is Threshold parsed at load time.
	ThresholdValue decimal.Decimal `yaml:"-"`
}

// OptionalFeature declares one optional table or column the deployment may
// lack, plus the default substituted when it is absent.
type OptionalFeature struct {
	Name    string `yaml:"name"`              // e.g. "mortgage_statements" or "line_items.extraction_confidence"
	Table   string `yaml:"table"`             // table to probe
	Column  string `yaml:"column,omitempty"`  // column to probe; empty = table existence only
	Default string `yaml:"default,omitempty"` // value substituted when absent
}

// Load reads configuration from the given YAML file with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. A missing YAML file is not an error; environment defaults
// apply.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseCovenantDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseCovenantDefaults parses threshold strings into decimals once at load
// time so rule evaluation never touches binary floats.
func (c *Config) parseCovenantDefaults() error {
	for i := range c.Covenants {
		d := &c.Covenants[i]
		if d.CovenantType == "" {
			return fmt.Errorf("covenant default %d is missing covenant_type", i)
		}
		v, err := decimal.NewFromString(d.Threshold)
		if err != nil {
			return fmt.Errorf("covenant default %q has invalid threshold %q: %w", d.CovenantType, d.Threshold, err)
		}
		d.ThresholdValue = v
	}
	return nil
}

// CovenantDefaultFor returns the global default for a covenant type.
func (c *Config) CovenantDefaultFor(covenantType string) (*CovenantDefault, bool) {
	for i := range c.Covenants {
		if c.Covenants[i].CovenantType == covenantType {
			return &c.Covenants[i], true
		}
	}
	return nil, false
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
