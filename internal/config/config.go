// Package config loads engine configuration from a YAML file with env
// overrides for the deployment-level settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	Matching   MatchingConfig   `yaml:"matching"`
	Exceptions ExceptionsConfig `yaml:"exceptions"`
	Feeds      FeedsConfig      `yaml:"feeds"`
}

type MatchingConfig struct {
	// TolerancePct is the match/break boundary: a pair is a match when both
	// quantity and value variance stay within this fraction of the reference.
	TolerancePct float64 `yaml:"tolerance_pct"`
	// HighSeverityPct is the medium/high severity boundary on quantity
	// variance.
	HighSeverityPct  float64 `yaml:"high_severity_pct"`
	ReferenceSource  string  `yaml:"reference_source"`
	ComparisonSource string  `yaml:"comparison_source"`
}

type ExceptionsConfig struct {
	// GraceHours is how long an open break may age before the cutoff sweep
	// turns it into an exception ticket.
	GraceHours int `yaml:"grace_hours"`
	// EscalateThresholdMinutes is the remaining-SLA level at which an
	// in_progress exception escalates.
	EscalateThresholdMinutes int `yaml:"escalate_threshold_minutes"`
	TickSeconds              int `yaml:"tick_seconds"`
	SweepSeconds             int `yaml:"sweep_seconds"`
	// Owners maps exception category to the team that works it; anything
	// unmapped lands with TriageOwner.
	Owners      map[string]string `yaml:"owners"`
	TriageOwner string            `yaml:"triage_owner"`
}

type FeedsConfig struct {
	FixtureDir string `yaml:"fixture_dir"`
	// RefreshSeconds is the interval of the background reconciliation run
	// that keeps the break book current between operator-triggered runs.
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// Load reads the YAML file at path (optional: a missing file yields pure
// defaults) and applies PORT / DB_PATH env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.DBPath == "" {
		c.DBPath = "backoffice.db"
	}
	if c.Matching.TolerancePct == 0 {
		c.Matching.TolerancePct = 0.01
	}
	if c.Matching.HighSeverityPct == 0 {
		c.Matching.HighSeverityPct = 0.05
	}
	if c.Matching.ReferenceSource == "" {
		c.Matching.ReferenceSource = "CSCS"
	}
	if c.Matching.ComparisonSource == "" {
		c.Matching.ComparisonSource = "NGX"
	}
	if c.Exceptions.GraceHours == 0 {
		c.Exceptions.GraceHours = 6
	}
	if c.Exceptions.EscalateThresholdMinutes == 0 {
		c.Exceptions.EscalateThresholdMinutes = 15
	}
	if c.Exceptions.TickSeconds == 0 {
		c.Exceptions.TickSeconds = 15
	}
	if c.Exceptions.SweepSeconds == 0 {
		c.Exceptions.SweepSeconds = 60
	}
	if c.Exceptions.TriageOwner == "" {
		c.Exceptions.TriageOwner = "ops-triage"
	}
	if c.Exceptions.Owners == nil {
		c.Exceptions.Owners = map[string]string{
			"position_break":   "recon-desk",
			"settlement_fail":  "settlements-desk",
			"corporate_action": "ca-desk",
			"cash_variance":    "treasury-ops",
		}
	}
	if c.Feeds.FixtureDir == "" {
		c.Feeds.FixtureDir = "testdata/feeds"
	}
	if c.Feeds.RefreshSeconds == 0 {
		c.Feeds.RefreshSeconds = 60
	}
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Exceptions.TickSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Exceptions.SweepSeconds) * time.Second
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Exceptions.GraceHours) * time.Hour
}

func (c *Config) EscalateThreshold() time.Duration {
	return time.Duration(c.Exceptions.EscalateThresholdMinutes) * time.Minute
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Feeds.RefreshSeconds) * time.Second
}
