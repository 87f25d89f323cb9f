package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 0.01, cfg.Matching.TolerancePct)
	assert.Equal(t, 0.05, cfg.Matching.HighSeverityPct)
	assert.Equal(t, "CSCS", cfg.Matching.ReferenceSource)
	assert.Equal(t, "NGX", cfg.Matching.ComparisonSource)
	assert.Equal(t, 6*time.Hour, cfg.GracePeriod())
	assert.Equal(t, 15*time.Minute, cfg.EscalateThreshold())
	assert.Equal(t, time.Minute, cfg.RefreshInterval())
	assert.Equal(t, "ops-triage", cfg.Exceptions.TriageOwner)
	assert.Equal(t, "recon-desk", cfg.Exceptions.Owners["position_break"])
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
matching:
  tolerance_pct: 0.02
exceptions:
  grace_hours: 2
  owners:
    cash_variance: treasury-lagos
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 0.02, cfg.Matching.TolerancePct)
	assert.Equal(t, 2*time.Hour, cfg.GracePeriod())
	assert.Equal(t, "treasury-lagos", cfg.Exceptions.Owners["cash_variance"])
	// Untouched sections still default.
	assert.Equal(t, 0.05, cfg.Matching.HighSeverityPct)
	assert.Equal(t, 15*time.Minute, cfg.EscalateThreshold())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DB_PATH", "/tmp/alt.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "/tmp/alt.db", cfg.DBPath)
}

func TestMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
