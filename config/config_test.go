package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "train-model.yml", cfg.WorkflowFile)
	assert.Equal(t, "main", cfg.WorkflowRef)
	assert.InDelta(t, 1000.0, cfg.BudgetLimitUSD, 0.001)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BUDGET_LIMIT_USD", "250.5")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.InDelta(t, 250.5, cfg.BudgetLimitUSD, 0.001)
	assert.Equal(t, "5s", cfg.PollInterval.String())
}

func TestPricingDefaultsWithoutFile(t *testing.T) {
	cfg := &Config{}

	table, err := cfg.Pricing()
	require.NoError(t, err)

	assert.InDelta(t, 0.75, table.HourlyUSD["t4-small"], 0.001)
	assert.InDelta(t, 2.0, table.StepsPerSecond["t4-small"], 0.001)
}

func TestPricingYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yml")
	content := `
hardware:
  h200-super:
    hourly_usd: 12.5
    steps_per_second: 40
baseline_hourly_usd: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := &Config{PricingFile: path}
	table, err := cfg.Pricing()
	require.NoError(t, err)

	assert.InDelta(t, 12.5, table.HourlyUSD["h200-super"], 0.001)
	assert.InDelta(t, 40.0, table.StepsPerSecond["h200-super"], 0.001)
	assert.InDelta(t, 1.5, table.BaselineHourlyUSD, 0.001)
	// unspecified baseline keeps the built-in value
	assert.Greater(t, table.BaselineStepsPerSc, 0.0)

	// the override replaces the hardware table wholesale
	_, ok := table.HourlyUSD["t4-small"]
	assert.False(t, ok)
}

func TestPricingMissingFile(t *testing.T) {
	cfg := &Config{PricingFile: "/nonexistent/pricing.yml"}

	_, err := cfg.Pricing()
	assert.Error(t, err)
}
