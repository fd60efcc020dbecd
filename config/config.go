package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"finetune-orchestrator/core/estimator"
)

// Config holds the application configuration.
type Config struct {
	// Server
	ServerPort string

	// Registry; empty means in-memory
	DatabaseURL string

	// Direct submission backend
	HFToken        string
	HFJobsEndpoint string

	// Workflow-dispatch backend
	GitHubToken  string
	RepoOwner    string
	RepoName     string
	WorkflowFile string
	WorkflowRef  string

	// Budget and polling
	BudgetLimitUSD float64
	PollInterval   time.Duration

	// Optional YAML pricing override
	PricingFile string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HFToken:        getEnv("HF_TOKEN", ""),
		HFJobsEndpoint: getEnv("HF_JOBS_ENDPOINT", ""),
		GitHubToken:    getEnv("GH_TOKEN", ""),
		RepoOwner:      getEnv("GITHUB_REPOSITORY_OWNER", ""),
		RepoName:       getEnv("GITHUB_REPOSITORY_NAME", ""),
		WorkflowFile:   getEnv("TRAINING_WORKFLOW_FILE", "train-model.yml"),
		WorkflowRef:    getEnv("WORKFLOW_REF", "main"),
		BudgetLimitUSD: getEnvFloat("BUDGET_LIMIT_USD", 1000),
		PollInterval:   time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 30)) * time.Second,
		PricingFile:    getEnv("PRICING_FILE", ""),
	}
}

// pricingFile is the YAML layout of a pricing override.
type pricingFile struct {
	Hardware map[string]struct {
		HourlyUSD      float64 `yaml:"hourly_usd"`
		StepsPerSecond float64 `yaml:"steps_per_second"`
	} `yaml:"hardware"`
	BaselineHourlyUSD      float64 `yaml:"baseline_hourly_usd"`
	BaselineStepsPerSecond float64 `yaml:"baseline_steps_per_second"`
}

// Pricing returns the hardware pricing table: the built-in defaults, or the
// configured YAML override when PricingFile is set.
func (c *Config) Pricing() (estimator.PricingTable, error) {
	table := estimator.DefaultPricing()
	if c.PricingFile == "" {
		return table, nil
	}

	data, err := os.ReadFile(c.PricingFile)
	if err != nil {
		return table, fmt.Errorf("failed to read pricing file: %w", err)
	}

	var parsed pricingFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return table, fmt.Errorf("invalid pricing file %s: %w", c.PricingFile, err)
	}

	if len(parsed.Hardware) > 0 {
		table.HourlyUSD = make(map[string]float64, len(parsed.Hardware))
		table.StepsPerSecond = make(map[string]float64, len(parsed.Hardware))
		for class, rates := range parsed.Hardware {
			table.HourlyUSD[class] = rates.HourlyUSD
			table.StepsPerSecond[class] = rates.StepsPerSecond
		}
	}
	if parsed.BaselineHourlyUSD > 0 {
		table.BaselineHourlyUSD = parsed.BaselineHourlyUSD
	}
	if parsed.BaselineStepsPerSecond > 0 {
		table.BaselineStepsPerSc = parsed.BaselineStepsPerSecond
	}
	return table, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
