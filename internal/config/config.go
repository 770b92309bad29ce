// Package config reads all configuration from environment variables, the
// way the nightly CI workflow provides it.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environments the autotester runs against. The environment selects which
// section of the service mapping applies and which credentials the workflow
// injected; it never changes reconciliation logic.
const (
	EnvironmentProduction = "production"
	EnvironmentUAT        = "uat"
)

// Config holds all configuration for one autotester invocation.
type Config struct {
	// Environment selection
	Environment string

	// Issue tracker configuration
	TrackerRepository string // "owner/repo"
	TrackerToken      string
	AppID             string
	AppInstallationID string
	AppPrivateKeyPath string
	MarkerLabel       string

	// Inputs
	DiscoveryFile      string
	ServiceMappingFile string
	ServiceConceptID   string // empty reconciles every mapped service
	TestDirectory      string // overrides the mapping for a single service

	// Reconciliation behavior
	RetryAttempts         int
	RetryBackoffSeconds   int
	ClosePassingAfterDays int
	CloseDisassociated    bool
	DryRun                bool
	MaxConcurrentServices int

	// Run history
	HistoryDatabaseURL string // "off" disables persistence

	// Notifications
	SlackToken   string
	SlackChannel string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Environment = getEnvOrDefault("ENVIRONMENT", EnvironmentProduction)
	if cfg.Environment != EnvironmentProduction && cfg.Environment != EnvironmentUAT {
		return nil, fmt.Errorf("ENVIRONMENT must be %q or %q, got %q",
			EnvironmentProduction, EnvironmentUAT, cfg.Environment)
	}

	cfg.TrackerRepository = os.Getenv("GH_REPOSITORY")
	cfg.TrackerToken = os.Getenv("GH_TOKEN")
	cfg.AppID = os.Getenv("GH_APP_ID")
	cfg.AppInstallationID = os.Getenv("GH_APP_INSTALLATION_ID")
	cfg.AppPrivateKeyPath = os.Getenv("GH_APP_PRIVATE_KEY_PATH")
	cfg.MarkerLabel = getEnvOrDefault("MARKER_LABEL", "autotester")

	cfg.DiscoveryFile = getEnvOrDefault("DISCOVERY_FILE", "discovery.json")
	cfg.ServiceMappingFile = getEnvOrDefault("SERVICE_MAPPING_FILE", "services.yml")
	cfg.ServiceConceptID = os.Getenv("SERVICE_CONCEPT_ID")
	cfg.TestDirectory = os.Getenv("TEST_DIRECTORY")

	cfg.RetryAttempts = getEnvAsIntOrDefault("RETRY_ATTEMPTS", 3)
	cfg.RetryBackoffSeconds = getEnvAsIntOrDefault("RETRY_BACKOFF_SECONDS", 2)
	cfg.ClosePassingAfterDays = getEnvAsIntOrDefault("CLOSE_PASSING_AFTER_DAYS", 0)
	cfg.CloseDisassociated = getEnvAsBoolOrDefault("CLOSE_DISASSOCIATED", true)
	cfg.DryRun = getEnvAsBoolOrDefault("DRY_RUN", false)
	cfg.MaxConcurrentServices = getEnvAsIntOrDefault("MAX_CONCURRENT_SERVICES", 4)

	cfg.HistoryDatabaseURL = getEnvOrDefault("HISTORY_DATABASE_URL", "autotester.db")

	cfg.SlackToken = os.Getenv("SLACK_TOKEN")
	cfg.SlackChannel = os.Getenv("SLACK_CHANNEL")

	if !cfg.DryRun {
		if cfg.TrackerRepository == "" {
			return nil, fmt.Errorf("GH_REPOSITORY is not set")
		}
		if cfg.TrackerToken == "" && !cfg.HasAppAuth() {
			return nil, fmt.Errorf("either GH_TOKEN or GitHub App credentials (GH_APP_ID, GH_APP_INSTALLATION_ID, GH_APP_PRIVATE_KEY_PATH) must be set")
		}
	}

	return cfg, nil
}

// HasAppAuth reports whether complete GitHub App credentials are configured.
// App auth takes precedence over a static token when both are present.
func (c *Config) HasAppAuth() bool {
	return c.AppID != "" && c.AppInstallationID != "" && c.AppPrivateKeyPath != ""
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the value of an environment variable as an integer or a default value
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault returns the value of an environment variable as a boolean or a default value
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
