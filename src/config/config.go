package config

import (
	"fmt"
	"os"

	"coin-observer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills in zero-valued knobs with the service defaults.
func (c *Config) applyDefaults() {
	if c.History.BaseURL == "" {
		c.History.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.History.RateLimitDelay <= 0 {
		c.History.RateLimitDelay = 1.2 // CoinGecko free tier
	}
	if c.History.MaxGapHours <= 0 {
		c.History.MaxGapHours = 2
	}
	if c.History.BatchSize <= 0 {
		c.History.BatchSize = 50
	}
	if c.History.BatchCooldown <= 0 {
		c.History.BatchCooldown = 10
	}
	if c.History.CommitEvery <= 0 {
		c.History.CommitEvery = 100
	}

	if c.Scheduler.PriceUpdateSeconds <= 0 {
		c.Scheduler.PriceUpdateSeconds = 30
	}
	if c.Scheduler.AggregationMinutes <= 0 {
		c.Scheduler.AggregationMinutes = 5
	}
	if c.Scheduler.CleanupHours <= 0 {
		c.Scheduler.CleanupHours = 24
	}
	if c.Scheduler.DiscoveryHours <= 0 {
		c.Scheduler.DiscoveryHours = 6
	}
	if c.Scheduler.HealthHours <= 0 {
		c.Scheduler.HealthHours = 1
	}

	if c.Retention.RawHours <= 0 {
		c.Retention.RawHours = 24
	}
	if c.Retention.Tier5mD <= 0 {
		c.Retention.Tier5mD = 7
	}
	if c.Retention.Tier1hD <= 0 {
		c.Retention.Tier1hD = 30
	}
	if c.Retention.Tier1dD <= 0 {
		c.Retention.Tier1dD = 365
	}

	if c.Network.RequestTimeout <= 0 {
		c.Network.RequestTimeout = 30
	}
	if c.Network.ConcurrentRequests <= 0 {
		c.Network.ConcurrentRequests = 4
	}
	if len(c.Exchanges.QuoteCurrencies) == 0 {
		c.Exchanges.QuoteCurrencies = []string{"USDT", "USD"}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if len(c.Exchanges.Enabled) == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}
	for _, name := range c.Exchanges.Enabled {
		switch name {
		case "binance", "kraken", "mexc":
		default:
			return fmt.Errorf("unknown exchange '%s'", name)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
