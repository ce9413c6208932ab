package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	Storage   MStorageConfig   `yaml:"storage"`
	Network   MNetworkConfig   `yaml:"network"`
	Exchanges MExchangeConfig  `yaml:"exchanges"`
	History   MHistoryConfig   `yaml:"history"`
	Scheduler MSchedulerConfig `yaml:"scheduler"`
	Retention MRetentionConfig `yaml:"retention"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	Proxies            []string `yaml:"proxies"`
	RequestTimeout     int      `yaml:"timeout"`
	MaxRetries         int      `yaml:"retries"`
	ConcurrentRequests int      `yaml:"concurrent_requests"`
	UserAgent          string   `yaml:"user_agent"`
}

type MExchangeConfig struct {
	Enabled         []string `yaml:"enabled"`          // binance, kraken, mexc
	QuoteCurrencies []string `yaml:"quote_currencies"` // e.g. USDT, USD
}

type MHistoryConfig struct {
	BaseURL        string  `yaml:"base_url"`
	RateLimitDelay float64 `yaml:"rate_limit_delay_seconds"`
	MaxGapHours    float64 `yaml:"max_gap_hours"`
	BatchSize      int     `yaml:"batch_size"`
	BatchCooldown  float64 `yaml:"batch_cooldown_seconds"`
	CommitEvery    int     `yaml:"commit_every"`
}

type MSchedulerConfig struct {
	PriceUpdateSeconds int `yaml:"price_update_seconds"`
	AggregationMinutes int `yaml:"aggregation_minutes"`
	CleanupHours       int `yaml:"cleanup_hours"`
	DiscoveryHours     int `yaml:"discovery_hours"`
	HealthHours        int `yaml:"health_hours"`
}

type MRetentionConfig struct {
	RawHours int `yaml:"raw_hours"` // default 24
	Tier5mD  int `yaml:"tier_5m_days"`
	Tier1hD  int `yaml:"tier_1h_days"`
	Tier1dD  int `yaml:"tier_1d_days"`
	// The 1w tier is retained forever and has no knob.
}
