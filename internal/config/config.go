package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Email     EmailConfig     `yaml:"email"`
	Log       LogConfig       `yaml:"log"`
	Fx        FxConfig        `yaml:"fx"`
	Escrow    EscrowConfig    `yaml:"escrow"`
	Rewards   RewardsConfig   `yaml:"rewards"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig contains the idempotency outcome cache settings. The cache is
// optional: an empty host disables it and the gate falls back to Postgres.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig contains service-token settings for admin endpoints
type JWTConfig struct {
	Secret             string `yaml:"secret"`
	TokenExpiryMinutes int    `yaml:"token_expiry_minutes"`
}

// EmailConfig contains SendGrid settings for payout and settlement notices
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	OpsEmail       string `yaml:"ops_email"` // settlement and integrity alerts go here
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// FxConfig holds the conversion rates snapshotted on non-USD deposit locks.
// Rates are keyed "FROM/TO", e.g. "EUR/USD".
type FxConfig struct {
	MarginPercent float64            `yaml:"margin_percent"`
	Rates         map[string]float64 `yaml:"rates"`
}

// EscrowConfig holds the global money constants. It is immutable after load
// and injected at construction into every component so the calculators stay
// pure and independently testable.
type EscrowConfig struct {
	PlatformFeePercent float64 `yaml:"platform_fee_percentage"` // share of revenue kept by the platform
	FGORate            float64 `yaml:"fgo_rate"`                // share of booking fees credited to the fund
	AlphaRate          float64 `yaml:"alpha_rate"`              // share of incremental deposit top-ups credited to the fund
	EventCapCents      int64   `yaml:"event_cap_cents"`         // per-claim FGO payout cap
	DepositGraceHours  int     `yaml:"deposit_grace_hours"`     // lock age before auto-release
	SweepBatchSize     int     `yaml:"sweep_batch_size"`
	FGOAccountID       string  `yaml:"fgo_account_id"`
	FeeAccountID       string  `yaml:"fee_account_id"`
	ClaimsAccountID    string  `yaml:"claims_account_id"`
}

// RewardsConfig holds the participation point weights. The five weights must
// sum to 1.0; Load fails fast otherwise.
type RewardsConfig struct {
	AvailabilityWeight float64 `yaml:"availability_weight"`
	LocationWeight     float64 `yaml:"location_weight"`
	VehicleWeight      float64 `yaml:"vehicle_weight"`
	RatingWeight       float64 `yaml:"rating_weight"`
	BonusWeight        float64 `yaml:"bonus_weight"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	DepositAutoRelease   string `yaml:"deposit_auto_release"`
	LedgerReconciliation string `yaml:"ledger_reconciliation"`
	ClosePools           string `yaml:"close_pools"`
	DistributePools      string `yaml:"distribute_pools"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	if val := os.Getenv("REDIS_HOST"); val != "" {
		c.Redis.Host = val
	}
	if val := os.Getenv("REDIS_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Redis.Port)
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}

	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.TokenExpiryMinutes == 0 {
		c.JWT.TokenExpiryMinutes = 60
	}

	// Escrow defaults mirror production policy: 10% FGO rate on booking
	// fees, 15% alpha on deposit top-ups, $800 per-event cap, 72h grace.
	if c.Escrow.FGORate == 0 {
		c.Escrow.FGORate = 0.10
	}
	if c.Escrow.AlphaRate == 0 {
		c.Escrow.AlphaRate = 0.15
	}
	if c.Escrow.PlatformFeePercent == 0 {
		c.Escrow.PlatformFeePercent = 0.20
	}
	if c.Escrow.EventCapCents == 0 {
		c.Escrow.EventCapCents = 80000
	}
	if c.Escrow.DepositGraceHours == 0 {
		c.Escrow.DepositGraceHours = 72
	}
	if c.Escrow.SweepBatchSize == 0 {
		c.Escrow.SweepBatchSize = 50
	}
	if c.Escrow.FGOAccountID == "" {
		c.Escrow.FGOAccountID = "sys-fgo"
	}
	if c.Escrow.FeeAccountID == "" {
		c.Escrow.FeeAccountID = "sys-fees"
	}
	if c.Escrow.ClaimsAccountID == "" {
		c.Escrow.ClaimsAccountID = "sys-claims"
	}
	if err := validateRate("escrow.fgo_rate", c.Escrow.FGORate); err != nil {
		return err
	}
	if err := validateRate("escrow.alpha_rate", c.Escrow.AlphaRate); err != nil {
		return err
	}
	if err := validateRate("escrow.platform_fee_percentage", c.Escrow.PlatformFeePercent); err != nil {
		return err
	}
	if err := validateRate("fx.margin_percent", c.Fx.MarginPercent); err != nil {
		return err
	}

	if c.Rewards == (RewardsConfig{}) {
		c.Rewards = RewardsConfig{
			AvailabilityWeight: 0.40,
			LocationWeight:     0.15,
			VehicleWeight:      0.15,
			RatingWeight:       0.20,
			BonusWeight:        0.10,
		}
	}
	sum := c.Rewards.AvailabilityWeight + c.Rewards.LocationWeight +
		c.Rewards.VehicleWeight + c.Rewards.RatingWeight + c.Rewards.BonusWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("reward weights must sum to 1.0, got %v", sum)
	}

	if c.Scheduler.DepositAutoRelease == "" {
		c.Scheduler.DepositAutoRelease = "0 */10 * * * *" // every 10 minutes
	}
	if c.Scheduler.LedgerReconciliation == "" {
		c.Scheduler.LedgerReconciliation = "0 0 4 * * *" // 4 AM UTC
	}
	if c.Scheduler.ClosePools == "" {
		c.Scheduler.ClosePools = "0 30 0 1 * *" // 1st of month 00:30 UTC, closes the previous month
	}
	if c.Scheduler.DistributePools == "" {
		c.Scheduler.DistributePools = "0 0 2 1 * *" // 1st of month 2 AM UTC, pays the previous month
	}

	return nil
}

func validateRate(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetRedisAddress returns the Redis address, or "" when the cache is disabled
func (c *Config) GetRedisAddress() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
