package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"trade-agent/internal/api"
	"trade-agent/internal/bot"
	"trade-agent/internal/circuit"
	"trade-agent/internal/database"
	"trade-agent/internal/execution"
	"trade-agent/internal/ledger"
	"trade-agent/internal/logging"
	"trade-agent/internal/risk"
)

// Config is the full agent configuration, loaded once at startup and
// immutable afterwards.
type Config struct {
	BrokerConfig       BrokerConfig         `json:"broker"`
	FeedConfig         FeedConfig           `json:"feed"`
	RiskConfig         risk.Config          `json:"risk"`
	EarningsConfig     risk.EarningsConfig  `json:"earnings"`
	CircuitConfig      circuit.Config       `json:"circuit_breaker"`
	LedgerConfig       ledger.Config        `json:"exits"`
	ExecutionConfig    execution.Config     `json:"execution"`
	LoopConfig         bot.Config           `json:"loop"`
	CooldownMinutes    int                  `json:"cooldown_minutes"`
	DatabaseConfig     database.Config      `json:"database"`
	RedisConfig        database.RedisConfig `json:"redis"`
	ServerConfig       api.Config           `json:"server"`
	NotificationConfig NotificationConfig   `json:"notification"`
	LoggingConfig      logging.Config       `json:"logging"`
}

// BrokerConfig selects and configures the execution venue.
type BrokerConfig struct {
	BaseURL      string  `json:"base_url"`
	APIKey       string  `json:"api_key"`
	StartingCash float64 `json:"starting_cash"` // paper mode seed
	TimeoutSecs  int     `json:"timeout_seconds"`
}

// FeedConfig configures the signal and price feeds.
type FeedConfig struct {
	SignalURL       string `json:"signal_url"`
	SignalAPIKey    string `json:"signal_api_key"`
	PriceStreamURL  string `json:"price_stream_url"`
	EarningsURL     string `json:"earnings_url"`
	EarningsAPIKey  string `json:"earnings_api_key"`
	StaleAfterSecs  int    `json:"stale_after_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// NotificationConfig wires the alert senders.
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// No config file: start from documented defaults.
		cfg = defaults()
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		BrokerConfig: BrokerConfig{
			StartingCash: 10000,
			TimeoutSecs:  10,
		},
		FeedConfig: FeedConfig{
			StaleAfterSecs: 60,
			TimeoutSeconds: 10,
		},
		RiskConfig:      risk.DefaultConfig(),
		EarningsConfig:  risk.DefaultEarningsConfig(),
		CircuitConfig:   circuit.DefaultConfig(),
		LedgerConfig:    ledger.DefaultConfig(),
		ExecutionConfig: execution.DefaultConfig(),
		LoopConfig:      bot.DefaultConfig(),
		CooldownMinutes: 10,
		DatabaseConfig: database.Config{
			Host:     "localhost",
			Port:     5432,
			User:     "trade_agent",
			Database: "trade_agent",
			SSLMode:  "disable",
		},
		ServerConfig: api.DefaultConfig(),
		LoggingConfig: logging.Config{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// config. Environment always wins over the file.
func applyEnvOverrides(cfg *Config) {
	// Broker
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.BrokerConfig.BaseURL)
	cfg.BrokerConfig.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.BrokerConfig.APIKey)
	cfg.BrokerConfig.StartingCash = getEnvFloatOrDefault("BROKER_STARTING_CASH", cfg.BrokerConfig.StartingCash)

	// Feeds
	cfg.FeedConfig.SignalURL = getEnvOrDefault("SIGNAL_FEED_URL", cfg.FeedConfig.SignalURL)
	cfg.FeedConfig.SignalAPIKey = getEnvOrDefault("SIGNAL_FEED_API_KEY", cfg.FeedConfig.SignalAPIKey)
	cfg.FeedConfig.PriceStreamURL = getEnvOrDefault("PRICE_STREAM_URL", cfg.FeedConfig.PriceStreamURL)
	cfg.FeedConfig.EarningsURL = getEnvOrDefault("EARNINGS_API_URL", cfg.FeedConfig.EarningsURL)
	cfg.FeedConfig.EarningsAPIKey = getEnvOrDefault("EARNINGS_API_KEY", cfg.FeedConfig.EarningsAPIKey)

	// Execution mode
	if mode := os.Getenv("EXECUTION_MODE"); mode != "" {
		cfg.ExecutionConfig.Mode = execution.Mode(mode)
	}

	// Risk thresholds
	cfg.RiskConfig.SizingFraction = getEnvFloatOrDefault("RISK_SIZING_FRACTION", cfg.RiskConfig.SizingFraction)
	cfg.RiskConfig.CapFraction = getEnvFloatOrDefault("RISK_CAP_FRACTION", cfg.RiskConfig.CapFraction)
	cfg.CircuitConfig.MaxDrawdownPercent = getEnvFloatOrDefault("CIRCUIT_MAX_DRAWDOWN", cfg.CircuitConfig.MaxDrawdownPercent)
	cfg.CircuitConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", cfg.CircuitConfig.MaxConsecutiveLosses)
	cfg.CooldownMinutes = getEnvIntOrDefault("COOLDOWN_MINUTES", cfg.CooldownMinutes)

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("API_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("API_PORT", cfg.ServerConfig.Port)

	// Notifications
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
}

func (c *Config) validate() error {
	if c.ExecutionConfig.Mode != execution.ModePaper && c.ExecutionConfig.Mode != execution.ModeLive {
		return fmt.Errorf("execution mode must be %q or %q, got %q",
			execution.ModePaper, execution.ModeLive, c.ExecutionConfig.Mode)
	}
	if c.ExecutionConfig.Mode == execution.ModeLive && c.BrokerConfig.BaseURL == "" {
		return fmt.Errorf("live execution requires broker.base_url")
	}
	if c.RiskConfig.CapFraction <= 0 || c.RiskConfig.CapFraction > 1 {
		return fmt.Errorf("risk.cap_fraction must be in (0, 1], got %.2f", c.RiskConfig.CapFraction)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Start from defaults so absent sections keep sane values.
	cfg := defaults()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
