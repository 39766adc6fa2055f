// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Market  MarketConfig  `yaml:"market"`
	Round   RoundConfig   `yaml:"round"`
	Trading TradingConfig `yaml:"trading"`
	News    NewsConfig    `yaml:"news"`
	Stream  StreamConfig  `yaml:"stream"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	System  SystemConfig  `yaml:"system"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	OrganizerSecret Secret `yaml:"organizer_secret"`
}

// StoreConfig contains persistence settings
type StoreConfig struct {
	// DBPath is the sqlite file path; ":memory:" selects the in-memory store.
	DBPath string `yaml:"db_path"`
}

// MarketConfig contains simulator settings
type MarketConfig struct {
	TickIntervalMS int              `yaml:"tick_interval_ms"`
	Seed           []SeedInstrument `yaml:"seed"`
}

// SeedInstrument is one row of the startup instrument table
type SeedInstrument struct {
	Symbol string  `yaml:"symbol"`
	Name   string  `yaml:"name"`
	Price  float64 `yaml:"price"`
}

// RoundConfig contains round lifecycle settings
type RoundConfig struct {
	DurationSeconds int `yaml:"duration_seconds"`
}

// TradingConfig contains trade execution settings
type TradingConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	// PriceImpactEnabled applies a post-trade price adjustment of
	// 0.01 * |qty| / 100, signed by trade side. Off by default.
	PriceImpactEnabled bool `yaml:"price_impact_enabled"`
}

// NewsConfig contains news read-through settings
type NewsConfig struct {
	UpstreamURL string `yaml:"upstream_url"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// StreamConfig contains WebSocket stream settings
type StreamConfig struct {
	Enabled        bool     `yaml:"enabled"`
	MaxClients     int      `yaml:"max_clients"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AlertsConfig contains round lifecycle alert channels
type AlertsConfig struct {
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// DefaultSeed is the instrument table seeded at startup when none is configured
var DefaultSeed = []SeedInstrument{
	{Symbol: "APPL", Name: "Apple (sim)", Price: 1750.0},
	{Symbol: "TSLA", Name: "Tesla (sim)", Price: 2650.0},
	{Symbol: "GOGL", Name: "Google (sim)", Price: 2820.0},
	{Symbol: "AMZN", Name: "Amazon (sim)", Price: 3300.0},
	{Symbol: "INFY", Name: "Infosys (sim)", Price: 1500.0},
	{Symbol: "TCS", Name: "TCS (sim)", Price: 3200.0},
	{Symbol: "RELI", Name: "Reliance (sim)", Price: 2400.0},
	{Symbol: "HDFC", Name: "HDFC Bank (sim)", Price: 1200.0},
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8000},
		Store:   StoreConfig{DBPath: "market.db"},
		Market:  MarketConfig{TickIntervalMS: 2000},
		Round:   RoundConfig{DurationSeconds: 1800},
		Trading: TradingConfig{InitialCash: 100000, TimeoutMS: 4000},
		News:    NewsConfig{TimeoutMS: 4000},
		Stream:  StreamConfig{Enabled: true, MaxClients: 1000, AllowedOrigins: []string{"*"}},
		System:  SystemConfig{LogLevel: "INFO"},
	}
}

// applyEnv overlays the documented environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("INITIAL_CASH"); v != "" {
		if cash, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.InitialCash = cash
		}
	}
	if v := os.Getenv("ROUND_DURATION_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Round.DurationSeconds = secs
		}
	}
	if v := os.Getenv("TICK_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Market.TickIntervalMS = ms
		}
	}
	if v := os.Getenv("ORGANIZER_SECRET"); v != "" {
		c.Server.OrganizerSecret = Secret(v)
	}
	if v := os.Getenv("NEWS_UPSTREAM_URL"); v != "" {
		c.News.UpstreamURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.System.LogLevel = v
	}
}

// Validate checks the configuration for startup-blocking problems
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.OrganizerSecret == "" {
		return fmt.Errorf("ORGANIZER_SECRET is required")
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Trading.InitialCash <= 0 {
		return fmt.Errorf("initial_cash must be positive, got %v", c.Trading.InitialCash)
	}
	if c.Round.DurationSeconds <= 0 {
		return fmt.Errorf("round duration must be positive, got %d", c.Round.DurationSeconds)
	}
	if c.Market.TickIntervalMS <= 0 {
		return fmt.Errorf("tick interval must be positive, got %d", c.Market.TickIntervalMS)
	}
	if c.Trading.TimeoutMS <= 0 {
		return fmt.Errorf("trade timeout must be positive, got %d", c.Trading.TimeoutMS)
	}
	return nil
}

// SeedInstruments returns the configured seed table, falling back to the default
func (c *Config) SeedInstruments() []SeedInstrument {
	if len(c.Market.Seed) > 0 {
		return c.Market.Seed
	}
	return DefaultSeed
}

// TickInterval returns the simulator cadence as a duration
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Market.TickIntervalMS) * time.Millisecond
}

// RoundDuration returns the round length as a duration
func (c *Config) RoundDuration() time.Duration {
	return time.Duration(c.Round.DurationSeconds) * time.Second
}

// TradeTimeout returns the end-to-end trade request deadline
func (c *Config) TradeTimeout() time.Duration {
	return time.Duration(c.Trading.TimeoutMS) * time.Millisecond
}
