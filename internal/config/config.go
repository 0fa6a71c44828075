// Package config provides application-wide configuration management.
// All configuration is loaded from files and environment variables.
// No configuration is hardcoded in routing, risk, or simulator logic.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all system configuration.
// Loaded once at startup and passed as read-only to all components.
type Config struct {
	// ListenAddr is the address the HTTP/WS surface binds to.
	ListenAddr string `json:"listen_addr"`

	// DatabaseURL is the Postgres connection string used for journal
	// dedupe state, violations, and fill history.
	DatabaseURL string `json:"database_url"`

	// Webhook holds the inbound TradingView webhook intake settings.
	Webhook WebhookConfig `json:"webhook"`

	// Risk is the default funded-account rule set applied to any funded
	// account that does not override it.
	Risk RiskConfig `json:"risk"`

	// Journal configures the external trade-journal upload client.
	Journal JournalConfig `json:"journal"`

	// Paper configures the paper-trading simulator.
	Paper PaperConfig `json:"paper"`

	// FundedAccounts lists the funded accounts subject to risk gating,
	// each mapped to the broker adapter and account id behind it.
	FundedAccounts []FundedAccount `json:"funded_accounts"`

	// BrokerConfig is broker-specific configuration (API keys, endpoints).
	// Keyed by broker name; values are opaque to config and parsed by
	// the broker adapter itself.
	BrokerConfig map[string]json.RawMessage `json:"broker_config"`

	// VaultPath is where the encrypted-file credential vault backend
	// stores its ciphertext.
	VaultPath string `json:"vault_path"`
}

// WebhookConfig holds settings for the inbound alert webhook.
type WebhookConfig struct {
	Secret          string        `json:"secret"`
	RateLimitPerMin int           `json:"rate_limit_per_min"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	MaxBodyBytes    int64         `json:"max_body_bytes"`
}

// RiskConfig defines the default funded-account rule limits.
// These limits are enforced by the risk module and cannot be overridden
// by the router or the orchestrator.
type RiskConfig struct {
	MaxDailyLoss           float64          `json:"max_daily_loss"`
	TrailingDrawdown       float64          `json:"trailing_drawdown"`
	MaxContracts           int              `json:"max_contracts"`
	MaxConcurrentPositions int              `json:"max_concurrent_positions"`
	MaxDailyTrades         int              `json:"max_daily_trades"`
	ProfitTarget           float64          `json:"profit_target"`
	RestrictedSymbols      []string         `json:"restricted_symbols"`
	TradingWindows         []TradingWindow  `json:"trading_windows"`
	CircuitBreaker         CircuitBreakerConfig `json:"circuit_breaker"`

	// Guard configures the independent pre-trade risk.Guard that applies
	// to every live order regardless of whether the account is funded.
	Guard GuardConfig `json:"guard"`
}

// GuardConfig mirrors internal/risk.GuardConfig so it can be loaded from
// the same JSON/env configuration surface as everything else; config
// never imports internal/risk; cmd/gateway copies this into a
// risk.GuardConfig at wiring time.
type GuardConfig struct {
	RequireStopPrice        bool    `json:"require_stop_price"`
	MaxRiskPerTradePct      float64 `json:"max_risk_per_trade_pct"`
	MaxOpenPositions        int     `json:"max_open_positions"`
	MaxDailyLossPct         float64 `json:"max_daily_loss_pct"`
	MaxCapitalDeploymentPct float64 `json:"max_capital_deployment_pct"`
}

// FundedAccount maps a TradingView account_group to the broker adapter
// and account id that executes it, and marks it subject to funded-rule
// gating (§4.6). Group is matched case-insensitively by the router.
type FundedAccount struct {
	Group     string `json:"group"`      // e.g. "topstep_50k"
	AccountID string `json:"account_id"` // broker account identifier
	Broker    string `json:"broker"`     // broker.Registry name: tastytrade, tradovate, alpaca
}

// TradingWindow is a weekday + time-of-day interval during which trading
// is permitted, evaluated in the given IANA timezone.
type TradingWindow struct {
	Weekday  time.Weekday `json:"weekday"`
	Start    string       `json:"start"`    // "HH:MM"
	End      string       `json:"end"`      // "HH:MM"
	Timezone string       `json:"timezone"` // IANA zone name
}

// CircuitBreakerConfig configures automatic adapter-failure halting.
type CircuitBreakerConfig struct {
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	MaxFailuresPerHour     int `json:"max_failures_per_hour"`
	CooldownMinutes        int `json:"cooldown_minutes"`
}

// JournalConfig configures the external trade-journal client.
type JournalConfig struct {
	Enabled       bool          `json:"enabled"`
	BaseURL       string        `json:"base_url"`
	AppID         string        `json:"app_id"`
	MasterKey     string        `json:"master_key"`
	BrokerName    string        `json:"broker_name"`
	UploadMFE     bool          `json:"upload_mfe"`
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	Timeout       time.Duration `json:"timeout"`
	MaxRetries    int           `json:"max_retries"`
	QueueCapacity int           `json:"queue_capacity"`
}

// PaperConfig configures the paper-trading simulator.
type PaperConfig struct {
	TestMode         bool    `json:"test_mode"` // bypass market-hours check
	ExchangeTimezone string  `json:"exchange_timezone"`
	FuturesPositionCap int   `json:"futures_position_cap"`
}

// Load reads configuration from a JSON file.
// Environment variables override file values where applicable.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", absPath, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config pre-populated with the documented defaults
// from the specification (rate limit 50/min, journal batch 10 / 30s, …).
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Webhook: WebhookConfig{
			RateLimitPerMin: 50,
			RateLimitWindow: time.Minute,
			MaxBodyBytes:    64 * 1024,
		},
		Risk: RiskConfig{
			MaxContracts:           10,
			MaxConcurrentPositions: 3,
			MaxDailyTrades:         20,
			CircuitBreaker: CircuitBreakerConfig{
				MaxConsecutiveFailures: 5,
				MaxFailuresPerHour:     10,
				CooldownMinutes:        15,
			},
			Guard: GuardConfig{
				RequireStopPrice:        true,
				MaxRiskPerTradePct:      2.0,
				MaxOpenPositions:        5,
				MaxDailyLossPct:         5.0,
				MaxCapitalDeploymentPct: 50.0,
			},
		},
		Journal: JournalConfig{
			BatchSize:     10,
			FlushInterval: 30 * time.Second,
			Timeout:       10 * time.Second,
			MaxRetries:    3,
			QueueCapacity: 1000,
		},
		Paper: PaperConfig{
			ExchangeTimezone:   "America/New_York",
			FuturesPositionCap: 10,
		},
	}
}

// applyEnvOverrides applies the environment variables documented in
// spec §6.6 on top of whatever the config file specified.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADINGVIEW_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("JOURNAL_BASE_URL"); v != "" {
		cfg.Journal.BaseURL = v
	}
	if v := os.Getenv("JOURNAL_APP_ID"); v != "" {
		cfg.Journal.AppID = v
	}
	if v := os.Getenv("JOURNAL_MASTER_KEY"); v != "" {
		cfg.Journal.MasterKey = v
	}
	if v := os.Getenv("JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("JOURNAL_BROKER_NAME"); v != "" {
		cfg.Journal.BrokerName = v
	}
	if v := os.Getenv("JOURNAL_UPLOAD_MFE"); v != "" {
		cfg.Journal.UploadMFE = v == "true" || v == "1"
	}
	if v := os.Getenv("PAPER_TEST_MODE"); v != "" {
		cfg.Paper.TestMode = v == "true" || v == "1"
	}
	if v := os.Getenv("GATEWAY_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}

// Validate checks that all required configuration fields are present and sane.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Webhook.RateLimitPerMin <= 0 {
		return fmt.Errorf("webhook.rate_limit_per_min must be positive, got %d", c.Webhook.RateLimitPerMin)
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("webhook.max_body_bytes must be positive, got %d", c.Webhook.MaxBodyBytes)
	}
	if c.Risk.MaxContracts <= 0 {
		return fmt.Errorf("risk.max_contracts must be positive, got %d", c.Risk.MaxContracts)
	}
	if c.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be positive, got %d", c.Risk.MaxConcurrentPositions)
	}
	if c.Journal.Enabled {
		if c.Journal.BaseURL == "" {
			return fmt.Errorf("journal.base_url is required when journal is enabled")
		}
		if c.Journal.BatchSize <= 0 {
			return fmt.Errorf("journal.batch_size must be positive, got %d", c.Journal.BatchSize)
		}
	}
	return nil
}
