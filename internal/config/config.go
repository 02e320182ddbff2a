package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Strategy StrategyConfig `yaml:"strategy"`
	Trade    TradeConfig    `yaml:"trade"`
	Risk     RiskConfig     `yaml:"risk"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   EventsConfig   `yaml:"events"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ExchangeConfig struct {
	Name         string `yaml:"name"` // "kraken" or "paper"
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	Paper        struct {
		Balances        map[string]float64 `yaml:"balances"`
		FillImmediately bool               `yaml:"fill_immediately"`
	} `yaml:"paper"`
}

type StrategyConfig struct {
	Symbol           string        `yaml:"symbol"`
	BaseCurrency     string        `yaml:"base_currency"`
	QuoteCurrency    string        `yaml:"quote_currency"`
	Timeframe        time.Duration `yaml:"timeframe"`
	ADXPeriod        int           `yaml:"adx_period"`
	ADXLow           float64       `yaml:"adx_low"`
	ADXHigh          float64       `yaml:"adx_high"`
	BreakoutLookback int           `yaml:"breakout_lookback"`
	MinCandles       int           `yaml:"min_candles"`
	CandleLimit      int           `yaml:"candle_limit"`
}

type TradeConfig struct {
	Size            float64       `yaml:"size"`
	SizeUnit        string        `yaml:"size_unit"` // "base" or "quote"
	QtyDecimals     int32         `yaml:"qty_decimals"`
	RiskRewardRatio float64       `yaml:"risk_reward_ratio"`
	StopLossPct     float64       `yaml:"stop_loss_pct"`
	MaxSlippage     float64       `yaml:"max_slippage"`
	OrderTimeout    time.Duration `yaml:"order_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ExitMode        string        `yaml:"exit_mode"` // "local" or "venue"
	AllowShort      bool          `yaml:"allow_short"`
}

type RiskConfig struct {
	MinBalance      float64 `yaml:"min_balance"`
	MaxDailyLoss    float64 `yaml:"max_daily_loss"`
	MaxTradesPerDay int     `yaml:"max_trades_per_day"`
	PanicDropPct    float64 `yaml:"panic_drop_pct"`
	Timezone        string  `yaml:"timezone"`
}

type ScheduleConfig struct {
	Lead         time.Duration `yaml:"lead"`
	Settle       time.Duration `yaml:"settle"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	// MonitorInterval is how often an open position is checked against SL/TP.
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

type EventsConfig struct {
	NatsURL string `yaml:"nats_url"` // empty disables publishing
	Subject string `yaml:"subject"`
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ohlcIntervals are the candle sizes Kraken's OHLC endpoint serves. The paper venue
// reads the same market data, so the list applies to both.
var ohlcIntervals = map[time.Duration]bool{
	time.Minute:         true,
	5 * time.Minute:     true,
	15 * time.Minute:    true,
	30 * time.Minute:    true,
	time.Hour:           true,
	4 * time.Hour:       true,
	24 * time.Hour:      true,
	7 * 24 * time.Hour:  true,
	15 * 24 * time.Hour: true,
}

// Default returns the canonical ETH/USD 4h configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Exchange.Name = "kraken"
	cfg.Exchange.RESTEndpoint = "https://api.kraken.com"

	cfg.Strategy = StrategyConfig{
		Symbol:           "ETH/USD",
		BaseCurrency:     "ETH",
		QuoteCurrency:    "USD",
		Timeframe:        4 * time.Hour,
		ADXPeriod:        28,
		ADXLow:           26,
		ADXHigh:          46,
		BreakoutLookback: 2,
		MinCandles:       20,
		CandleLimit:      101,
	}
	cfg.Trade = TradeConfig{
		Size:            0.002,
		SizeUnit:        "base",
		QtyDecimals:     8,
		RiskRewardRatio: 3,
		StopLossPct:     0.027,
		MaxSlippage:     0.002,
		OrderTimeout:    60 * time.Second,
		PollInterval:    2 * time.Second,
		ExitMode:        "local",
	}
	cfg.Risk = RiskConfig{
		MinBalance:      10,
		MaxDailyLoss:    20,
		MaxTradesPerDay: 3,
		PanicDropPct:    0.1,
		Timezone:        "UTC",
	}
	cfg.Schedule = ScheduleConfig{
		Lead:            time.Minute,
		Settle:          5 * time.Second,
		ErrorBackoff:    time.Minute,
		MonitorInterval: time.Minute,
	}
	cfg.Storage = StorageConfig{Driver: "sqlite", DSN: "bot.db"}
	cfg.Events.Subject = "trading.events"
	cfg.Server = ServerConfig{Enabled: true, Port: 8080}
	cfg.Logging = LoggingConfig{
		Level:      "info",
		File:       "trading_bot.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
	return cfg
}

// Load reads the YAML file at path over the defaults, overlays secrets from the
// environment and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("KRAKEN_API_KEY")); v != "" {
		c.Exchange.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("KRAKEN_API_SECRET")); v != "" {
		c.Exchange.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("STORAGE_DSN")); v != "" {
		c.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_URL")); v != "" {
		c.Events.NatsURL = v
	}
}

// Location returns the timezone used for the daily reset.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Risk.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	var errs []error
	s, t, r := c.Strategy, c.Trade, c.Risk

	switch c.Exchange.Name {
	case "kraken":
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			errs = append(errs, errors.New("exchange: api_key and api_secret are required for kraken"))
		}
	case "paper":
	default:
		errs = append(errs, fmt.Errorf("exchange: unknown name %q", c.Exchange.Name))
	}

	if s.Symbol == "" {
		errs = append(errs, errors.New("strategy: symbol is required"))
	}
	if s.QuoteCurrency == "" || s.BaseCurrency == "" {
		errs = append(errs, errors.New("strategy: base_currency and quote_currency are required"))
	}
	if s.Timeframe <= 0 {
		errs = append(errs, errors.New("strategy: timeframe must be positive"))
	} else if !ohlcIntervals[s.Timeframe] {
		errs = append(errs, fmt.Errorf("strategy: timeframe %s is not a Kraken OHLC interval (1m 5m 15m 30m 1h 4h 24h 168h 360h)", s.Timeframe))
	}
	if s.ADXPeriod <= 0 {
		errs = append(errs, errors.New("strategy: adx_period must be positive"))
	}
	if s.ADXLow >= s.ADXHigh {
		errs = append(errs, fmt.Errorf("strategy: adx_low %v must be below adx_high %v", s.ADXLow, s.ADXHigh))
	}
	if s.BreakoutLookback < 1 {
		errs = append(errs, errors.New("strategy: breakout_lookback must be >= 1"))
	}
	if s.MinCandles < s.BreakoutLookback+2 {
		errs = append(errs, fmt.Errorf("strategy: min_candles must be >= %d", s.BreakoutLookback+2))
	}
	if s.CandleLimit < s.MinCandles {
		errs = append(errs, errors.New("strategy: candle_limit must be >= min_candles"))
	}
	if s.CandleLimit < 2*s.ADXPeriod {
		errs = append(errs, fmt.Errorf("strategy: candle_limit must be >= %d for adx_period %d", 2*s.ADXPeriod, s.ADXPeriod))
	}

	if t.Size <= 0 {
		errs = append(errs, errors.New("trade: size must be positive"))
	}
	if t.SizeUnit != "base" && t.SizeUnit != "quote" {
		errs = append(errs, fmt.Errorf("trade: unknown size_unit %q", t.SizeUnit))
	}
	if t.StopLossPct <= 0 || t.StopLossPct >= 1 {
		errs = append(errs, errors.New("trade: stop_loss_pct must be in (0, 1)"))
	}
	if t.RiskRewardRatio <= 0 {
		errs = append(errs, errors.New("trade: risk_reward_ratio must be positive"))
	}
	if t.MaxSlippage < 0 {
		errs = append(errs, errors.New("trade: max_slippage must not be negative"))
	}
	if t.OrderTimeout <= 0 || t.PollInterval <= 0 {
		errs = append(errs, errors.New("trade: order_timeout and poll_interval must be positive"))
	}
	if t.ExitMode != "local" && t.ExitMode != "venue" {
		errs = append(errs, fmt.Errorf("trade: unknown exit_mode %q", t.ExitMode))
	}
	// On Kraken spot the bot's position is part of the account balance, so the venue
	// cannot tell when it was closed externally, and there is nothing to sell short.
	if t.ExitMode == "venue" && c.Exchange.Name == "kraken" {
		errs = append(errs, errors.New("trade: exit_mode venue is not supported on kraken spot"))
	}
	if t.AllowShort && c.Exchange.Name == "kraken" {
		errs = append(errs, errors.New("trade: allow_short is not supported on kraken spot"))
	}

	if r.MaxTradesPerDay <= 0 {
		errs = append(errs, errors.New("risk: max_trades_per_day must be positive"))
	}
	if r.MaxDailyLoss <= 0 {
		errs = append(errs, errors.New("risk: max_daily_loss must be positive"))
	}
	if r.PanicDropPct < 0 || r.PanicDropPct >= 1 {
		errs = append(errs, errors.New("risk: panic_drop_pct must be in [0, 1)"))
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("risk: timezone: %w", err))
	}

	if c.Schedule.Lead < 0 || c.Schedule.Lead >= s.Timeframe {
		errs = append(errs, errors.New("schedule: lead must be in [0, timeframe)"))
	}
	if c.Schedule.ErrorBackoff <= 0 {
		errs = append(errs, errors.New("schedule: error_backoff must be positive"))
	}
	if c.Schedule.MonitorInterval <= 0 {
		errs = append(errs, errors.New("schedule: monitor_interval must be positive"))
	}

	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
