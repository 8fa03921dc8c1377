// Package config loads the tempo YAML configuration, applies environment
// overrides, and validates trading parameters once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tempo/internal/domain"
	"tempo/internal/engine"
	"tempo/internal/pricing"
	"tempo/internal/runner"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tempo.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Exchange   string           `yaml:"exchange"`
	Symbols    []string         `yaml:"symbols"`
	Trading    Trading          `yaml:"trading"`
	Backtest   Backtest         `yaml:"backtest"`
	Risk       []RiskProfile    `yaml:"risk_profiles"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// Storage holds paths for data persistence.
type Storage struct {
	// Backend selects the live persistence adapter: "file", "sqlite",
	// "postgres" or "memory".
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
	// CandleCache enables the Parquet candle cache under DataDir.
	CandleCache bool `yaml:"candle_cache"`
}

// Server holds network listener configuration.
type Server struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Trading holds the parameters consumed by the signal engine and the pricing
// oracle.
type Trading struct {
	SlippagePercent              float64 `yaml:"slippage_percent"`
	FeePercent                   float64 `yaml:"fee_percent"`
	MinTakeProfitDistancePercent float64 `yaml:"min_take_profit_distance_percent"`
	MinStopLossDistancePercent   float64 `yaml:"min_stop_loss_distance_percent"`
	MaxStopLossDistancePercent   float64 `yaml:"max_stop_loss_distance_percent"`
	ScheduleAwaitMinutes         int     `yaml:"schedule_await_minutes"`
	MaxSignalLifetimeMinutes     int     `yaml:"max_signal_lifetime_minutes"`

	AvgPriceCandleCount int           `yaml:"avg_price_candle_count"`
	CandleRetryCount    int           `yaml:"candle_retry_count"`
	CandleRetryDelay    time.Duration `yaml:"candle_retry_delay"`
	AnomalyFactor       float64       `yaml:"anomaly_factor"`
	MedianMinCandles    int           `yaml:"median_min_candles"`
}

// Backtest describes the replay frame.
type Backtest struct {
	Frame    string          `yaml:"frame"`
	Start    string          `yaml:"start"`
	End      string          `yaml:"end"`
	Interval domain.Interval `yaml:"interval"`
}

// RiskProfile declares a shared risk profile.
type RiskProfile struct {
	Name         string `yaml:"name"`
	MaxPositions int    `yaml:"max_positions"`
	OnePerSymbol bool   `yaml:"one_per_symbol"`
}

// StrategyConfig declares one strategy instance.
type StrategyConfig struct {
	Name              string          `yaml:"name"`
	Kind              string          `yaml:"kind"`
	Interval          domain.Interval `yaml:"interval"`
	ShortPeriod       int             `yaml:"short_period"`
	LongPeriod        int             `yaml:"long_period"`
	TakeProfitPercent float64         `yaml:"take_profit_percent"`
	StopLossPercent   float64         `yaml:"stop_loss_percent"`
	LifetimeMinutes   int             `yaml:"lifetime_minutes"`
	RiskProfiles      []string        `yaml:"risk_profiles"`
	// Symbols overrides the top-level symbol list for this strategy.
	Symbols []string `yaml:"symbols"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// DefaultTrading returns the default trading parameters.
func DefaultTrading() Trading {
	ec := engine.DefaultConfig()
	pc := pricing.DefaultConfig()
	return Trading{
		SlippagePercent:              ec.SlippagePercent,
		FeePercent:                   ec.FeePercent,
		MinTakeProfitDistancePercent: ec.MinTakeProfitDistancePercent,
		MinStopLossDistancePercent:   ec.MinStopLossDistancePercent,
		MaxStopLossDistancePercent:   ec.MaxStopLossDistancePercent,
		ScheduleAwaitMinutes:         ec.ScheduleAwaitMinutes,
		MaxSignalLifetimeMinutes:     ec.MaxSignalLifetimeMinutes,
		AvgPriceCandleCount:          pc.AvgPriceCandleCount,
		CandleRetryCount:             pc.RetryCount,
		CandleRetryDelay:             pc.RetryDelay,
		AnomalyFactor:                pc.AnomalyFactor,
		MedianMinCandles:             pc.MedianMinCandles,
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Backend:    "file",
			DataDir:    "data",
			SQLitePath: "data/tempo.db",
		},
		Server: Server{
			Host:        "0.0.0.0",
			GRPCPort:    9090,
			MetricsPort: 9100,
		},
		Alpaca: Alpaca{
			Feed:            "iex",
			RateLimitPerMin: 200,
		},
		Logging:  Logging{Level: "info", Format: "json"},
		Exchange: "alpaca",
		Trading:  DefaultTrading(),
		Backtest: Backtest{Frame: "default", Interval: domain.OneMinute},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the defaults,
// applies environment variable overrides, and validates the result. An empty
// path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("TEMPO_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = port
		}
	}

	// Standard Alpaca env vars take priority: these are the names the SDK reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the trading parameters against each other. Every violation
// is reported in one *domain.ValidationError.
func (t Trading) Validate() error {
	verr := &domain.ValidationError{Subject: "trading config"}

	if t.SlippagePercent < 0 {
		verr.Add(fmt.Sprintf("slippage_percent must be >= 0, got %v", t.SlippagePercent))
	}
	if t.FeePercent < 0 {
		verr.Add(fmt.Sprintf("fee_percent must be >= 0, got %v", t.FeePercent))
	}
	if cost := 2*t.SlippagePercent + 2*t.FeePercent; t.MinTakeProfitDistancePercent <= cost {
		verr.Add(fmt.Sprintf("min_take_profit_distance_percent %v must exceed round-trip cost %v", t.MinTakeProfitDistancePercent, cost))
	}
	if t.MinStopLossDistancePercent < 0 {
		verr.Add(fmt.Sprintf("min_stop_loss_distance_percent must be >= 0, got %v", t.MinStopLossDistancePercent))
	}
	if t.MaxStopLossDistancePercent <= t.MinStopLossDistancePercent {
		verr.Add(fmt.Sprintf("max_stop_loss_distance_percent %v must exceed min_stop_loss_distance_percent %v", t.MaxStopLossDistancePercent, t.MinStopLossDistancePercent))
	}
	if t.ScheduleAwaitMinutes <= 0 {
		verr.Add(fmt.Sprintf("schedule_await_minutes must be positive, got %d", t.ScheduleAwaitMinutes))
	}
	if t.MaxSignalLifetimeMinutes <= 0 {
		verr.Add(fmt.Sprintf("max_signal_lifetime_minutes must be positive, got %d", t.MaxSignalLifetimeMinutes))
	}
	if t.AvgPriceCandleCount <= 0 {
		verr.Add(fmt.Sprintf("avg_price_candle_count must be positive, got %d", t.AvgPriceCandleCount))
	}
	if t.CandleRetryCount <= 0 {
		verr.Add(fmt.Sprintf("candle_retry_count must be positive, got %d", t.CandleRetryCount))
	}
	if t.CandleRetryDelay < 0 {
		verr.Add(fmt.Sprintf("candle_retry_delay must be >= 0, got %v", t.CandleRetryDelay))
	}
	if t.AnomalyFactor <= 1 {
		verr.Add(fmt.Sprintf("anomaly_factor must exceed 1, got %v", t.AnomalyFactor))
	}
	if t.MedianMinCandles <= 0 {
		verr.Add(fmt.Sprintf("median_min_candles must be positive, got %d", t.MedianMinCandles))
	}
	return verr.Err()
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Trading.Validate(); err != nil {
		errs = append(errs, err)
	}

	verr := &domain.ValidationError{Subject: "config"}
	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			verr.Add("storage.database_url is required for the postgres backend")
		}
	default:
		verr.Add(fmt.Sprintf("storage.backend %q is not one of file, sqlite, postgres, memory", c.Storage.Backend))
	}

	profiles := make(map[string]bool, len(c.Risk))
	for _, p := range c.Risk {
		if p.Name == "" {
			verr.Add("risk profile without a name")
		}
		if profiles[p.Name] {
			verr.Add(fmt.Sprintf("risk profile %q declared twice", p.Name))
		}
		profiles[p.Name] = true
	}

	names := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Name == "" {
			verr.Add("strategy without a name")
		}
		if names[s.Name] {
			verr.Add(fmt.Sprintf("strategy %q declared twice", s.Name))
		}
		names[s.Name] = true
		if s.Kind != "sma-cross" {
			verr.Add(fmt.Sprintf("strategy %q: unknown kind %q", s.Name, s.Kind))
		}
		refs := make(map[string]bool, len(s.RiskProfiles))
		for _, r := range s.RiskProfiles {
			if !profiles[r] {
				verr.Add(fmt.Sprintf("strategy %q references unknown risk profile %q", s.Name, r))
			}
			if refs[r] {
				verr.Add(fmt.Sprintf("strategy %q lists risk profile %q twice", s.Name, r))
			}
			refs[r] = true
		}
	}
	if err := verr.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SymbolsFor returns the symbols a strategy trades.
func (c *Config) SymbolsFor(s StrategyConfig) []string {
	if len(s.Symbols) > 0 {
		return s.Symbols
	}
	return c.Symbols
}

// EngineConfig returns the engine view of the trading parameters.
func (t Trading) EngineConfig() engine.Config {
	return engine.Config{
		SlippagePercent:              t.SlippagePercent,
		FeePercent:                   t.FeePercent,
		MinTakeProfitDistancePercent: t.MinTakeProfitDistancePercent,
		MinStopLossDistancePercent:   t.MinStopLossDistancePercent,
		MaxStopLossDistancePercent:   t.MaxStopLossDistancePercent,
		ScheduleAwaitMinutes:         t.ScheduleAwaitMinutes,
		MaxSignalLifetimeMinutes:     t.MaxSignalLifetimeMinutes,
	}
}

// PricingConfig returns the oracle view of the trading parameters.
func (t Trading) PricingConfig() pricing.Config {
	return pricing.Config{
		AvgPriceCandleCount: t.AvgPriceCandleCount,
		RetryCount:          t.CandleRetryCount,
		RetryDelay:          t.CandleRetryDelay,
		AnomalyFactor:       t.AnomalyFactor,
		MedianMinCandles:    t.MedianMinCandles,
	}
}

// Frame parses the backtest section. Start and End accept RFC 3339
// timestamps or plain dates (midnight UTC).
func (b Backtest) Frame() (runner.Frame, error) {
	start, err := parseTime(b.Start)
	if err != nil {
		return runner.Frame{}, fmt.Errorf("backtest.start: %w", err)
	}
	end, err := parseTime(b.End)
	if err != nil {
		return runner.Frame{}, fmt.Errorf("backtest.end: %w", err)
	}
	f := runner.Frame{Name: b.Frame, Start: start, End: end, Interval: b.Interval}
	if _, err := f.Instants(); err != nil {
		return runner.Frame{}, err
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
