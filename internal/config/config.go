// Package config provides configuration management for the options analytics engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "options-analytics/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Pricing           PricingConfig    `mapstructure:"pricing"`
	ImpliedVolatility IVConfig         `mapstructure:"implied_volatility"`
	Chain             ChainConfig      `mapstructure:"chain"`
	Strategy          StrategyConfig   `mapstructure:"strategy"`
	Server            ServerConfig     `mapstructure:"server"`
	MarketData        MarketDataConfig `mapstructure:"market_data"`
	Logging           LoggingConfig    `mapstructure:"logging"`
}

// PricingConfig holds the model assumptions used when a caller supplies none.
type PricingConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	Volatility   float64 `mapstructure:"volatility"`
	MinTick      float64 `mapstructure:"min_tick"`
}

// IVConfig holds implied-volatility solver limits.
type IVConfig struct {
	InitialGuess  float64 `mapstructure:"initial_guess"` // 0 = Brenner-Subrahmanyam approximation
	MinVolatility float64 `mapstructure:"min_volatility"`
	MaxVolatility float64 `mapstructure:"max_volatility"`
	Tolerance     float64 `mapstructure:"tolerance"`
	MaxIterations int     `mapstructure:"max_iterations"`
}

// ChainConfig holds chain synthesis parameters.
type ChainConfig struct {
	StrikeIncrement float64 `mapstructure:"strike_increment"`
	StrikesEachSide int     `mapstructure:"strikes_each_side"`
	SpreadPercent   float64 `mapstructure:"spread_percent"`
	ExpiryWeekday   string  `mapstructure:"expiry_weekday"`
	Parallel        bool    `mapstructure:"parallel"`
	QuoteSeed       int64   `mapstructure:"quote_seed"` // 0 = fixed quotes
}

// StrategyConfig holds strategy evaluation parameters.
type StrategyConfig struct {
	GridPoints          int     `mapstructure:"grid_points"`
	UpperMultiple       float64 `mapstructure:"upper_multiple"`
	DefaultDaysToExpiry int     `mapstructure:"default_days_to_expiry"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MarketDataConfig holds market-data collaborator settings.
type MarketDataConfig struct {
	SnapshotDB      string        `mapstructure:"snapshot_db"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pricing: PricingConfig{
			RiskFreeRate: 0.05,
			Volatility:   0.25,
			MinTick:      0.01,
		},
		ImpliedVolatility: IVConfig{
			InitialGuess:  0,
			MinVolatility: 1e-6,
			MaxVolatility: 5.0,
			Tolerance:     1e-6,
			MaxIterations: 100,
		},
		Chain: ChainConfig{
			StrikeIncrement: 5,
			StrikesEachSide: 20,
			SpreadPercent:   0.02,
			ExpiryWeekday:   "friday",
		},
		Strategy: StrategyConfig{
			GridPoints:          401,
			UpperMultiple:       2.0,
			DefaultDaysToExpiry: 30,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 10 * time.Second,
		},
		MarketData: MarketDataConfig{
			RetryAttempts:   3,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-analytics"
	}
	return filepath.Join(home, ".config", "options-analytics")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()
	if err := loadConfigFile(configDir, "options", cfg); err != nil {
		return nil, fmt.Errorf("loading options.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template and keep defaults
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(cfg)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("pricing.risk_free_rate", cfg.Pricing.RiskFreeRate)
	v.SetDefault("pricing.volatility", cfg.Pricing.Volatility)
	v.SetDefault("pricing.min_tick", cfg.Pricing.MinTick)

	v.SetDefault("implied_volatility.initial_guess", cfg.ImpliedVolatility.InitialGuess)
	v.SetDefault("implied_volatility.min_volatility", cfg.ImpliedVolatility.MinVolatility)
	v.SetDefault("implied_volatility.max_volatility", cfg.ImpliedVolatility.MaxVolatility)
	v.SetDefault("implied_volatility.tolerance", cfg.ImpliedVolatility.Tolerance)
	v.SetDefault("implied_volatility.max_iterations", cfg.ImpliedVolatility.MaxIterations)

	v.SetDefault("chain.strike_increment", cfg.Chain.StrikeIncrement)
	v.SetDefault("chain.strikes_each_side", cfg.Chain.StrikesEachSide)
	v.SetDefault("chain.spread_percent", cfg.Chain.SpreadPercent)
	v.SetDefault("chain.expiry_weekday", cfg.Chain.ExpiryWeekday)
	v.SetDefault("chain.parallel", cfg.Chain.Parallel)
	v.SetDefault("chain.quote_seed", cfg.Chain.QuoteSeed)

	v.SetDefault("strategy.grid_points", cfg.Strategy.GridPoints)
	v.SetDefault("strategy.upper_multiple", cfg.Strategy.UpperMultiple)
	v.SetDefault("strategy.default_days_to_expiry", cfg.Strategy.DefaultDaysToExpiry)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)

	v.SetDefault("market_data.snapshot_db", cfg.MarketData.SnapshotDB)
	v.SetDefault("market_data.retry_attempts", cfg.MarketData.RetryAttempts)
	v.SetDefault("market_data.breaker_failures", cfg.MarketData.BreakerFailures)
	v.SetDefault("market_data.breaker_timeout", cfg.MarketData.BreakerTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.file_path", cfg.Logging.FilePath)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTIONS_RISK_FREE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pricing.RiskFreeRate = f
		}
	}
	if v := os.Getenv("OPTIONS_VOLATILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pricing.Volatility = f
		}
	}
	if v := os.Getenv("OPTIONS_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("OPTIONS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPTIONS_SNAPSHOT_DB"); v != "" {
		cfg.MarketData.SnapshotDB = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
	}

	if !(c.Pricing.Volatility > 0) {
		return invalid("pricing.volatility must be positive")
	}
	if !(c.Pricing.MinTick > 0) {
		return invalid("pricing.min_tick must be positive")
	}

	iv := c.ImpliedVolatility
	if !(iv.MinVolatility > 0) || !(iv.MaxVolatility > iv.MinVolatility) {
		return invalid("implied_volatility bounds must satisfy 0 < min_volatility < max_volatility")
	}
	if !(iv.Tolerance > 0) {
		return invalid("implied_volatility.tolerance must be positive")
	}
	if iv.MaxIterations < 1 {
		return invalid("implied_volatility.max_iterations must be at least 1")
	}

	if !(c.Chain.StrikeIncrement > 0) {
		return invalid("chain.strike_increment must be positive")
	}
	if c.Chain.StrikesEachSide < 1 {
		return invalid("chain.strikes_each_side must be at least 1")
	}
	if c.Chain.SpreadPercent < 0 || c.Chain.SpreadPercent >= 1 {
		return invalid("chain.spread_percent must be between 0 and 1")
	}
	if _, err := ParseWeekday(c.Chain.ExpiryWeekday); err != nil {
		return invalid("chain.expiry_weekday: %v", err)
	}

	if c.Strategy.GridPoints < 3 {
		return invalid("strategy.grid_points must be at least 3")
	}
	if !(c.Strategy.UpperMultiple > 1) {
		return invalid("strategy.upper_multiple must be greater than 1")
	}
	if c.Strategy.DefaultDaysToExpiry < 0 {
		return invalid("strategy.default_days_to_expiry must be non-negative")
	}

	return nil
}

// ParseWeekday parses an English weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(s), d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
