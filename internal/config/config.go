// Package config loads the engine configuration from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	ListenAddress string `mapstructure:"listen_address"`

	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// DatabaseConfig selects the gorm driver and DSN.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// EngineConfig holds the financial parameters and policy flags.
type EngineConfig struct {
	CashToken string `mapstructure:"cash_token"`
	PoolToken string `mapstructure:"pool_token"`

	// Decimal strings, converted to scaled amounts at load time.
	MinimumFeeFloor    string `mapstructure:"minimum_fee_floor"`
	MinRebalanceAmount string `mapstructure:"min_rebalance_amount"`

	LockWindow time.Duration `mapstructure:"lock_window"`

	// FloorBeforeFee applies the minimum-rebalance floor to the target
	// delta computed before the lending-fee deduction.
	FloorBeforeFee bool `mapstructure:"floor_before_fee"`
	// ChargeOpenFeePeriod adds one day of lending-fee accrual on the
	// redemption side.
	ChargeOpenFeePeriod bool `mapstructure:"charge_open_fee_period"`
}

// Load reads configuration from the given file (optional) and the
// POOLENGINE_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "poolengine.db")
	v.SetDefault("engine.cash_token", "USD")
	v.SetDefault("engine.pool_token", "POOL")
	v.SetDefault("engine.minimum_fee_floor", "0")
	v.SetDefault("engine.min_rebalance_amount", "0")
	v.SetDefault("engine.lock_window", time.Hour)
	v.SetDefault("engine.charge_open_fee_period", true)

	v.SetEnvPrefix("POOLENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if _, err := cfg.MinimumFeeFloorAmount(); err != nil {
		return nil, fmt.Errorf("invalid minimum_fee_floor: %w", err)
	}
	if _, err := cfg.MinRebalanceAmount(); err != nil {
		return nil, fmt.Errorf("invalid min_rebalance_amount: %w", err)
	}
	return &cfg, nil
}

func parseAmount(s string) (fixedpoint.Amount, error) {
	if s == "" {
		return fixedpoint.Zero(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return fixedpoint.FromDecimal(d)
}

// MinimumFeeFloorAmount returns the configured floor as a scaled
// amount.
func (c *Config) MinimumFeeFloorAmount() (fixedpoint.Amount, error) {
	return parseAmount(c.Engine.MinimumFeeFloor)
}

// MinRebalanceAmount returns the configured no-op floor as a scaled
// amount.
func (c *Config) MinRebalanceAmount() (fixedpoint.Amount, error) {
	return parseAmount(c.Engine.MinRebalanceAmount)
}
