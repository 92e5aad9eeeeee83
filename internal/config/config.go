package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"hostpay/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Fees        FeesConfig        `mapstructure:"fees"`
	PriceFeed   PriceFeedConfig   `mapstructure:"pricefeed"`
	Explorer    ExplorerConfig    `mapstructure:"explorer"`
	Sweep       SweepConfig       `mapstructure:"sweep"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WalletConfig covers the durable wallet and settlement-chain parameters.
// Network, CoinType, and the price-feed endpoints must all name the same
// chain; the defaults are BTC mainnet.
type WalletConfig struct {
	Path            string `mapstructure:"path"`
	Network         string `mapstructure:"network"`
	CoinType        uint32 `mapstructure:"coin_type"`
	TreasuryAddress string `mapstructure:"treasury_address"`
	UnitsPerCoin    int64  `mapstructure:"units_per_coin"`
}

// FeesConfig drives hosting-fee quoting.
type FeesConfig struct {
	PerMb             float64 `mapstructure:"per_mb"`
	FloorMb           int64   `mapstructure:"floor_mb"`
	FixedEnabled      bool    `mapstructure:"fixed_enabled"`
	FixedSmallestUnit int64   `mapstructure:"fixed_smallest_unit"`
}

// PriceFeedConfig parameterises the exchange-rate oracle.
type PriceFeedConfig struct {
	Endpoints       []string      `mapstructure:"endpoints"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	StalenessWindow time.Duration `mapstructure:"staleness_window"`
}

// ExplorerConfig covers ledger backend connectivity.
type ExplorerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	FeeRateSatVb   int64         `mapstructure:"fee_rate_sat_vb"`
}

// SweepConfig governs the consolidation job cadence.
type SweepConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// MaintenanceConfig governs stale-upload cleanup.
type MaintenanceConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// AlertingConfig defines ops notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOSTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hostpay")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("wallet.path", "config/wallet.json")
	v.SetDefault("wallet.network", "mainnet")
	v.SetDefault("wallet.coin_type", uint32(0))
	v.SetDefault("wallet.units_per_coin", int64(100_000_000))

	v.SetDefault("fees.per_mb", 0.01)
	v.SetDefault("fees.floor_mb", int64(10))
	v.SetDefault("fees.fixed_enabled", false)
	v.SetDefault("fees.fixed_smallest_unit", int64(1))

	v.SetDefault("pricefeed.endpoints", []string{"https://api.coinbase.com/v2/prices/BTC-USD/spot"})
	v.SetDefault("pricefeed.request_timeout", "10s")
	v.SetDefault("pricefeed.cache_ttl", "30s")
	v.SetDefault("pricefeed.staleness_window", "5m")

	v.SetDefault("explorer.request_timeout", "15s")
	v.SetDefault("explorer.fee_rate_sat_vb", int64(1))

	v.SetDefault("sweep.interval", "30s")
	v.SetDefault("sweep.startup_delay", "5s")

	v.SetDefault("maintenance.interval", "24h")
	v.SetDefault("maintenance.retention", "24h")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Fees.PerMb <= 0 {
		return fmt.Errorf("fees.per_mb must be greater than zero")
	}
	if c.Fees.FloorMb < 0 {
		return fmt.Errorf("fees.floor_mb cannot be negative")
	}
	if c.Fees.FixedEnabled && c.Fees.FixedSmallestUnit <= 0 {
		return fmt.Errorf("fees.fixed_smallest_unit must be greater than zero when fixed fees are enabled")
	}
	if c.Wallet.UnitsPerCoin <= 0 {
		return fmt.Errorf("wallet.units_per_coin must be greater than zero")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be greater than zero")
	}
	if c.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance.interval must be greater than zero")
	}
	if c.Maintenance.Retention <= 0 {
		return fmt.Errorf("maintenance.retention must be greater than zero")
	}
	if c.PriceFeed.StalenessWindow <= 0 {
		return fmt.Errorf("pricefeed.staleness_window must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
