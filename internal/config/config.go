package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"poly-copy-trader/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	DataAPI   DataAPIConfig   `mapstructure:"dataapi"`
	Clob      ClobConfig      `mapstructure:"clob"`
	Polygon   PolygonConfig   `mapstructure:"polygon"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
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

// MonitorConfig governs the activity synchronizer.
type MonitorConfig struct {
	TrackedAddress  string        `mapstructure:"tracked_address"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	Interval        time.Duration `mapstructure:"interval"`
}

// ExecutorConfig governs the copy-execution engine.
type ExecutorConfig struct {
	ProxyWallet  string        `mapstructure:"proxy_wallet"`
	RetryLimit   int           `mapstructure:"retry_limit"`
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MinOrderUSDC float64       `mapstructure:"min_order_usdc"`
	DryRun       bool          `mapstructure:"dry_run"`
}

// DataAPIConfig covers the Polymarket data API.
type DataAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ClobConfig captures CLOB trading connectivity.
type ClobConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PrivateKey     string        `mapstructure:"private_key"`
	FunderAddress  string        `mapstructure:"funder_address"`
	SignatureType  int           `mapstructure:"signature_type"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PolygonConfig covers on-chain balance reads.
type PolygonConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	USDCAddress    string        `mapstructure:"usdc_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines trade notification routing.
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

// SchedulerConfig tunes loop startup and single-instance locking.
type SchedulerConfig struct {
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COPYTRADER")
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
	v.SetDefault("app.name", "copytrader")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.freshness_window", "24h")
	v.SetDefault("monitor.interval", "2s")

	v.SetDefault("executor.retry_limit", 3)
	v.SetDefault("executor.idle_interval", "2s")
	v.SetDefault("executor.multiplier", 0.05)
	v.SetDefault("executor.min_order_usdc", 1.0)
	v.SetDefault("executor.dry_run", false)

	v.SetDefault("dataapi.base_url", "https://data-api.polymarket.com")
	v.SetDefault("dataapi.request_timeout", "10s")
	v.SetDefault("dataapi.user_agent", "copytrader/1.0")

	v.SetDefault("clob.base_url", "https://clob.polymarket.com")
	v.SetDefault("clob.signature_type", 0)
	v.SetDefault("clob.request_timeout", "30s")

	v.SetDefault("polygon.usdc_address", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	v.SetDefault("polygon.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x706f6c79))

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Monitor.FreshnessWindow <= 0 {
		return fmt.Errorf("monitor.freshness_window must be greater than zero")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if c.Executor.RetryLimit < 1 {
		return fmt.Errorf("executor.retry_limit must be at least 1")
	}
	if c.Executor.IdleInterval <= 0 {
		return fmt.Errorf("executor.idle_interval must be greater than zero")
	}
	if c.Executor.Multiplier <= 0 {
		return fmt.Errorf("executor.multiplier must be greater than zero")
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
