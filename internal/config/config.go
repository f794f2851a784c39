package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"alphawatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Stability StabilityConfig `mapstructure:"stability"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SourcesConfig covers the data source adapters and failover policy.
type SourcesConfig struct {
	FallbackEnabled bool           `mapstructure:"fallback_enabled"`
	Binance         BinanceConfig  `mapstructure:"binance"`
	Alpha123        Alpha123Config `mapstructure:"alpha123"`
}

// BinanceConfig captures official Alpha listing connectivity.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Priority       int           `mapstructure:"priority"`
}

// Alpha123Config captures the community fallback site. The day windows are
// policy defaults carried over from upstream, deliberately configurable.
type Alpha123Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	UpcomingDays   int           `mapstructure:"upcoming_days"`
	GraceDays      int           `mapstructure:"grace_days"`
	Priority       int           `mapstructure:"priority"`
}

// CacheConfig tunes the in-memory token cache.
type CacheConfig struct {
	TTL                  time.Duration `mapstructure:"ttl"`
	StaleTime            time.Duration `mapstructure:"stale_time"`
	MaxSize              int           `mapstructure:"max_size"`
	StaleWhileRevalidate bool          `mapstructure:"stale_while_revalidate"`
}

// SyncConfig governs persistence sync cadence and schedule maintenance.
type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	AlignToBucket  bool          `mapstructure:"align_to_bucket"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
	ScheduleSpec   string        `mapstructure:"schedule_spec"`
	SweepSpec      string        `mapstructure:"sweep_spec"`
	ReminderSpec   string        `mapstructure:"reminder_spec"`
	CleanupSpec    string        `mapstructure:"cleanup_spec"`
	ReminderWindow time.Duration `mapstructure:"reminder_window"`
	CleanupDays    int           `mapstructure:"cleanup_days"`
}

// StabilityConfig tunes the trade-stream stability monitor.
type StabilityConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	TimeWindow        time.Duration `mapstructure:"time_window"`
	BufferSize        int           `mapstructure:"buffer_size"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchDelay        time.Duration `mapstructure:"batch_delay"`
	MinTrades         int           `mapstructure:"min_trades"`
	NoTradeTimeout    time.Duration `mapstructure:"no_trade_timeout"`
	StablePct         float64       `mapstructure:"stable_pct"`
	ModeratePct       float64       `mapstructure:"moderate_pct"`
	SpikePct          float64       `mapstructure:"spike_pct"`
	MultiplierTier    int           `mapstructure:"multiplier_tier"`
	ExtraSymbols      []string      `mapstructure:"extra_symbols"`
	QuoteAsset        string        `mapstructure:"quote_asset"`
	TradeLimit        int           `mapstructure:"trade_limit"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig governs the dashboard API listener.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALPHAWATCHER")
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
	v.SetDefault("app.name", "alphawatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sources.fallback_enabled", true)
	v.SetDefault("sources.binance.base_url", "https://www.binance.com")
	v.SetDefault("sources.binance.request_timeout", "10s")
	v.SetDefault("sources.binance.health_timeout", "3s")
	v.SetDefault("sources.binance.user_agent", "alphawatcher/1.0")
	v.SetDefault("sources.binance.priority", 1)
	v.SetDefault("sources.alpha123.base_url", "https://alpha123.uk")
	v.SetDefault("sources.alpha123.request_timeout", "10s")
	v.SetDefault("sources.alpha123.health_timeout", "3s")
	v.SetDefault("sources.alpha123.upcoming_days", 7)
	v.SetDefault("sources.alpha123.grace_days", 7)
	v.SetDefault("sources.alpha123.priority", 2)

	v.SetDefault("cache.ttl", "1m")
	v.SetDefault("cache.stale_time", "5m")
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.stale_while_revalidate", true)

	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.align_to_bucket", true)
	v.SetDefault("sync.startup_delay", "0s")
	v.SetDefault("sync.schedule_spec", "*/10 * * * *")
	v.SetDefault("sync.sweep_spec", "* * * * *")
	v.SetDefault("sync.reminder_spec", "* * * * *")
	v.SetDefault("sync.cleanup_spec", "0 4 * * *")
	v.SetDefault("sync.reminder_window", "20m")
	v.SetDefault("sync.cleanup_days", 7)

	v.SetDefault("stability.enabled", false)
	v.SetDefault("stability.base_url", "https://www.binance.com")
	v.SetDefault("stability.request_timeout", "5s")
	v.SetDefault("stability.poll_interval", "3s")
	v.SetDefault("stability.time_window", "60s")
	v.SetDefault("stability.buffer_size", 200)
	v.SetDefault("stability.batch_size", 5)
	v.SetDefault("stability.batch_delay", "200ms")
	v.SetDefault("stability.min_trades", 3)
	v.SetDefault("stability.no_trade_timeout", "30s")
	v.SetDefault("stability.stable_pct", 0.01)
	v.SetDefault("stability.moderate_pct", 0.5)
	v.SetDefault("stability.spike_pct", 2.0)
	v.SetDefault("stability.multiplier_tier", 2)
	v.SetDefault("stability.extra_symbols", []string{"KOGE"})
	v.SetDefault("stability.quote_asset", "USDT")
	v.SetDefault("stability.trade_limit", 50)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be greater than zero")
	}
	if c.Sync.ReminderWindow <= 0 {
		return fmt.Errorf("sync.reminder_window must be greater than zero")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be greater than zero")
	}
	if c.Stability.PollInterval <= 0 {
		return fmt.Errorf("stability.poll_interval must be greater than zero")
	}
	if c.Stability.StablePct < 0 || c.Stability.ModeratePct < c.Stability.StablePct {
		return fmt.Errorf("stability thresholds must satisfy 0 <= stable_pct <= moderate_pct")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
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
