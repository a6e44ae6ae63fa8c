package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pubg-account-watch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Detection     DetectionConfig     `mapstructure:"detection"`
	Registration  RegistrationConfig  `mapstructure:"registration"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	Learning      LearningConfig      `mapstructure:"learning"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Export        ExportConfig        `mapstructure:"export"`
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

// MonitorConfig governs message filtering and the pipeline loop.
type MonitorConfig struct {
	TrustedOnly bool `mapstructure:"trusted_only"`
	MediaOnly   bool `mapstructure:"media_only"`
	QueueSize   int  `mapstructure:"queue_size"`
}

// DetectionConfig tunes visual matching. The similarity threshold is the
// single most important tunable of the whole pipeline.
type DetectionConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxParallelFrames   int     `mapstructure:"max_parallel_frames"`
}

// RegistrationConfig tunes item registration from operator images.
type RegistrationConfig struct {
	// DedupDistance is the max hamming distance at which a registered image
	// is folded into an existing item as a new template.
	DedupDistance int `mapstructure:"dedup_distance"`
	GridRows      int `mapstructure:"grid_rows"`
	GridCols      int `mapstructure:"grid_cols"`
}

// PricingConfig parameterises the pricing engine.
type PricingConfig struct {
	RarityStep            float64 `mapstructure:"rarity_step"`
	ComboMinTier          int     `mapstructure:"combo_min_tier"`
	ComboMinCount         int     `mapstructure:"combo_min_count"`
	ComboBonusPct         float64 `mapstructure:"combo_bonus_pct"`
	ComboBonusCap         float64 `mapstructure:"combo_bonus_cap"`
	UnknownItemSpread     float64 `mapstructure:"unknown_item_spread"`
	FrameFailureSpreadPct float64 `mapstructure:"frame_failure_spread_pct"`
}

// LearningConfig bounds the online-learning updates.
type LearningConfig struct {
	PriceHalfLife       time.Duration `mapstructure:"price_half_life"`
	WeightStep          float64       `mapstructure:"weight_step"`
	WeightMin           float64       `mapstructure:"weight_min"`
	WeightMax           float64       `mapstructure:"weight_max"`
	RejectThresholdStep float64       `mapstructure:"reject_threshold_step"`
	ThresholdCeiling    float64       `mapstructure:"threshold_ceiling"`
}

// NotificationsConfig defines event thresholds and routing.
type NotificationsConfig struct {
	RareTierThreshold int            `mapstructure:"rare_tier_threshold"`
	GoodPriceFloor    float64        `mapstructure:"good_price_floor"`
	NotifyOnRare      bool           `mapstructure:"notify_on_rare"`
	NotifyOnGoodPrice bool           `mapstructure:"notify_on_good_price"`
	QueueSize         int            `mapstructure:"queue_size"`
	Telegram          TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 通知参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SyncConfig governs the periodic catalog persistence job.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// AlignToStart snaps ticks to wall-clock interval boundaries.
	AlignToStart bool          `mapstructure:"align_to_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUBGWATCH")
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
	v.SetDefault("app.name", "pubgwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("monitor.trusted_only", false)
	v.SetDefault("monitor.media_only", true)
	v.SetDefault("monitor.queue_size", 256)

	v.SetDefault("detection.similarity_threshold", 0.75)
	v.SetDefault("detection.max_parallel_frames", 4)

	v.SetDefault("registration.dedup_distance", 6)
	v.SetDefault("registration.grid_rows", 6)
	v.SetDefault("registration.grid_cols", 8)

	v.SetDefault("pricing.rarity_step", 0.15)
	v.SetDefault("pricing.combo_min_tier", 4)
	v.SetDefault("pricing.combo_min_count", 2)
	v.SetDefault("pricing.combo_bonus_pct", 0.10)
	v.SetDefault("pricing.combo_bonus_cap", 0.50)
	v.SetDefault("pricing.unknown_item_spread", 50.0)
	v.SetDefault("pricing.frame_failure_spread_pct", 0.25)

	v.SetDefault("learning.price_half_life", "720h")
	v.SetDefault("learning.weight_step", 0.10)
	v.SetDefault("learning.weight_min", 0.25)
	v.SetDefault("learning.weight_max", 4.0)
	v.SetDefault("learning.reject_threshold_step", 0.02)
	v.SetDefault("learning.threshold_ceiling", 0.95)

	v.SetDefault("notifications.rare_tier_threshold", 4)
	v.SetDefault("notifications.good_price_floor", 200.0)
	v.SetDefault("notifications.notify_on_rare", true)
	v.SetDefault("notifications.notify_on_good_price", true)
	v.SetDefault("notifications.queue_size", 64)
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.align_to_start", true)
	v.SetDefault("sync.startup_delay", "0s")

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
	if c.Detection.SimilarityThreshold <= 0 || c.Detection.SimilarityThreshold > 1 {
		return fmt.Errorf("detection.similarity_threshold must be in (0,1]")
	}
	if c.Registration.DedupDistance < 0 || c.Registration.DedupDistance > 64 {
		return fmt.Errorf("registration.dedup_distance must be in [0,64]")
	}
	if c.Registration.GridRows <= 0 || c.Registration.GridCols <= 0 {
		return fmt.Errorf("registration grid dimensions must be positive")
	}
	if c.Pricing.RarityStep < 0 {
		return fmt.Errorf("pricing.rarity_step cannot be negative")
	}
	if c.Learning.WeightStep <= 0 || c.Learning.WeightStep >= 1 {
		return fmt.Errorf("learning.weight_step must be in (0,1)")
	}
	if c.Learning.WeightMin <= 0 || c.Learning.WeightMax < c.Learning.WeightMin {
		return fmt.Errorf("learning weight bounds invalid: [%v, %v]", c.Learning.WeightMin, c.Learning.WeightMax)
	}
	if c.Learning.PriceHalfLife <= 0 {
		return fmt.Errorf("learning.price_half_life must be greater than zero")
	}
	if c.Learning.ThresholdCeiling <= 0 || c.Learning.ThresholdCeiling > 1 {
		return fmt.Errorf("learning.threshold_ceiling must be in (0,1]")
	}
	if c.Notifications.RareTierThreshold < 1 {
		return fmt.Errorf("notifications.rare_tier_threshold must be at least 1")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.BotToken == "" {
			return fmt.Errorf("notifications.telegram.bot_token 必须配置")
		}
		if c.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("notifications.telegram.chat_id 必须配置")
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
