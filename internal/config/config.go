package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log                  LogConfig                  `mapstructure:"log"`
	HTTP                 HTTPConfig                 `mapstructure:"http"`
	MySQL                DatabaseConfig             `mapstructure:"mysql"`
	Redis                RedisConfig                `mapstructure:"redis"`
	Gateway              GatewayConfig              `mapstructure:"gateway"`
	BackgroundProcessing BackgroundProcessingConfig `mapstructure:"background_processing"`
	Reminders            RemindersConfig            `mapstructure:"reminders"`
	HiLo                 HiLoConfig                 `mapstructure:"hilo"`
	Cooldown             CooldownConfig             `mapstructure:"cooldown"`
	Dev                  DevConfig                  `mapstructure:"dev"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level    string `mapstructure:"level"    validate:"oneof=debug info warn error"`
	Encoding string `mapstructure:"encoding" validate:"oneof=json console"`
}

type HTTPConfig struct {
	Addr         string `mapstructure:"addr"          validate:"required"`
	GatewayToken string `mapstructure:"gateway_token" validate:"required"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Token   string        `mapstructure:"token"    validate:"required"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"gt=0"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold" validate:"gt=0"`
	OpenFor       time.Duration `mapstructure:"open_for"       validate:"gt=0"`
}

type BackgroundProcessingConfig struct {
	PollingIntervalMinutes   int `mapstructure:"polling_interval_minutes"   validate:"gt=0"`
	MaxConcurrency           int `mapstructure:"max_concurrency"            validate:"gt=0"`
	ProcessingTimeoutSeconds int `mapstructure:"processing_timeout_seconds" validate:"gt=0"`
}

func (c BackgroundProcessingConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMinutes) * time.Minute
}

func (c BackgroundProcessingConfig) ProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeoutSeconds) * time.Second
}

type RemindersConfig struct {
	Enabled             bool  `mapstructure:"enabled"`
	PerUserMax          int   `mapstructure:"per_user_max"          validate:"gt=0"`
	MessageLengthMin    int   `mapstructure:"message_length_min"    validate:"gte=0"`
	MessageLengthMax    int   `mapstructure:"message_length_max"    validate:"gtefield=MessageLengthMin"`
	BelatedAfterSeconds int   `mapstructure:"belated_after_seconds" validate:"gte=0"`
	MaxDueTimeMinutes   int64 `mapstructure:"max_due_time_minutes"  validate:"gt=0"`
	MaxIntervalMinutes  int64 `mapstructure:"max_interval_minutes"  validate:"gt=0"`
	PageSize            int   `mapstructure:"page_size"             validate:"gt=0"`
}

type HiLoConfig struct {
	DefaultWindowSize uint64            `mapstructure:"default_window_size" validate:"gt=0"`
	WindowSizes       map[string]uint64 `mapstructure:"window_sizes"`
}

// WindowFor returns the block size of the named sequence. Keys are matched
// case-insensitively since viper lowercases map keys.
func (c HiLoConfig) WindowFor(name string) uint64 {
	if w, ok := c.WindowSizes[strings.ToLower(name)]; ok && w > 0 {
		return w
	}
	return c.DefaultWindowSize
}

type CooldownRule struct {
	Uses   int           `mapstructure:"uses"   validate:"gte=0"`
	Window time.Duration `mapstructure:"window" validate:"gte=0"`
}

type CooldownConfig struct {
	KeyPrefix      string       `mapstructure:"key_prefix"`
	ReminderAdd    CooldownRule `mapstructure:"reminder_add"`
	ReminderView   CooldownRule `mapstructure:"reminder_view"`
	ReminderRemove CooldownRule `mapstructure:"reminder_remove"`
}

type DevConfig struct {
	UserIDs []uint64 `mapstructure:"user_ids"`
}

// Load reads embedded defaults, merges user YAML (if provided), applies env
// overrides (HOLO_*) and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (HOLO_*), e.g. HOLO_GATEWAY_TOKEN
	v.SetEnvPrefix("HOLO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
