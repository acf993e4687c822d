package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Distribution DistributionConfig `mapstructure:"distribution"`
	Server       ServerConfig       `mapstructure:"server"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// DistributionConfig configures the realtime distribution service.
type DistributionConfig struct {
	PushURL              string        `mapstructure:"push_url"`
	PullURL              string        `mapstructure:"pull_url"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	PullTimeout          time.Duration `mapstructure:"pull_timeout"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Manual refresh rate limit (token bucket).
	RefreshPerSecond float64 `mapstructure:"refresh_per_second"`
	RefreshBurst     int     `mapstructure:"refresh_burst"`
}

// NotifyConfig configures ntfy alerts for transport degradation.
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`
	Topic    string `mapstructure:"topic"`
	Token    string `mapstructure:"token"`
	Priority string `mapstructure:"priority"`
	Tags     string `mapstructure:"tags"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("distribution.push_url", "ws://localhost:9800/ws/admin")
	v.SetDefault("distribution.pull_url", "http://localhost:9800/api/admin/state")
	v.SetDefault("distribution.poll_interval", "30s")
	v.SetDefault("distribution.pull_timeout", "10s")
	v.SetDefault("distribution.reconnect_base_delay", "2s")
	v.SetDefault("distribution.reconnect_max_attempts", 5)
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.refresh_per_second", 1.0)
	v.SetDefault("server.refresh_burst", 3)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "admin-dashboard")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("CLIPFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("distribution.push_url", "CLIPFEED_PUSH_URL")
	_ = v.BindEnv("distribution.pull_url", "CLIPFEED_PULL_URL")
	_ = v.BindEnv("notify.token", "CLIPFEED_NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
