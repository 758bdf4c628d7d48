package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/playback-games/progress-sync/internal/remotestore"
)

// Config holds the full application configuration.
type Config struct {
	Local    LocalConfig    `yaml:"local" mapstructure:"local"`
	Remote   RemoteConfig   `yaml:"remote" mapstructure:"remote"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// LocalConfig configures the device cache.
type LocalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RemoteConfig configures the durable account store.
type RemoteConfig struct {
	DatabaseURL string                 `yaml:"database_url" mapstructure:"database_url"`
	Pool        remotestore.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// SyncConfig holds the replication heuristics. The score-gap and
// recency-gap thresholds were inherited from the original product without
// documented tuning; treat them as knobs, not truths.
type SyncConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	ScoreGap        float64       `yaml:"score_gap" mapstructure:"score_gap"`
	RecencyGap      time.Duration `yaml:"recency_gap" mapstructure:"recency_gap"`
	SweepInterval   time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	MirrorPerSecond float64       `yaml:"mirror_per_second" mapstructure:"mirror_per_second"`
	MirrorBurst     int           `yaml:"mirror_burst" mapstructure:"mirror_burst"`
}

// IdentityConfig seeds the static identity provider for CLI/daemon use.
type IdentityConfig struct {
	Owner string `yaml:"owner" mapstructure:"owner"`
}

// ServerConfig configures the status/resolution HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("local.path", "progress-cache.db")
	v.SetDefault("remote.pool.max_conns", 10)
	v.SetDefault("remote.pool.min_conns", 2)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.score_gap", 1.5)
	v.SetDefault("sync.recency_gap", time.Hour)
	v.SetDefault("sync.sweep_interval", 5*time.Minute)
	v.SetDefault("sync.mirror_per_second", 2.0)
	v.SetDefault("sync.mirror_burst", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
