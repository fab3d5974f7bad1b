package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Auth struct {
		SigningKey string `mapstructure:"signing_key"`
		Issuer     string `mapstructure:"issuer"`
	} `mapstructure:"auth"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		TTL      string `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	Quiz struct {
		TTL string `mapstructure:"ttl"`
		Dir string `mapstructure:"dir"`
	} `mapstructure:"quiz"`
	Submissions struct {
		// Backend is one of memory, postgres, sqlite or http.
		Backend  string `mapstructure:"backend"`
		BaseURL  string `mapstructure:"base_url"`
		Timeout  string `mapstructure:"timeout"`
		CacheTTL string `mapstructure:"cache_ttl"`
	} `mapstructure:"submissions"`
	Attempts struct {
		IdleTTL       string `mapstructure:"idle_ttl"`
		SweepInterval string `mapstructure:"sweep_interval"`
	} `mapstructure:"attempts"`
}

// Load reads YAML config from path; QUIZ_* environment variables override it
// (QUIZ_REDIS_ADDR overrides redis.addr). A missing file falls back to defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !missing(err) {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("postgres.url", "")
	v.SetDefault("sqlite.path", "quiz_submissions.db")
	v.SetDefault("quiz.ttl", "10m")
	v.SetDefault("quiz.dir", "")
	v.SetDefault("submissions.backend", "memory")
	v.SetDefault("submissions.base_url", "")
	v.SetDefault("submissions.timeout", "10s")
	v.SetDefault("submissions.cache_ttl", "5m")
	v.SetDefault("attempts.idle_ttl", "30m")
	v.SetDefault("attempts.sweep_interval", "1m")
}

func missing(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// NewLogger builds the process logger from log.level; unknown levels fall back to info.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
