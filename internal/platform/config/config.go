package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"hookrelay/internal/engine/catalog"
)

const (
	BackendPool  = "pool"
	BackendRedis = "redis"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	Webhooks WebhooksConfig  `mapstructure:"webhooks"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Events   []catalog.Entry `mapstructure:"events"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"` // sqlite3 or pgx
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type WebhooksConfig struct {
	Backend       string        `mapstructure:"backend"`
	WorkerCount   int           `mapstructure:"worker_count"`
	QueueSize     int           `mapstructure:"queue_size"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SigningSecret string        `mapstructure:"signing_secret"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "file:hookrelay.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("redis.key_prefix", "hookrelay")

	v.SetDefault("jwt.access_token_ttl", time.Hour)

	v.SetDefault("webhooks.backend", BackendPool)
	v.SetDefault("webhooks.worker_count", 3)
	v.SetDefault("webhooks.queue_size", 0)
	v.SetDefault("webhooks.retry_attempts", 5)
	v.SetDefault("webhooks.retry_backoff", time.Second)
	v.SetDefault("webhooks.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
