package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects where auctions live. Redis additionally enables
// cross-instance events and leader election whenever redis.enabled is set.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type LifecycleConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	MinLeadTime time.Duration `mapstructure:"min_lead_time"`
}

type NotifierConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var envBindings = map[string]string{
	"server.port":             "SERVER_PORT",
	"server.host":             "SERVER_HOST",
	"store.backend":           "STORE_BACKEND",
	"redis.enabled":           "REDIS_ENABLED",
	"redis.address":           "REDIS_ADDRESS",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"mysql.dsn":               "MYSQL_DSN",
	"mysql.max_open_conns":    "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":    "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime": "MYSQL_CONN_MAX_LIFETIME",
	"nats.enabled":            "NATS_ENABLED",
	"nats.url":                "NATS_URL",
	"leader.ttl":              "LEADER_TTL",
	"instance.id":             "INSTANCE_ID",
	"lifecycle.schedule":      "LIFECYCLE_SCHEDULE",
	"lifecycle.min_lead_time": "LIFECYCLE_MIN_LEAD_TIME",
	"notifier.workers":        "NOTIFIER_WORKERS",
	"notifier.queue_size":     "NOTIFIER_QUEUE_SIZE",
	"notifier.max_attempts":   "NOTIFIER_MAX_ATTEMPTS",
	"notifier.timeout":        "NOTIFIER_TIMEOUT",
	"notifier.backoff":        "NOTIFIER_BACKOFF",
	"log.level":               "LOG_LEVEL",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("lifecycle.schedule", "@every 1m")
	v.SetDefault("lifecycle.min_lead_time", 72*time.Hour)
	v.SetDefault("notifier.workers", 4)
	v.SetDefault("notifier.queue_size", 1024)
	v.SetDefault("notifier.max_attempts", 3)
	v.SetDefault("notifier.timeout", 5*time.Second)
	v.SetDefault("notifier.backoff", 500*time.Millisecond)
	v.SetDefault("log.level", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads defaults, an optional config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-service/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory, BackendMySQL, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Lifecycle.Schedule == "" {
		errs = append(errs, errors.New("lifecycle.schedule: required"))
	}
	if c.Lifecycle.MinLeadTime < 0 {
		errs = append(errs, errors.New("lifecycle.min_lead_time: must not be negative"))
	}
	if c.Notifier.Workers <= 0 {
		errs = append(errs, errors.New("notifier.workers: must be positive"))
	}
	if c.Notifier.QueueSize <= 0 {
		errs = append(errs, errors.New("notifier.queue_size: must be positive"))
	}
	if c.Notifier.MaxAttempts <= 0 {
		errs = append(errs, errors.New("notifier.max_attempts: must be positive"))
	}
	if c.Notifier.Timeout <= 0 {
		errs = append(errs, errors.New("notifier.timeout: must be positive"))
	}
	if c.UsesRedis() && c.Leader.TTL <= 0 {
		errs = append(errs, errors.New("leader.ttl: must be positive"))
	}
	if c.Instance.ID == "" {
		errs = append(errs, errors.New("instance.id: required"))
	}
	return errors.Join(errs...)
}

// UsesRedis reports whether a Redis client is needed.
func (c *Config) UsesRedis() bool {
	return c.Redis.Enabled || c.Store.Backend == BackendRedis
}

// GetConfigString returns a formatted string representation of the config
// without credentials.
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Store: %s, Redis: %s (enabled=%t), NATS: %s (enabled=%t), Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Store.Backend,
		c.Redis.Address,
		c.UsesRedis(),
		c.NATS.URL,
		c.NATS.Enabled,
		c.Instance.ID,
	)
}
