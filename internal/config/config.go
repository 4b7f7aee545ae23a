package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	TTL           TTLConfig           `mapstructure:"ttl"`
	Worker        WorkerConfig        `mapstructure:"worker"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	// Driver selects the store: "postgres" or "memory".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type RedisConfig struct {
	// Enabled switches the cache and the cross-instance realtime relay on.
	// When false the cache is a no-op and realtime stays in-process.
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	ConsumerGroupID string   `mapstructure:"consumer_group_id"`
	Topics          []string `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type NotificationsConfig struct {
	DedupWindow  time.Duration `mapstructure:"dedup_window"`
	UnreadTTL    time.Duration `mapstructure:"unread_ttl"`
	ListTTL      time.Duration `mapstructure:"list_ttl"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"`
	ContentMax   int           `mapstructure:"content_max"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
}

type TTLConfig struct {
	RetentionDays int           `mapstructure:"retention_days"` // Default: 30
	PurgeInterval time.Duration `mapstructure:"purge_interval"` // Default: 24h
}

type WorkerConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// Load reads configuration from environment variables and config files.
// Environment variables override file values. Prefix: BLOG_NOTIF_
func Load() (*Config, error) {
	// A local .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.env", "development")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "blog")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.op_timeout", 200*time.Millisecond)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group_id", "blog-notification-group")
	v.SetDefault("kafka.topics", []string{"blog-events", "notification-commands"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.webhook_secret", "")
	v.SetDefault("notifications.dedup_window", 24*time.Hour)
	v.SetDefault("notifications.unread_ttl", 60*time.Second)
	v.SetDefault("notifications.list_ttl", 60*time.Second)
	v.SetDefault("notifications.batch_size", 50)
	v.SetDefault("notifications.batch_delay", time.Second)
	v.SetDefault("notifications.content_max", 100)
	v.SetDefault("notifications.default_limit", 20)
	v.SetDefault("notifications.max_limit", 100)
	v.SetDefault("ttl.retention_days", 30)
	v.SetDefault("ttl.purge_interval", 24*time.Hour)
	v.SetDefault("worker.pool_size", 64)

	// Environment variables (e.g. BLOG_NOTIF_DATABASE_HOST -> database.host)
	v.SetEnvPrefix("BLOG_NOTIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also support simple env vars without prefix for Docker Compose convenience
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.webhook_secret", "WEBHOOK_SECRET")
	v.BindEnv("server.port", "PORT")

	// Try loading config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // Not required

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	n := c.Notifications
	if n.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("notifications.batch_size must be positive, got %d", n.BatchSize))
	}
	if n.BatchDelay <= 0 {
		errs = append(errs, fmt.Errorf("notifications.batch_delay must be positive, got %s", n.BatchDelay))
	}
	if n.DedupWindow <= 0 {
		errs = append(errs, fmt.Errorf("notifications.dedup_window must be positive, got %s", n.DedupWindow))
	}
	if n.UnreadTTL <= 0 || n.ListTTL <= 0 {
		errs = append(errs, errors.New("notifications cache TTLs must be positive"))
	}
	if n.DefaultLimit <= 0 || n.MaxLimit < n.DefaultLimit {
		errs = append(errs, fmt.Errorf("notifications limits invalid: default %d, max %d", n.DefaultLimit, n.MaxLimit))
	}
	if c.TTL.PurgeInterval <= 0 || c.TTL.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("ttl settings invalid: retention %d days, interval %s", c.TTL.RetentionDays, c.TTL.PurgeInterval))
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver))
	}
	if c.Server.Env == "production" && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required in production"))
	}
	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" dbname=" + d.Name +
		" user=" + d.User +
		" password=" + d.Password +
		" sslmode=disable"
}
