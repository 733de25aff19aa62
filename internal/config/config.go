package config

import (
	"time"

	"github.com/tourze/wechat-fans-service/internal/scheduler"
	pkgconfig "github.com/tourze/wechat-fans-service/pkg/config"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	WeChat   WeChatConfig `mapstructure:"wechat"`
	Sync     SyncConfig
	Schedule scheduler.JobTimes
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	// Enabled turns the stats cache on; without redis the service falls
	// back to counting in the database on every request.
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	// Brokers empty disables event publishing.
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type WeChatConfig struct {
	// BaseURL is overridable for tests and private deployments.
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	PageDelay       time.Duration `mapstructure:"page_delay"`
	DetailDelay     time.Duration `mapstructure:"detail_delay"`
	UpsertBatchSize int           `mapstructure:"upsert_batch_size"`
	DetailBatchSize int           `mapstructure:"detail_batch_size"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "wechat_fans")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/fans.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "fans")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "fan-sync-events")
	v.SetDefault("wechat.base_url", "https://api.weixin.qq.com")
	v.SetDefault("wechat.timeout", "10s")
	v.SetDefault("sync.page_delay", "100ms")
	v.SetDefault("sync.detail_delay", "200ms")
	v.SetDefault("sync.upsert_batch_size", 100)
	v.SetDefault("sync.detail_batch_size", 80)
	v.SetDefault("schedule.tags", "02:05")
	v.SetDefault("schedule.followers", "02:10")
	v.SetDefault("schedule.user_details", "02:30")
	v.SetDefault("schedule.blacklist", "02:50")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("wechat.base_url", "WECHAT_BASE_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
