package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Queue       QueueConfig     `mapstructure:"queue"`
	RateLimits  RateLimitConfig `mapstructure:"rate_limits"`
	Filter      FilterConfig    `mapstructure:"filter"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Collector   CollectorConfig `mapstructure:"collector"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	PoolSize    int    `mapstructure:"pool_size"`
	PoolTimeout string `mapstructure:"pool_timeout"`
}

// DSN builds the connection string for a single database handle.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// PoolWait returns the parsed bounded wait for a pooled handle, defaulting
// to five seconds on a malformed value.
func (c DatabaseConfig) PoolWait() time.Duration {
	d, err := time.ParseDuration(c.PoolTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Workers            int `mapstructure:"workers"`
	DedupWindowSeconds int `mapstructure:"dedup_window_seconds"`
}

// RateLimitPolicy is the admission policy for one named upstream service.
type RateLimitPolicy struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type RateLimitConfig struct {
	Default  RateLimitPolicy            `mapstructure:"default"`
	Services map[string]RateLimitPolicy `mapstructure:"services"`
}

// FilterConfig describes the trading session window used by the anomaly
// significance filter. Hours are in the session's own fixed UTC offset.
type FilterConfig struct {
	UTCOffsetHours int `mapstructure:"utc_offset_hours"`
	OpenHour       int `mapstructure:"open_hour"`
	CloseHour      int `mapstructure:"close_hour"`
	CloseMinute    int `mapstructure:"close_minute"`
}

type ProvidersConfig struct {
	GoogleAPIKey   string   `mapstructure:"google_api_key"`
	GoogleCX       string   `mapstructure:"google_cx"`
	SerperAPIKey   string   `mapstructure:"serper_api_key"`
	YandexAPIKey   string   `mapstructure:"yandex_api_key"`
	YandexFolderID string   `mapstructure:"yandex_folder_id"`
	RSSFeeds       []string `mapstructure:"rss_feeds"`
	RequestTimeout int      `mapstructure:"request_timeout"`
	MaxRetries     int      `mapstructure:"max_retries"`
}

type AnalysisConfig struct {
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	Model        string `mapstructure:"model"`
}

type CollectorConfig struct {
	CacheTTLSeconds     int `mapstructure:"cache_ttl_seconds"`
	MaxResultsPerSource int `mapstructure:"max_results_per_source"`
}

func Load() (*Config, error) {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if config.Queue.Workers <= 0 {
		return nil, fmt.Errorf("queue workers must be positive, got %d", config.Queue.Workers)
	}
	if config.Database.PoolSize <= 0 {
		return nil, fmt.Errorf("database pool size must be positive, got %d", config.Database.PoolSize)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "radar_news")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.pool_timeout", "5s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("queue.workers", 3)
	viper.SetDefault("queue.dedup_window_seconds", 300)

	viper.SetDefault("rate_limits.default.max_requests", 30)
	viper.SetDefault("rate_limits.default.window_seconds", 60)
	viper.SetDefault("rate_limits.services", map[string]RateLimitPolicy{
		"google":  {MaxRequests: 100, WindowSeconds: 60},
		"serper":  {MaxRequests: 50, WindowSeconds: 60},
		"yandex":  {MaxRequests: 20, WindowSeconds: 60},
		"rss":     {MaxRequests: 60, WindowSeconds: 60},
		"openai":  {MaxRequests: 60, WindowSeconds: 60},
		"twitter": {MaxRequests: 15, WindowSeconds: 900},
	})

	// Moscow session, 10:00-18:45 MSK, Monday-Friday.
	viper.SetDefault("filter.utc_offset_hours", 3)
	viper.SetDefault("filter.open_hour", 10)
	viper.SetDefault("filter.close_hour", 18)
	viper.SetDefault("filter.close_minute", 45)

	viper.SetDefault("providers.google_api_key", "")
	viper.SetDefault("providers.google_cx", "")
	viper.SetDefault("providers.serper_api_key", "")
	viper.SetDefault("providers.yandex_api_key", "")
	viper.SetDefault("providers.yandex_folder_id", "")
	viper.SetDefault("providers.rss_feeds", []string{})
	viper.SetDefault("providers.request_timeout", 30)
	viper.SetDefault("providers.max_retries", 3)

	viper.SetDefault("analysis.openai_api_key", "")
	viper.SetDefault("analysis.model", "gpt-4o-mini")

	viper.SetDefault("collector.cache_ttl_seconds", 300)
	viper.SetDefault("collector.max_results_per_source", 30)
}
