package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Websocket  WebsocketConfig  `mapstructure:"websocket"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
	Snowflake  SnowflakeConfig  `mapstructure:"snowflake"`
	Chat       ChatConfig       `mapstructure:"chat"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Mode            string   `mapstructure:"mode"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // seconds
	AllowOrigins    []string `mapstructure:"allow_origins"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error, fatal
	Format   string `mapstructure:"format"` // json, text
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// RateLimitConfig holds per-minute budgets for the user-facing write paths.
type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	FailOpen         bool `mapstructure:"fail_open"`
	MessagePerMinute int  `mapstructure:"message_per_minute"`
	JoinPerMinute    int  `mapstructure:"join_per_minute"`
	APIPerMinute     int  `mapstructure:"api_per_minute"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type WebsocketConfig struct {
	NodeID            string `mapstructure:"node_id"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval"` // seconds
	ConnectionTimeout int    `mapstructure:"connection_timeout"` // seconds
	SendBufferSize    int    `mapstructure:"send_buffer_size"`
	ReadBufferSize    int    `mapstructure:"read_buffer_size"`
	WriteBufferSize   int    `mapstructure:"write_buffer_size"`
}

type KafkaConfig struct {
	Enabled  bool                `mapstructure:"enabled"`
	Brokers  []string            `mapstructure:"brokers"`
	Topics   KafkaTopicsConfig   `mapstructure:"topics"`
	Producer KafkaProducerConfig `mapstructure:"producer"`
}

type KafkaTopicsConfig struct {
	Membership string `mapstructure:"membership"`
	Message    string `mapstructure:"message"`
}

type KafkaProducerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

// Enabled reports whether credentials for the avatar store are present.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type SnowflakeConfig struct {
	WorkerID int64 `mapstructure:"worker_id"`
}

// ChatConfig bounds user input and history paging.
type ChatConfig struct {
	MaxContentLength     int `mapstructure:"max_content_length"`
	MaxNameLength        int `mapstructure:"max_name_length"`
	MaxDescriptionLength int `mapstructure:"max_description_length"`
	DefaultPageSize      int `mapstructure:"default_page_size"`
	MaxPageSize          int `mapstructure:"max_page_size"`
}

// DefaultChatConfig returns the limits used when the config file omits the chat section.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxContentLength:     2000,
		MaxNameLength:        50,
		MaxDescriptionLength: 200,
		DefaultPageSize:      50,
		MaxPageSize:          300,
	}
}

// LoadConfig reads the TOML file at path, overlays GROUPCHAT_* environment
// variables and fills unset keys with defaults. A .env file next to the
// working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GROUPCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret must be set")
	}
	if c.Chat.DefaultPageSize <= 0 || c.Chat.MaxPageSize < c.Chat.DefaultPageSize {
		return fmt.Errorf("invalid chat page sizes: default=%d max=%d", c.Chat.DefaultPageSize, c.Chat.MaxPageSize)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must be set when kafka is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "groupchat")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)
	v.SetDefault("postgres.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	// 空值也需要注册默认值，AutomaticEnv 才能在 Unmarshal 时生效
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 168)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.fail_open", true)
	v.SetDefault("ratelimit.message_per_minute", 60)
	v.SetDefault("ratelimit.join_per_minute", 10)
	v.SetDefault("ratelimit.api_per_minute", 300)

	v.SetDefault("worker_pool.size", 4)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("websocket.node_id", "node-1")
	v.SetDefault("websocket.heartbeat_interval", 30)
	v.SetDefault("websocket.connection_timeout", 90)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topics.membership", "groupchat.membership")
	v.SetDefault("kafka.topics.message", "groupchat.message")
	v.SetDefault("kafka.producer.max_retries", 3)
	v.SetDefault("kafka.producer.retry_backoff_ms", 100)

	v.SetDefault("cloudinary.cloud_name", "")
	v.SetDefault("cloudinary.api_key", "")
	v.SetDefault("cloudinary.api_secret", "")
	v.SetDefault("cloudinary.folder", "group-avatars")

	v.SetDefault("snowflake.worker_id", 1)

	chat := DefaultChatConfig()
	v.SetDefault("chat.max_content_length", chat.MaxContentLength)
	v.SetDefault("chat.max_name_length", chat.MaxNameLength)
	v.SetDefault("chat.max_description_length", chat.MaxDescriptionLength)
	v.SetDefault("chat.default_page_size", chat.DefaultPageSize)
	v.SetDefault("chat.max_page_size", chat.MaxPageSize)
}
