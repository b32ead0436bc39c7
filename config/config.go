// config.go

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务器配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Session  SessionConfig  `mapstructure:"session"`
	Presence PresenceConfig `mapstructure:"presence"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
}

// ServerConfig 服务器基本配置
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Debug          bool     `mapstructure:"debug"`
	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// 每个客户端IP的HTTP请求速率
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RequestBurst      int           `mapstructure:"request_burst"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Driver 取值 postgres 或 memory，memory 仅用于本地开发
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 令牌校验配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// SessionConfig 游戏会话配置
type SessionConfig struct {
	DefaultMaxPlayers int           `mapstructure:"default_max_players"`
	MaxPlayersLimit   int           `mapstructure:"max_players_limit"`
	JoinCodeAttempts  int           `mapstructure:"join_code_attempts"`
	ListPageSize      int           `mapstructure:"list_page_size"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
}

// PresenceConfig 在线状态配置
type PresenceConfig struct {
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// RealtimeConfig 实时通道配置
type RealtimeConfig struct {
	SendBuffer        int     `mapstructure:"send_buffer"`
	MaxMessageSize    int64   `mapstructure:"max_message_size"`
	ChatMaxLength     int     `mapstructure:"chat_max_length"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.requests_per_second", 10)
	v.SetDefault("server.request_burst", 30)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pixelstream")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 密钥没有默认值，但需要注册键名才能被环境变量覆盖
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "pixelstream")

	v.SetDefault("session.default_max_players", 4)
	v.SetDefault("session.max_players_limit", 8)
	v.SetDefault("session.join_code_attempts", 5)
	v.SetDefault("session.list_page_size", 50)
	v.SetDefault("session.store_timeout", 5*time.Second)

	v.SetDefault("presence.ttl", 60*time.Second)
	v.SetDefault("presence.heartbeat_interval", 20*time.Second)

	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.max_message_size", 64*1024)
	v.SetDefault("realtime.chat_max_length", 500)
	v.SetDefault("realtime.messages_per_second", 20)
	v.SetDefault("realtime.message_burst", 40)
}

// LoadConfig 从文件加载配置，环境变量 PIXELSTREAM_* 覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("pixelstream")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret 不能为空")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("未知的数据库驱动: %s", c.Database.Driver)
	}
	if c.Session.DefaultMaxPlayers <= 0 || c.Session.MaxPlayersLimit < c.Session.DefaultMaxPlayers {
		return fmt.Errorf("session.default_max_players 必须为正数且不超过 session.max_players_limit")
	}
	if c.Session.JoinCodeAttempts <= 0 {
		return fmt.Errorf("session.join_code_attempts 必须为正数, 当前值 %d", c.Session.JoinCodeAttempts)
	}
	if c.Session.ListPageSize <= 0 {
		return fmt.Errorf("session.list_page_size 必须为正数, 当前值 %d", c.Session.ListPageSize)
	}
	if c.Session.StoreTimeout <= 0 {
		return fmt.Errorf("session.store_timeout 必须为正数, 当前值 %s", c.Session.StoreTimeout)
	}
	if c.Server.RequestsPerSecond <= 0 || c.Server.RequestBurst <= 0 {
		return fmt.Errorf("server.requests_per_second 和 server.request_burst 必须为正数")
	}
	if c.Presence.TTL <= 0 || c.Presence.HeartbeatInterval <= 0 || c.Presence.HeartbeatInterval >= c.Presence.TTL {
		return fmt.Errorf("presence.heartbeat_interval 必须小于 presence.ttl")
	}
	return nil
}

// GetDSN 获取PostgreSQL连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr 获取Redis连接地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
