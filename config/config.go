package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Mail         MailConfig         `mapstructure:"mail"`
	SMS          SMSConfig          `mapstructure:"sms"`
	Notification NotificationConfig `mapstructure:"notification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置（Token 由外部认证服务签发，本服务只做校验）
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

// MailConfig SMTP 邮件配置
type MailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// ImplicitTLS 为 true 时直接 TLS 握手（465 端口），否则走 STARTTLS
	ImplicitTLS bool `mapstructure:"implicit_tls"`
}

// Enabled SMTP 主机未配置时邮件通道使用日志替身
func (c *MailConfig) Enabled() bool {
	return c.SMTPHost != ""
}

// SMSConfig 短信 / WhatsApp 网关配置
type SMSConfig struct {
	GatewayURL     string        `mapstructure:"gateway_url"`
	APIKey         string        `mapstructure:"api_key"`
	SenderID       string        `mapstructure:"sender_id"`
	WhatsAppURL    string        `mapstructure:"whatsapp_url"`
	WhatsAppToken  string        `mapstructure:"whatsapp_token"`
	WhatsAppSender string        `mapstructure:"whatsapp_sender"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// NotificationConfig 通知分发配置
type NotificationConfig struct {
	ChannelTimeout     time.Duration `mapstructure:"channel_timeout"`      // 单个通道发送超时
	PreferenceCacheTTL time.Duration `mapstructure:"preference_cache_ttl"` // 偏好缓存有效期，0 表示禁用缓存
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
	ExpiringDays   int           `mapstructure:"expiring_days"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "gymdesk")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Kolkata")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 仅出现在环境变量中的键也需注册默认值，否则 Unmarshal 不会读取
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.issuer", "gymdesk")

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@gymdesk.local")
	v.SetDefault("mail.implicit_tls", false)

	v.SetDefault("sms.gateway_url", "")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.sender_id", "")
	v.SetDefault("sms.whatsapp_url", "")
	v.SetDefault("sms.whatsapp_token", "")
	v.SetDefault("sms.whatsapp_sender", "")
	v.SetDefault("sms.timeout", "10s")

	v.SetDefault("notification.channel_timeout", "10s")
	v.SetDefault("notification.preference_cache_ttl", "10m")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.expiry_interval", "1h")
	v.SetDefault("scheduler.expiring_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("GYM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Notification.ChannelTimeout <= 0 {
		return fmt.Errorf("配置校验失败: notification.channel_timeout 必须大于 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.ExpiryInterval <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.expiry_interval 必须大于 0")
	}
	if c.Scheduler.ExpiringDays < 1 {
		return fmt.Errorf("配置校验失败: scheduler.expiring_days 不能小于 1")
	}
	return nil
}
