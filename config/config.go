package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Mail     MailConfig     `mapstructure:"mail"`
	Log      LogConfig      `mapstructure:"log"`
	Job      JobConfig      `mapstructure:"job"`
	Feature  FeatureConfig  `mapstructure:"feature"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	BaseURL      string     `mapstructure:"base_url"`
	MaxBodyBytes int64      `mapstructure:"max_body_bytes"`
	CORS         CORSConfig `mapstructure:"cors"`
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
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`  // 0 表示 go-redis 默认（10*GOMAXPROCS）
	KeyPrefix string `mapstructure:"key_prefix"` // 所有键的命名空间前缀
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret               string        `mapstructure:"jwt_secret"`
	AccessTokenTTL          time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTLDefault  time.Duration `mapstructure:"refresh_token_ttl_default"`
	RefreshTokenTTLRemember time.Duration `mapstructure:"refresh_token_ttl_remember_me"`
	LoginRateLimit          int           `mapstructure:"login_rate_limit"` // 每 IP 每分钟登录次数
	Cookie                  CookieConfig  `mapstructure:"cookie"`
}

// CookieConfig Cookie 安全配置
type CookieConfig struct {
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
	Domain   string `mapstructure:"domain"`
}

// StorageConfig 附件存储配置
type StorageConfig struct {
	Driver          string `mapstructure:"driver"` // oss | local
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	LocalDir        string `mapstructure:"local_dir"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes"`
}

// MailConfig 邮件配置（SendGrid；未配置 API Key 时输出到日志）
type MailConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	FromName       string `mapstructure:"from_name"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string   `mapstructure:"level"`
	Format  string   `mapstructure:"format"`  // json | console
	Outputs []string `mapstructure:"outputs"` // stdout、stderr 或文件路径
}

// JobConfig 定时任务配置（cron 表达式，空字符串表示禁用）
type JobConfig struct {
	HomeworkSweep string `mapstructure:"homework_sweep"`
	AbsenceDigest string `mapstructure:"absence_digest"`
	Timezone      string `mapstructure:"timezone"`
}

// FeatureConfig 功能开关配置
type FeatureConfig struct {
	SelfRegistration bool `mapstructure:"self_registration"`
	AbsenceMail      bool `mapstructure:"absence_mail"`
}

// Load 依次读取 .env、配置文件与 SCHOOL_ 前缀环境变量
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

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
	v.SetEnvPrefix("SCHOOL")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "school_desk")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Africa/Cairo")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.key_prefix", "school:")

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl_default", "24h")
	v.SetDefault("auth.refresh_token_ttl_remember_me", "168h")
	v.SetDefault("auth.login_rate_limit", 10)
	v.SetDefault("auth.cookie.secure", false)
	v.SetDefault("auth.cookie.same_site", "Lax")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("storage.public_base_url", "http://localhost:8080/uploads")
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	v.SetDefault("mail.from", "no-reply@school-desk.local")
	v.SetDefault("mail.from_name", "School Desk")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.outputs", []string{"stdout"})

	v.SetDefault("job.homework_sweep", "0 */30 * * * *")
	v.SetDefault("job.absence_digest", "0 0 18 * * *")
	v.SetDefault("job.timezone", "Africa/Cairo")

	v.SetDefault("feature.self_registration", true)
	v.SetDefault("feature.absence_mail", true)
}

// Validate 校验关键配置项，一次返回全部问题
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch {
	case c.Auth.JWTSecret == "":
		fail("auth.jwt_secret 不能为空")
	case len(c.Auth.JWTSecret) < 16:
		fail("auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTLDefault <= 0 || c.Auth.RefreshTokenTTLRemember <= 0 {
		fail("auth 的各项 token 有效期必须为正")
	} else if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTLDefault {
		fail("auth.access_token_ttl 必须小于 refresh_token_ttl_default")
	}
	switch strings.ToLower(c.Auth.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		fail("auth.cookie.same_site 仅支持 Lax、Strict、None")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("server.port 必须在 1-65535 之间")
	}

	switch c.Storage.Driver {
	case "local":
	case "oss":
		if c.Storage.Bucket == "" || c.Storage.Endpoint == "" {
			fail("storage.driver=oss 时 bucket 与 endpoint 不能为空")
		}
	default:
		fail("未知的 storage.driver %q", c.Storage.Driver)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		fail("log.format 仅支持 json、console")
	}
	if c.Job.Timezone != "" {
		if _, err := time.LoadLocation(c.Job.Timezone); err != nil {
			fail("job.timezone %q 无效: %v", c.Job.Timezone, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("配置校验失败: %w", errors.Join(errs...))
}
