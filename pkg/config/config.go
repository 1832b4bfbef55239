package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultSecretKey    = "dev-secret-key-change-in-production"
	DefaultPistonURL    = "https://emkc.org/api/v2/piston"
	DefaultHackatimeURL = "https://hackatime.hackclub.com/api/hackatime/v1"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string
	AppURL      string

	// 数据库配置
	UseLocalDB      bool
	DatabaseURL     string
	DBPoolSize      int
	DBMaxOverflow   int
	DBPoolTimeout   time.Duration
	DBPoolRecycle   time.Duration
	DBLivenessCache time.Duration

	// 会话配置
	SecretKey     string
	SessionMaxAge time.Duration

	// 外部服务
	PistonURL    string
	HackatimeURL string
	OpenAIKey    string
	GroqKey      string

	// 限流共享存储，留空时使用进程内存
	RedisAddr     string
	RedisPassword string

	// CORS配置
	AllowedOrigins []string

	// 可信反向代理（CIDR 或单个 IP），只有来自这些地址的转发头才会被采信
	TrustedProxies []string

	// 日志与调试
	LogLevel string
	Debug    bool
}

// LoadConfig 加载配置：.env 文件 + 环境变量，环境变量优先
func LoadConfig() *Config {
	v := viper.New()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	envFile := ".env.local"
	if env == "production" {
		envFile = ".env.production"
	}
	for _, file := range []string{envFile, ".env"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		v.SetConfigFile(file)
		v.SetConfigType("env")
		// 文件格式错误时忽略，环境变量仍然生效
		_ = v.MergeInConfig()
	}
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "3000")
	v.SetDefault("APP_URL", "http://localhost:3000")
	v.SetDefault("USE_LOCAL_DB", false)
	v.SetDefault("DB_POOL_SIZE", 20)
	v.SetDefault("DB_MAX_OVERFLOW", 10)
	v.SetDefault("DB_POOL_TIMEOUT", "30s")
	v.SetDefault("DB_POOL_RECYCLE", "30m")
	v.SetDefault("DB_LIVENESS_CACHE", "5s")
	v.SetDefault("SECRET_KEY", defaultSecretKey)
	v.SetDefault("SESSION_MAX_AGE", "168h")
	v.SetDefault("PISTON_API_URL", DefaultPistonURL)
	v.SetDefault("HACKATIME_API_URL", DefaultHackatimeURL)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEBUG", false)

	config := &Config{
		Environment:     v.GetString("ENVIRONMENT"),
		Port:            v.GetString("PORT"),
		AppURL:          strings.TrimRight(strings.TrimSpace(v.GetString("APP_URL")), "/"),
		UseLocalDB:      v.GetBool("USE_LOCAL_DB"),
		DatabaseURL:     NormalizeDatabaseURL(v.GetString("DATABASE_URL")),
		DBPoolSize:      v.GetInt("DB_POOL_SIZE"),
		DBMaxOverflow:   v.GetInt("DB_MAX_OVERFLOW"),
		DBPoolTimeout:   v.GetDuration("DB_POOL_TIMEOUT"),
		DBPoolRecycle:   v.GetDuration("DB_POOL_RECYCLE"),
		DBLivenessCache: v.GetDuration("DB_LIVENESS_CACHE"),
		SecretKey:       strings.TrimSpace(v.GetString("SECRET_KEY")),
		SessionMaxAge:   v.GetDuration("SESSION_MAX_AGE"),
		PistonURL:       strings.TrimRight(strings.TrimSpace(v.GetString("PISTON_API_URL")), "/"),
		HackatimeURL:    strings.TrimRight(strings.TrimSpace(v.GetString("HACKATIME_API_URL")), "/"),
		OpenAIKey:       strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		GroqKey:         strings.TrimSpace(v.GetString("GROQ_API_KEY")),
		RedisAddr:       strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		Debug:           v.GetBool("DEBUG"),
	}

	// CORS配置
	allowedOrigins := strings.TrimSpace(v.GetString("ALLOWED_ORIGINS"))
	if allowedOrigins == "*" || allowedOrigins == "" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = splitList(allowedOrigins)
	}

	config.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))

	// 生产环境关闭调试
	if config.IsProduction() {
		config.Debug = false
	}

	return config
}

// splitList 拆分逗号分隔的列表，忽略空项
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// NormalizeDatabaseURL 去除空白，并将 postgres:// 统一为 postgresql://
func NormalizeDatabaseURL(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") {
		dsn = "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
	}
	return dsn
}

// Cached config (initialized once per process)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// MaxOpenConns 连接池上限 = 常驻连接 + 溢出连接
func (c *Config) MaxOpenConns() int {
	return c.DBPoolSize + c.DBMaxOverflow
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.SecretKey == "" || c.SecretKey == defaultSecretKey {
		if c.IsProduction() {
			return fmt.Errorf("SECRET_KEY must be set in production")
		}
	}

	if !c.UseLocalDB && c.DatabaseURL == "" {
		return fmt.Errorf("数据库配置不完整：请配置 DATABASE_URL 或启用 USE_LOCAL_DB")
	}
	if c.UseLocalDB && c.IsProduction() {
		return fmt.Errorf("USE_LOCAL_DB is not allowed in production")
	}

	if c.PistonURL == "" {
		return fmt.Errorf("PISTON_API_URL is required")
	}
	if c.DBPoolSize <= 0 {
		return fmt.Errorf("DB_POOL_SIZE must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if _, err := ParseProxy(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", proxy, err)
		}
	}

	return nil
}

// ParseProxy 解析 CIDR；单个 IP 视为 /32 或 /128
func ParseProxy(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, network, err := net.ParseCIDR(entry)
		return network, err
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("not an IP address or CIDR")
	}
	bits := 128
	if ip4 := ip.To4(); ip4 != nil {
		ip, bits = ip4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// UsesDefaultSecret 是否仍在使用开发默认密钥
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretKey == defaultSecretKey
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
