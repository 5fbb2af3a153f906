// Package config file: internal/config/config.go
// 负责集中式配置加载 (viper: 配置文件 + CLICKFLOW_* 环境变量)
package config

import (
	"ClickFlow/internal/core/domain"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CLICKFLOW"

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	LogLevel        string        `mapstructure:"log_level"`
	PprofAddr       string        `mapstructure:"pprof_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// TrustedProxies 列出可信反向代理 (IP 或 CIDR)；为空时忽略 X-Forwarded-For
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type ClickHouseConfig struct {
	Default       domain.ConnectionDetails `mapstructure:"default"`
	DialTimeout   time.Duration            `mapstructure:"dial_timeout"`
	BatchSize     int                      `mapstructure:"batch_size"`
	SchemaCache   int                      `mapstructure:"schema_cache_entries"`
	SchemaTTL     time.Duration            `mapstructure:"schema_cache_ttl"`
	MaxOpenConns  int                      `mapstructure:"max_open_conns"`
	QueryTimeout  time.Duration            `mapstructure:"query_timeout"`
	PreviewLimit  int                      `mapstructure:"preview_limit"`
	PreviewMaxRow int                      `mapstructure:"preview_max_rows"`
}

type FlatFileConfig struct {
	BaseDir       string        `mapstructure:"base_dir"`
	Watch         bool          `mapstructure:"watch"`
	HeaderTTL     time.Duration `mapstructure:"header_cache_ttl"`
	DefaultOutput string        `mapstructure:"default_output"`
}

type StorageConfig struct {
	InstanceDir string `mapstructure:"instance_dir"`
}

type RateLimitConfig struct {
	GlobalRate  float64 `mapstructure:"global_rate"`
	GlobalBurst int     `mapstructure:"global_burst"`
	IPRate      float64 `mapstructure:"ip_rate"`
	IPBurst     int     `mapstructure:"ip_burst"`
}

// UserConfig 是一个可登录 API 的账户，密码以 bcrypt 哈希存放
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type AuthConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	MaxFailures     int           `mapstructure:"max_login_failures"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`
	Users           []UserConfig  `mapstructure:"users"`
}

type UIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

// ScheduleConfig 声明一个按 cron 周期执行的摄取
type ScheduleConfig struct {
	Name    string                  `mapstructure:"name"`
	Cron    string                  `mapstructure:"cron"`
	Request domain.IngestionRequest `mapstructure:"request"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	FlatFile   FlatFileConfig   `mapstructure:"flatfile"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Auth       AuthConfig       `mapstructure:"auth"`
	UI         UIConfig         `mapstructure:"ui"`
	Schedules  []ScheduleConfig `mapstructure:"schedules"`
}

// SetDefaults 写入全部默认值；默认连接与原有前端表单的初始值一致
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.pprof_addr", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("clickhouse.default.host", "localhost")
	v.SetDefault("clickhouse.default.port", 8123)
	v.SetDefault("clickhouse.default.database", "uk_price_paid")
	v.SetDefault("clickhouse.default.username", "default")
	v.SetDefault("clickhouse.default.password", "")
	v.SetDefault("clickhouse.default.jwt_token", "")
	v.SetDefault("clickhouse.dial_timeout", 5*time.Second)
	v.SetDefault("clickhouse.batch_size", 1000)
	v.SetDefault("clickhouse.schema_cache_entries", 256)
	v.SetDefault("clickhouse.schema_cache_ttl", 5*time.Minute)
	v.SetDefault("clickhouse.max_open_conns", 8)
	v.SetDefault("clickhouse.query_timeout", 0)
	v.SetDefault("clickhouse.preview_limit", 100)
	v.SetDefault("clickhouse.preview_max_rows", 5000)

	v.SetDefault("flatfile.base_dir", "data")
	v.SetDefault("flatfile.watch", true)
	v.SetDefault("flatfile.header_cache_ttl", 10*time.Minute)
	v.SetDefault("flatfile.default_output", "output.csv")

	v.SetDefault("storage.instance_dir", "instance")

	v.SetDefault("rate_limit.global_rate", 50)
	v.SetDefault("rate_limit.global_burst", 100)
	v.SetDefault("rate_limit.ip_rate", 10)
	v.SetDefault("rate_limit.ip_burst", 20)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.max_login_failures", 5)
	v.SetDefault("auth.lockout_duration", 15*time.Minute)

	v.SetDefault("ui.enabled", true)
	v.SetDefault("ui.api_base_url", "")
}

// Load 读取配置文件 (可为空，表示仅用默认值和环境变量) 并完成校验
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查跨字段约束
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 非法: %d", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port 非法: %d", c.Server.GRPCPort))
	}
	if c.ClickHouse.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("clickhouse.batch_size 必须大于 0"))
	}
	if c.ClickHouse.PreviewLimit <= 0 || c.ClickHouse.PreviewMaxRow < c.ClickHouse.PreviewLimit {
		errs = append(errs, fmt.Errorf("clickhouse.preview_limit 必须大于 0 且不超过 preview_max_rows"))
	}
	if c.FlatFile.BaseDir == "" {
		errs = append(errs, fmt.Errorf("flatfile.base_dir 不能为空"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.enabled 时必须设置 auth.jwt_secret"))
	}
	for i, s := range c.Schedules {
		if s.Cron == "" {
			errs = append(errs, fmt.Errorf("schedules[%d] 缺少 cron 表达式", i))
		}
		if _, ok := domain.ParseSourceKind(s.Request.Source); !ok {
			errs = append(errs, fmt.Errorf("schedules[%d] 的 source 非法: %q", i, s.Request.Source))
		}
	}
	return errors.Join(errs...)
}
