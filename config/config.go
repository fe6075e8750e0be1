package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 存储驱动
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config 应用配置
type Config struct {
	Port    int    `mapstructure:"port"`
	Debug   bool   `mapstructure:"debug"`
	JSONLog bool   `mapstructure:"json"`
	JWTKey  string `mapstructure:"jwt-key"`

	Storage StorageConfig `mapstructure:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Masking MaskingConfig `mapstructure:"masking"`
	Remarks RemarksConfig `mapstructure:"remarks"`
	Digest  DigestConfig  `mapstructure:"digest"`

	AllowOrigins []string `mapstructure:"allow-origins"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig 跟进记录写入和读取缓存
type LedgerConfig struct {
	MaxAppendAttempts int           `mapstructure:"max-append-attempts"`
	ReadCacheTTL      time.Duration `mapstructure:"read-cache-ttl"`
}

type MaskingConfig struct {
	RecencyDays int `mapstructure:"recency-days"`
}

// RemarksConfig 备注规则文件，为空时使用内置规则
type RemarksConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// DigestConfig 每日待跟进提醒
type DigestConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	At      string `mapstructure:"at"`
}

// SetDefaults 注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("debug", false)
	v.SetDefault("json", false)
	v.SetDefault("jwt-key", "your-secret-key") // 实际环境应替换为安全密钥
	v.SetDefault("storage.driver", DriverMongo)
	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017/crm")
	v.SetDefault("mongo.database", "crm")
	v.SetDefault("sqlite.path", "crm_engagement.db")
	v.SetDefault("ledger.max-append-attempts", 5)
	v.SetDefault("ledger.read-cache-ttl", 5*time.Second)
	v.SetDefault("masking.recency-days", 100)
	v.SetDefault("remarks.file", "")
	v.SetDefault("remarks.watch", true)
	v.SetDefault("digest.enabled", true)
	v.SetDefault("digest.at", "08:30")
	v.SetDefault("allow-origins", []string{"http://localhost:3001", "http://localhost:5173"})
}

// BindEnv 环境变量使用 CRM_ 前缀，例如 CRM_STORAGE_DRIVER、CRM_LEDGER_READ_CACHE_TTL
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("crm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadConfig 从 viper 解析配置
func LoadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMongo, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Storage.Driver)
	}
	if c.Port <= 0 {
		return fmt.Errorf("端口无效: %d", c.Port)
	}
	if c.Ledger.MaxAppendAttempts <= 0 {
		return fmt.Errorf("ledger.max-append-attempts 必须大于0")
	}
	if c.Masking.RecencyDays <= 0 {
		return fmt.Errorf("masking.recency-days 必须大于0")
	}
	if _, _, err := c.Digest.Clock(); err != nil {
		return err
	}
	return nil
}

// Clock 解析 HH:MM
func (d DigestConfig) Clock() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(d.At))
	if err != nil {
		return 0, 0, fmt.Errorf("digest.at 格式应为 HH:MM: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}
