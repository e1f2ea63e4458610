package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 顶层配置结构
type Config struct {
	Application *Application `mapstructure:"application"`
	HTTP        *HTTPConfig  `mapstructure:"http" json:"http"`
	Logger      *Logger      `mapstructure:"logger"`
	Database    *Database    `mapstructure:"database"`
	Cache       *Cache       `mapstructure:"cache"`
	Locker      *Locker      `mapstructure:"locker"`
	Tenants     *Tenants     `mapstructure:"tenants"`
}

var AppConfig = &Config{
	Application: ApplicationConfig,
	Logger:      LoggerConfig,
	HTTP:        HttpConfig,
	Database:    DatabaseConfig,
	Cache:       CacheConfig,
	Locker:      LockerConfig,
	Tenants:     TenantsConfig,
}

// envBindings 进程环境变量到配置键的映射，环境变量优先于配置文件。
// 本地/开发租户的数据库参数沿用容器里常见的 POSTGRES_* 变量名。
var envBindings = map[string]string{
	"database.local.host":                    "POSTGRES_HOST",
	"database.local.port":                    "POSTGRES_PORT",
	"database.local.name":                    "POSTGRES_DB",
	"database.local.user":                    "POSTGRES_USER",
	"database.local.password":                "POSTGRES_PASSWORD",
	"tenants.credentialService.baseUrl":      "CREDENTIAL_SERVICE_URL",
	"tenants.credentialService.encryptionKey": "ENCRYPTION_KEY",
	"cache.redis.url":                        "REDIS_URL",
}

// Setup 读取配置文件并映射到 AppConfig
func Setup(configYml string) error {
	v := viper.New()
	v.SetConfigFile(configYml)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	return SetupWithViper(v, AppConfig)
}

// SetupWithViper 绑定环境变量后把 viper 中的配置解析到 cfg
func SetupWithViper(v *viper.Viper, cfg *Config) error {
	v.SetEnvPrefix("JXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// New 返回一份字段全部初始化的空配置，测试和嵌入方使用，避免共享 AppConfig
func New() *Config {
	return &Config{
		Application: new(Application),
		Logger:      new(Logger),
		HTTP:        new(HTTPConfig),
		Database:    new(Database),
		Cache:       new(Cache),
		Locker:      new(Locker),
		Tenants:     new(Tenants),
	}
}
