package config

import "time"

// Database 数据库配置
// Local 为本地/开发租户的静态连接参数；Pool 为所有租户连接池共享的池参数
type Database struct {
	Local LocalDatabase `mapstructure:"local"`
	Pool  PoolConfig    `mapstructure:"pool"`
}

// LocalDatabase 本地/开发租户数据库，可被 POSTGRES_* 环境变量覆盖
type LocalDatabase struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Missing 返回未配置的必填项（按环境变量名），全部配置时返回空
func (l LocalDatabase) Missing() []string {
	var missing []string
	if l.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if l.Port <= 0 {
		missing = append(missing, "POSTGRES_PORT")
	}
	if l.Name == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if l.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if l.Password == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	return missing
}

// PoolConfig 租户连接池参数
type PoolConfig struct {
	Driver          string `mapstructure:"driver"`          // postgres（默认）或 mysql
	SSLMode         string `mapstructure:"sslMode"`         // postgres sslmode，默认 disable
	PoolSize        int    `mapstructure:"poolSize"`        // 常驻连接数，默认15
	MaxOverflow     int    `mapstructure:"maxOverflow"`     // 允许超出常驻的连接数，默认25
	PoolTimeout     int    `mapstructure:"poolTimeout"`     // 获取连接超时(秒)，默认60
	PoolRecycle     int    `mapstructure:"poolRecycle"`     // 连接回收周期(秒)，默认600
	PrePing         *bool  `mapstructure:"prePing"`         // 使用前存活检测，默认开启
	GormLoggerLevel int    `mapstructure:"gormLoggerLevel"` // 1 Silent 2 Error 3 Warn 4 Info，默认 Warn
	StatsCron       string `mapstructure:"statsCron"`       // 连接池指标上报周期，默认 @every 30s
}

var DatabaseConfig = new(Database)

func (p PoolConfig) GetDriver() string {
	if p.Driver == "" {
		return "postgres"
	}
	return p.Driver
}

func (p PoolConfig) GetSSLMode() string {
	if p.SSLMode == "" {
		return "disable"
	}
	return p.SSLMode
}

func (p PoolConfig) GetPoolSize() int {
	if p.PoolSize <= 0 {
		return 15
	}
	return p.PoolSize
}

func (p PoolConfig) GetMaxOverflow() int {
	if p.MaxOverflow < 0 {
		return 0
	}
	if p.MaxOverflow == 0 {
		return 25
	}
	return p.MaxOverflow
}

func (p PoolConfig) GetPoolTimeout() time.Duration {
	if p.PoolTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.PoolTimeout) * time.Second
}

func (p PoolConfig) GetPoolRecycle() time.Duration {
	if p.PoolRecycle <= 0 {
		return 600 * time.Second
	}
	return time.Duration(p.PoolRecycle) * time.Second
}

func (p PoolConfig) GetPrePing() bool {
	return p.PrePing == nil || *p.PrePing
}

func (p PoolConfig) GetGormLoggerLevel() int {
	if p.GormLoggerLevel <= 0 {
		return 3
	}
	return p.GormLoggerLevel
}

func (p PoolConfig) GetStatsCron() string {
	if p.StatsCron == "" {
		return "@every 30s"
	}
	return p.StatsCron
}
