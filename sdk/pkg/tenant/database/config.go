package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	toolsConfig "github.com/ChenBigdata421/jxt-tenantdb/sdk/config"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	// DefaultValidationQuery 新建连接池后执行一次，失败则丢弃该池
	DefaultValidationQuery = "SELECT 1"
)

// PoolOptions 租户连接池参数，所有租户共用
type PoolOptions struct {
	Driver          string
	SSLMode         string
	PoolSize        int           // 常驻（空闲）连接上限
	MaxOverflow     int           // 超出常驻的连接数
	PoolTimeout     time.Duration // 取连接与校验查询的超时
	PoolRecycle     time.Duration // 连接最长生命周期与最长空闲时间
	PrePing         bool
	GormLogLevel    int
	ValidationQuery string
}

// DefaultPoolOptions 15 常驻 + 25 溢出，60s 超时，600s 回收
func DefaultPoolOptions() PoolOptions {
	return PoolOptionsFrom(toolsConfig.PoolConfig{})
}

// PoolOptionsFrom 由配置生成，未配置的项取默认值
func PoolOptionsFrom(cfg toolsConfig.PoolConfig) PoolOptions {
	return PoolOptions{
		Driver:          cfg.GetDriver(),
		SSLMode:         cfg.GetSSLMode(),
		PoolSize:        cfg.GetPoolSize(),
		MaxOverflow:     cfg.GetMaxOverflow(),
		PoolTimeout:     cfg.GetPoolTimeout(),
		PoolRecycle:     cfg.GetPoolRecycle(),
		PrePing:         cfg.GetPrePing(),
		GormLogLevel:    cfg.GetGormLoggerLevel(),
		ValidationQuery: DefaultValidationQuery,
	}
}

// MaxOpen 连接总数上限
func (o PoolOptions) MaxOpen() int {
	return o.PoolSize + o.MaxOverflow
}

// BuildDSN 生成驱动所需的 DSN，用户名和密码会被转义
func BuildDSN(driver, sslMode string, creds provider.CredentialSet) (string, error) {
	addr := net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))
	switch driver {
	case DriverPostgres, "":
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(creds.User, creds.Password),
			Host:     addr,
			Path:     "/" + creds.Database,
			RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
		}
		return u.String(), nil
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = creds.User
		cfg.Passwd = creds.Password
		cfg.Net = "tcp"
		cfg.Addr = addr
		cfg.DBName = creds.Database
		cfg.ParseTime = true
		cfg.Loc = time.Local
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}
