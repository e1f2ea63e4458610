package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// 凭证服务必须下发的环境变量
const (
	EnvHost     = "POSTGRES_HOST"
	EnvPort     = "POSTGRES_PORT"
	EnvDatabase = "POSTGRES_DB"
	EnvUser     = "POSTGRES_USER"
	EnvPassword = "POSTGRES_PASSWORD"
)

// RequiredEnvNames 组成一份 CredentialSet 所需的全部环境变量
var RequiredEnvNames = []string{EnvHost, EnvPort, EnvDatabase, EnvUser, EnvPassword}

const redacted = "******"

// CredentialSet 打开一个租户数据库所需的全部参数。只保存在内存和共享缓存中，不落盘。
type CredentialSet struct {
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"min=1,max=65535"`
	Database string `json:"database" validate:"required"`
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate 校验所有字段都已就绪
func (c CredentialSet) Validate() error {
	return getValidator().Struct(c)
}

// Redacted 返回隐去密码的副本，用于日志和接口输出
func (c CredentialSet) Redacted() CredentialSet {
	if c.Password != "" {
		c.Password = redacted
	}
	return c
}

func (c CredentialSet) String() string {
	return fmt.Sprintf("%s@%s:%d/%s (password %s)", c.User, c.Host, c.Port, c.Database, redacted)
}

func (c CredentialSet) GoString() string {
	return "provider.CredentialSet{" + c.String() + "}"
}

// EnvironmentVariable 凭证服务返回的单个环境变量
type EnvironmentVariable struct {
	Name  string `json:"env_name"`
	Value string `json:"env_value"`
}

// environmentResponse GET /api/external/environment/{url} 的响应体
type environmentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		EnvironmentVariables []EnvironmentVariable `json:"environment_variables"`
	} `json:"data"`
}

// Bundle 一个租户的环境变量集合（密文已尽量解密）
type Bundle struct {
	TenantURL string
	values    map[string]string
}

// NewBundle 同名变量以最后一次出现为准
func NewBundle(tenantURL string, vars []EnvironmentVariable) *Bundle {
	b := &Bundle{TenantURL: tenantURL, values: make(map[string]string, len(vars))}
	for _, v := range vars {
		if v.Name == "" {
			continue
		}
		b.values[v.Name] = v.Value
	}
	return b
}

// Lookup 按变量名取值
func (b *Bundle) Lookup(name string) (string, bool) {
	if b == nil {
		return "", false
	}
	v, ok := b.values[name]
	return v, ok
}

// Names 所有变量名（排序后）
func (b *Bundle) Names() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len 变量个数
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.values)
}
