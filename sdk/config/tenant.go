package config

import "time"

var TenantsConfig = new(Tenants)

type Tenants struct {
	Enabled bool `mapstructure:"enabled"` //是否启用多租户，关闭时所有请求都走本地/开发数据库

	// 显式指定租户的请求头，按顺序检查，都没有时回退到 Host
	OverrideHeaders []string `mapstructure:"overrideHeaders"`
	// 不自动绑定租户会话的路径前缀（租户管理/诊断接口自己处理隔离）
	ExemptPrefixes []string `mapstructure:"exemptPrefixes"`
	// 额外视为本地/开发租户的主机名（localhost 和回环地址总是本地）
	LocalHosts []string `mapstructure:"localHosts"`
	// 域名别名：多个主机名指向同一租户。用列表而不是映射，主机名里的点会被 viper 当作键分隔符
	Aliases []TenantAlias `mapstructure:"aliases"`

	CredentialService CredentialService `mapstructure:"credentialService"`
}

// TenantAlias 别名主机 -> 规范租户标识
type TenantAlias struct {
	Host   string `mapstructure:"host"`
	Tenant string `mapstructure:"tenant"`
}

// CredentialService 外部凭证服务
type CredentialService struct {
	BaseURL       string `mapstructure:"baseUrl"`
	Timeout       int    `mapstructure:"timeout"`       // 请求超时(秒)，默认10
	EncryptionKey string `mapstructure:"encryptionKey"` // 解密环境变量值的密钥
}

func (t Tenants) GetOverrideHeaders() []string {
	if len(t.OverrideHeaders) == 0 {
		return []string{"X-Tenant-Domain", "X-Tenant-Host"}
	}
	return t.OverrideHeaders
}

func (t Tenants) GetExemptPrefixes() []string {
	if t.ExemptPrefixes == nil {
		return []string{"/api/v1/tenant/", "/api/v1/tenants/"}
	}
	return t.ExemptPrefixes
}

// AliasMap 别名表，后出现的同名主机覆盖先出现的
func (t Tenants) AliasMap() map[string]string {
	m := make(map[string]string, len(t.Aliases))
	for _, a := range t.Aliases {
		if a.Host != "" && a.Tenant != "" {
			m[a.Host] = a.Tenant
		}
	}
	return m
}

func (c CredentialService) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// 配置举例
/*
tenants:
  enabled: true
  overrideHeaders: ["X-Tenant-Domain", "X-Tenant-Host"]
  exemptPrefixes: ["/api/v1/tenant/"]
  aliases:
    - host: www.acme.example.com
      tenant: acme.example.com
  credentialService:
    baseUrl: "https://env.internal.example.com"
    timeout: 10
    encryptionKey: "" # 建议用 ENCRYPTION_KEY 环境变量

database:
  local:            # 也可用 POSTGRES_HOST/PORT/DB/USER/PASSWORD
    host: 127.0.0.1
    port: 5432
    name: recruit
    user: recruit
    password: recruit
  pool:
    poolSize: 15
    maxOverflow: 25
    poolTimeout: 60
    poolRecycle: 600
    prePing: true

cache:
  ttl: 3600
  redis:
    addr: 127.0.0.1:6379
*/
