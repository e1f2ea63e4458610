// Package tenantid 把请求头或 Host 中的租户标识规整为唯一的规范形式。
//
// 规范形式：去空白、小写、去掉 scheme/userinfo/path/query、去掉末尾的点、
// 去掉默认端口 80/443，其余端口保留（acme.example.com:3000）。
// 所有需要租户标识的地方都只能使用 Normalize 的结果。
package tenantid

import (
	"net"
	"net/url"
	"strings"
	"sync"
)

// Local 本地/开发租户的保留标识，也是默认连接池的键
const Local = "local"

// Normalize 返回规范的租户标识；输入无法解析出主机时返回空串
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return ""
	}

	host, port := splitHostPort(s)
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return ""
	}
	if port == "80" || port == "443" {
		port = ""
	}
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}

// splitHostPort 与 net.SplitHostPort 不同，缺少端口不算错误
func splitHostPort(s string) (host, port string) {
	if h, p, err := net.SplitHostPort(s); err == nil {
		if !isPort(p) {
			return h, ""
		}
		return h, p
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	// 裸 IPv6 字面量
	if strings.Count(s, ":") > 1 {
		return s, ""
	}
	return strings.TrimSuffix(s, ":"), ""
}

func isPort(p string) bool {
	if p == "" || len(p) > 5 {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Host 返回规范标识中的主机部分（不含端口和方括号）
func Host(id string) string {
	if h, _, err := net.SplitHostPort(id); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(id, "["), "]")
}

// URL 规范标识对应的租户 URL，凭证服务以此作为查询键
func URL(id string) string {
	if id == "" {
		return ""
	}
	u := url.URL{Scheme: "https", Host: id}
	return u.String()
}

// IsLocal localhost、*.localhost 与任意回环地址（任意端口）都是本地/开发租户
func IsLocal(id string) bool {
	if id == Local {
		return true
	}
	host := Host(id)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Aliases 主机别名表：多个主机名指向同一租户。并发安全。
type Aliases struct {
	m sync.Map
}

// NewAliases 由配置加载别名，键和值都会先规整
func NewAliases(mappings map[string]string) *Aliases {
	a := &Aliases{}
	for alias, canonical := range mappings {
		a.Set(alias, canonical)
	}
	return a
}

// Set 添加或更新别名
func (a *Aliases) Set(alias, canonical string) {
	alias, canonical = Normalize(alias), Normalize(canonical)
	if alias == "" || canonical == "" {
		return
	}
	a.m.Store(alias, canonical)
}

// Resolve 对已规整的标识应用别名，没有别名时原样返回
func (a *Aliases) Resolve(id string) string {
	if a == nil {
		return id
	}
	if v, ok := a.m.Load(id); ok {
		return v.(string)
	}
	return id
}
