package middleware

import (
	"errors"
	"net/http"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/tenantid"
)

// ErrTenantIdentificationAmbiguous 请求头和 Host 都无法给出租户标识
var ErrTenantIdentificationAmbiguous = errors.New("tenant identification ambiguous")

// DefaultOverrideHeaders 显式指定租户的请求头，按顺序检查
var DefaultOverrideHeaders = []string{"X-Tenant-Domain", "X-Tenant-Host"}

// ExtractTenantID 依次检查 headers（nil 时用 DefaultOverrideHeaders），都没有时回退到 Host。
// 返回规范化后的租户标识；非默认端口保留。无法规范化的请求头值会被跳过。
func ExtractTenantID(r *http.Request, headers []string) (string, error) {
	if headers == nil {
		headers = DefaultOverrideHeaders
	}
	for _, h := range headers {
		if id := tenantid.Normalize(r.Header.Get(h)); id != "" {
			return id, nil
		}
	}

	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	if id := tenantid.Normalize(host); id != "" {
		return id, nil
	}
	return "", ErrTenantIdentificationAmbiguous
}
