package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCredentialFetchFailed 网络或 HTTP 层面的失败：非200、响应无法解析、success=false、超时
	ErrCredentialFetchFailed = errors.New("credential fetch failed")

	// ErrCredentialIncomplete 凭证服务返回的变量不足以组成 CredentialSet
	ErrCredentialIncomplete = errors.New("credential bundle incomplete")
)

// IncompleteError 列出缺失（或仍是密文、格式错误）的变量名
type IncompleteError struct {
	TenantURL string
	Missing   []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s for %s: missing %s", ErrCredentialIncomplete, e.TenantURL, strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Unwrap() error {
	return ErrCredentialIncomplete
}
