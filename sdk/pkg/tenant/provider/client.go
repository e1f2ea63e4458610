package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/crypto"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/json"
)

const (
	// DefaultTimeout 单次请求凭证服务的超时
	DefaultTimeout = 10 * time.Second

	environmentPath  = "/api/external/environment/"
	maxResponseBytes = 1 << 20
)

// Decrypter 解密凭证服务下发的密文
type Decrypter interface {
	Decrypt(payload string) (string, error)
}

// Client 外部凭证服务客户端。只发一次请求，失败不重试。
type Client struct {
	baseURL    string
	codec      Decrypter
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures Client
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client（测试或自定义 Transport）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient codec 为 nil 时不解密，密文字段在 ExtractCredentials 中视为缺失
func NewClient(baseURL string, codec Decrypter, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		codec:   codec,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	c.logger = c.logger.Named("tenant.provider")
	return c
}

// BaseURL 凭证服务地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch 拉取租户的环境变量，并解密所有形如密文的值。
// 单个字段解密失败只记录告警，值保持原样。
func (c *Client) Fetch(ctx context.Context, tenantURL string) (*Bundle, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: credential service url not configured", ErrCredentialFetchFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + environmentPath + escapeSegment(tenantURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrCredentialFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("credential service request failed",
			zap.String("tenantUrl", tenantURL), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCredentialFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrCredentialFetchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("credential service returned non-200",
			zap.String("tenantUrl", tenantURL), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCredentialFetchFailed, resp.StatusCode)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrCredentialFetchFailed, maxResponseBytes)
	}

	var payload environmentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrCredentialFetchFailed, err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("%w: service reported failure: %s", ErrCredentialFetchFailed, payload.Message)
	}

	vars := payload.Data.EnvironmentVariables
	for i := range vars {
		if !crypto.LooksEncrypted(vars[i].Value) {
			continue
		}
		if c.codec == nil {
			c.logger.Warn("encrypted environment variable but no encryption key configured",
				zap.String("tenantUrl", tenantURL), zap.String("env", vars[i].Name))
			continue
		}
		plain, err := c.codec.Decrypt(vars[i].Value)
		if err != nil {
			c.logger.Warn("decrypt environment variable failed",
				zap.String("tenantUrl", tenantURL), zap.String("env", vars[i].Name), zap.Error(err))
			continue
		}
		vars[i].Value = plain
	}

	c.logger.Debug("credential service fetched",
		zap.String("tenantUrl", tenantURL), zap.Int("variables", len(vars)), zap.Duration("elapsed", time.Since(start)))
	return NewBundle(tenantURL, vars), nil
}

// ExtractCredentials 从 Bundle 组装 CredentialSet。
// 缺失、为空、端口非法或仍是密文的变量都计为缺失，返回 *IncompleteError。
func ExtractCredentials(b *Bundle) (*CredentialSet, error) {
	var missing []string
	get := func(name string) string {
		v, ok := b.Lookup(name)
		if !ok || strings.TrimSpace(v) == "" || crypto.LooksEncrypted(strings.TrimSpace(v)) {
			missing = append(missing, name)
			return ""
		}
		return v
	}

	creds := &CredentialSet{
		Host:     strings.TrimSpace(get(EnvHost)),
		Database: strings.TrimSpace(get(EnvDatabase)),
		User:     strings.TrimSpace(get(EnvUser)),
		Password: get(EnvPassword),
	}
	if raw := get(EnvPort); raw != "" {
		port, err := cast.ToIntE(strings.TrimSpace(raw))
		if err != nil || port < 1 || port > 65535 {
			missing = append(missing, EnvPort)
		} else {
			creds.Port = port
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		tenantURL := ""
		if b != nil {
			tenantURL = b.TenantURL
		}
		return nil, &IncompleteError{TenantURL: tenantURL, Missing: missing}
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialIncomplete, err)
	}
	return creds, nil
}

// escapeSegment 把租户地址整体编码为一个路径段：除 RFC 3986 非保留字符外全部转义（包括 : 和 /）
func escapeSegment(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9',
			ch == '-', ch == '.', ch == '_', ch == '~':
			b.WriteByte(ch)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[ch>>4])
			b.WriteByte(hex[ch&0x0f])
		}
	}
	return b.String()
}
