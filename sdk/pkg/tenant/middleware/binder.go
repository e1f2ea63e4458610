package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/response"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/database"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/metrics"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/tenantid"
)

// ErrSessionBindingFailed 请求无法绑定租户会话，原因见被包装的错误
var ErrSessionBindingFailed = errors.New("session binding failed")

// UnavailableMessage 绑定失败时返回给调用方的提示
const UnavailableMessage = "tenant database unavailable"

// DefaultExemptPrefixes 租户解析/诊断接口自己管理隔离，不自动绑定
var DefaultExemptPrefixes = []string{"/api/v1/tenant/", "/api/v1/tenants/"}

// CredentialResolver 解析租户凭证
type CredentialResolver interface {
	ResolveErr(ctx context.Context, tenantID, tenantURL string) (*provider.CredentialSet, error)
}

// PoolRegistry 租户连接池
type PoolRegistry interface {
	GetOrCreate(ctx context.Context, tenantID string, creds *provider.CredentialSet) (*database.PoolEntry, error)
}

// State 单个请求的绑定状态
type State int

const (
	StateUnbound State = iota
	StateResolving
	StateBound
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateResolving:
		return "resolving"
	case StateBound:
		return "bound"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// binding 一个请求上的绑定，Unbind 只生效一次
type binding struct {
	mu       sync.Mutex
	tenantID string
	poolKey  string
	session  *database.Session
	state    State
}

func (b *binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Binder 每个请求开始时绑定租户会话，结束时释放
type Binder struct {
	resolver    CredentialResolver
	registry    PoolRegistry
	headers     []string
	exempt      []string
	aliases     *tenantid.Aliases
	localHosts  map[string]struct{}
	multiTenant bool
	log         *zap.Logger
	metrics     metrics.Collector
}

// BinderOption configures Binder
type BinderOption func(*Binder)

// WithOverrideHeaders 显式指定租户的请求头（按优先级）
func WithOverrideHeaders(headers ...string) BinderOption {
	return func(b *Binder) {
		if len(headers) > 0 {
			b.headers = headers
		}
	}
}

// WithExemptPrefixes 不自动绑定的路径前缀，传空切片表示全部绑定
func WithExemptPrefixes(prefixes []string) BinderOption {
	return func(b *Binder) {
		if prefixes != nil {
			b.exempt = prefixes
		}
	}
}

// WithAliases 主机别名
func WithAliases(aliases *tenantid.Aliases) BinderOption {
	return func(b *Binder) {
		b.aliases = aliases
	}
}

// WithLocalHosts 额外视为本地/开发租户的主机
func WithLocalHosts(hosts ...string) BinderOption {
	return func(b *Binder) {
		for _, h := range hosts {
			if id := tenantid.Normalize(h); id != "" {
				if b.localHosts == nil {
					b.localHosts = make(map[string]struct{})
				}
				b.localHosts[id] = struct{}{}
			}
		}
	}
}

// WithMultiTenant 关闭时所有请求都绑定本地/开发数据库
func WithMultiTenant(enabled bool) BinderOption {
	return func(b *Binder) {
		b.multiTenant = enabled
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) BinderOption {
	return func(b *Binder) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.Collector) BinderOption {
	return func(b *Binder) {
		b.metrics = metrics.OrNoOp(m)
	}
}

// NewBinder 创建绑定器
func NewBinder(resolver CredentialResolver, registry PoolRegistry, opts ...BinderOption) *Binder {
	b := &Binder{
		resolver:    resolver,
		registry:    registry,
		headers:     DefaultOverrideHeaders,
		exempt:      DefaultExemptPrefixes,
		multiTenant: true,
		log:         zap.NewNop(),
		metrics:     metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("tenant.binder")
	return b
}

// TenantID 请求的规范租户标识（已应用别名）
func (b *Binder) TenantID(r *http.Request) (string, error) {
	id, err := ExtractTenantID(r, b.headers)
	if err != nil {
		return "", err
	}
	return b.aliases.Resolve(id), nil
}

// HasOverride 请求是否带有显式指定租户的请求头
func (b *Binder) HasOverride(r *http.Request) bool {
	for _, h := range b.headers {
		if r.Header.Get(h) != "" {
			return true
		}
	}
	return false
}

// Canonical 规整任意形式的租户地址（URL、主机或主机:端口）并应用别名
func (b *Binder) Canonical(raw string) (string, error) {
	id := tenantid.Normalize(raw)
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrTenantIdentificationAmbiguous, raw)
	}
	return b.aliases.Resolve(id), nil
}

// PoolKey 租户对应的连接池键：本地/开发租户共用 tenantid.Local
func (b *Binder) PoolKey(tenantID string) string {
	if !b.multiTenant || tenantid.IsLocal(tenantID) {
		return tenantid.Local
	}
	if _, ok := b.localHosts[tenantID]; ok {
		return tenantid.Local
	}
	return tenantID
}

// IsExempt 路径是否跳过自动绑定
func (b *Binder) IsExempt(path string) bool {
	for _, prefix := range b.exempt {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Bind 为请求绑定租户会话。同一请求已绑定同一租户时直接成功。
// 任一步失败都不会留下会话，返回的错误包装 ErrSessionBindingFailed。
func (b *Binder) Bind(c *gin.Context) (err error) {
	defer func() {
		b.metrics.RecordSessionBind(err == nil)
	}()

	tenantID, err := b.TenantID(c.Request)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionBindingFailed, err)
	}
	poolKey := b.PoolKey(tenantID)

	if existing := bindingFrom(c); existing != nil {
		existing.mu.Lock()
		state, boundKey := existing.state, existing.poolKey
		existing.mu.Unlock()
		if state == StateBound {
			if boundKey == poolKey {
				return nil
			}
			return fmt.Errorf("%w: request already bound to %s", ErrSessionBindingFailed, boundKey)
		}
	}

	bd := &binding{tenantID: tenantID, poolKey: poolKey, state: StateResolving}
	ctx := c.Request.Context()

	creds, err := b.resolver.ResolveErr(ctx, poolKey, tenantid.URL(tenantID))
	if err != nil {
		return b.fail(bd, err)
	}
	entry, err := b.registry.GetOrCreate(ctx, poolKey, creds)
	if err != nil {
		return b.fail(bd, err)
	}
	session, err := entry.NewSession(ctx)
	if err != nil {
		return b.fail(bd, err)
	}

	bd.mu.Lock()
	bd.session = session
	bd.state = StateBound
	bd.mu.Unlock()

	c.Set(bindingKey, bd)
	c.Set(SessionKey, session)
	c.Set(TenantIDKey, tenantID)
	c.Request = c.Request.WithContext(WithSession(ctx, tenantID, session))
	return nil
}

func (b *Binder) fail(bd *binding, cause error) error {
	bd.mu.Lock()
	bd.state = StateUnbound
	bd.mu.Unlock()
	b.log.Warn("bind tenant session failed",
		zap.String("tenant", bd.tenantID), zap.String("pool", bd.poolKey), zap.Error(cause))
	return fmt.Errorf("%w: %s: %w", ErrSessionBindingFailed, bd.tenantID, cause)
}

// Unbind 关闭并清除请求上的会话；可重复调用，只有第一次生效
func (b *Binder) Unbind(c *gin.Context) {
	bd := bindingFrom(c)
	if bd == nil {
		return
	}
	bd.mu.Lock()
	if bd.state != StateBound {
		bd.mu.Unlock()
		return
	}
	bd.state = StateReleased
	session := bd.session
	bd.mu.Unlock()

	if err := session.Close(); err != nil {
		b.log.Warn("close tenant session failed", zap.String("tenant", bd.tenantID), zap.Error(err))
	}
	c.Set(SessionKey, (*database.Session)(nil))
	if c.Request != nil {
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), bd.tenantID, nil))
	}
}

// Handler gin 中间件：绑定失败返回 503，绑定成功后无论业务是否出错（包括 panic）都会释放会话
func (b *Binder) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if b.IsExempt(c.Request.URL.Path) {
			c.Next()
			return
		}
		if err := b.Bind(c); err != nil {
			response.Error(c, http.StatusServiceUnavailable, err, UnavailableMessage)
			c.Abort()
			return
		}
		defer b.Unbind(c)
		c.Next()
	}
}

// BindingState 请求当前的绑定状态
func BindingState(c *gin.Context) State {
	if bd := bindingFrom(c); bd != nil {
		return bd.State()
	}
	return StateUnbound
}

func bindingFrom(c *gin.Context) *binding {
	v, ok := c.Get(bindingKey)
	if !ok {
		return nil
	}
	bd, _ := v.(*binding)
	return bd
}
