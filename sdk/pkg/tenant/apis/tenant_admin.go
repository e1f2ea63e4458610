// Package apis 租户解析/诊断接口，挂载在豁免绑定的路径下
package apis

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/cache"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/database"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/middleware"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/tenantid"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/restapi"
)

// CacheInspector 凭证缓存的管理操作
type CacheInspector interface {
	Stats(ctx context.Context) cache.Stats
	ClearAll(ctx context.Context)
}

// TenantAdmin 租户管理接口
type TenantAdmin struct {
	restapi.RestApi

	Resolver *database.Resolver
	Registry *database.Registry
	Binder   *middleware.Binder
	// Cache 可为 nil（未启用缓存）
	Cache CacheInspector
}

type tenantRequest struct {
	URL string `json:"url" binding:"required"`
}

// ResolveResult POST /resolve 的返回
type ResolveResult struct {
	TenantID   string `json:"tenantId"`
	PoolKey    string `json:"poolKey"`
	Source     string `json:"source"`
	PoolActive bool   `json:"poolActive"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Database   string `json:"database"`
}

// TenantStatus 单个租户的缓存/连接池状态
type TenantStatus struct {
	TenantID string `json:"tenantId"`
	PoolKey  string `json:"poolKey"`
	Cached   bool   `json:"cached"`
	Pooled   bool   `json:"pooled"`
}

// StatusResult GET /status 的返回
type StatusResult struct {
	Tenant        *TenantStatus        `json:"tenant,omitempty"`
	Cache         *cache.Stats         `json:"cache,omitempty"`
	ActiveTenants []string             `json:"activeTenants"`
	Pools         []database.PoolStats `json:"pools"`
}

// ConnectionResult POST /test-connection 的返回
type ConnectionResult struct {
	TenantID  string  `json:"tenantId"`
	PoolKey   string  `json:"poolKey"`
	Source    string  `json:"source"`
	LatencyMs float64 `json:"latencyMs"`
}

// ClearResult DELETE /cache 的返回；Disposed 只在 dispose=true 时给出
type ClearResult struct {
	Cleared  bool `json:"cleared"`
	Disposed *int `json:"disposed,omitempty"`
}

// InvalidateResult DELETE /cache/:tenant 的返回
type InvalidateResult struct {
	TenantID    string `json:"tenantId"`
	Invalidated bool   `json:"invalidated"`
	Disposed    *bool  `json:"disposed,omitempty"`
}

// Register 挂载到 group，一般是 /api/v1/tenant
func (e TenantAdmin) Register(group *gin.RouterGroup) {
	group.POST("/resolve", e.Resolve)
	group.GET("/status", e.Status)
	group.DELETE("/cache", e.ClearCache)
	group.DELETE("/cache/:tenant", e.InvalidateTenant)
	group.POST("/test-connection", e.TestConnection)
}

// Resolve 解析租户并确保连接池已建立
func (e TenantAdmin) Resolve(c *gin.Context) {
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		e.BadRequest(c, err)
		return
	}
	tenantID, err := e.Binder.Canonical(req.URL)
	if err != nil {
		e.BadRequest(c, err)
		return
	}
	poolKey := e.Binder.PoolKey(tenantID)

	ctx := c.Request.Context()
	creds, source, err := e.Resolver.ResolveWithSource(ctx, poolKey, tenantid.URL(tenantID))
	if err != nil {
		e.Error(c, http.StatusServiceUnavailable, err, "tenant credentials not resolved")
		return
	}
	if _, err := e.Registry.GetOrCreate(ctx, poolKey, creds); err != nil {
		e.Error(c, http.StatusServiceUnavailable, err, middleware.UnavailableMessage)
		return
	}

	e.OK(c, ResolveResult{
		TenantID:   tenantID,
		PoolKey:    poolKey,
		Source:     string(source),
		PoolActive: true,
		Host:       creds.Host,
		Port:       creds.Port,
		Database:   creds.Database,
	}, "")
}

// Status 缓存统计、活跃连接池；给出 url 参数或租户请求头时附带该租户状态
func (e TenantAdmin) Status(c *gin.Context) {
	ctx := c.Request.Context()
	result := StatusResult{
		ActiveTenants: e.Registry.ActiveTenants(),
		Pools:         e.Registry.Stats(),
	}
	if e.Cache != nil {
		stats := e.Cache.Stats(ctx)
		result.Cache = &stats
	}

	var (
		tenantID string
		err      error
	)
	if raw := c.Query("url"); raw != "" {
		tenantID, err = e.Binder.Canonical(raw)
	} else if e.Binder.HasOverride(c.Request) {
		tenantID, err = e.Binder.TenantID(c.Request)
	}
	if err != nil {
		e.BadRequest(c, err)
		return
	}
	if tenantID != "" {
		poolKey := e.Binder.PoolKey(tenantID)
		_, pooled := e.Registry.Get(poolKey)
		result.Tenant = &TenantStatus{
			TenantID: tenantID,
			PoolKey:  poolKey,
			Cached:   e.Resolver.IsCached(ctx, poolKey),
			Pooled:   pooled,
		}
	}
	e.OK(c, result, "")
}

// ClearCache 清空凭证缓存；dispose=true 时同时关闭全部连接池
func (e TenantAdmin) ClearCache(c *gin.Context) {
	var result ClearResult
	if e.Cache != nil {
		e.Cache.ClearAll(c.Request.Context())
		result.Cleared = true
	}
	if c.Query("dispose") == "true" {
		n := e.Registry.DisposeAll()
		result.Disposed = &n
	}
	e.GetLogger(c).Info("tenant credential cache cleared",
		zap.Bool("cleared", result.Cleared), zap.Bool("dispose", result.Disposed != nil))
	e.OK(c, result, "")
}

// InvalidateTenant 删除单个租户的缓存凭证；dispose=true 时同时关闭其连接池
func (e TenantAdmin) InvalidateTenant(c *gin.Context) {
	tenantID, err := e.Binder.Canonical(c.Param("tenant"))
	if err != nil {
		e.BadRequest(c, err)
		return
	}
	poolKey := e.Binder.PoolKey(tenantID)
	result := InvalidateResult{
		TenantID:    tenantID,
		Invalidated: e.Resolver.Invalidate(c.Request.Context(), poolKey),
	}
	if c.Query("dispose") == "true" {
		disposed := e.Registry.Dispose(poolKey)
		result.Disposed = &disposed
	}
	e.GetLogger(c).Info("tenant credentials invalidated",
		zap.String("tenant", tenantID), zap.Bool("invalidated", result.Invalidated))
	e.OK(c, result, "")
}

// TestConnection 解析租户、打开会话并执行一次校验查询
func (e TenantAdmin) TestConnection(c *gin.Context) {
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		e.BadRequest(c, err)
		return
	}
	tenantID, err := e.Binder.Canonical(req.URL)
	if err != nil {
		e.BadRequest(c, err)
		return
	}
	poolKey := e.Binder.PoolKey(tenantID)

	ctx := c.Request.Context()
	creds, source, err := e.Resolver.ResolveWithSource(ctx, poolKey, tenantid.URL(tenantID))
	if err != nil {
		e.Error(c, http.StatusServiceUnavailable, err, "tenant credentials not resolved")
		return
	}
	entry, err := e.Registry.GetOrCreate(ctx, poolKey, creds)
	if err != nil {
		e.Error(c, http.StatusServiceUnavailable, err, middleware.UnavailableMessage)
		return
	}

	start := time.Now()
	session, err := entry.NewSession(ctx)
	if err != nil {
		e.Error(c, http.StatusServiceUnavailable, err, middleware.UnavailableMessage)
		return
	}
	defer session.Close()
	if err := session.DB().Exec(entry.Options.ValidationQuery).Error; err != nil {
		e.Error(c, http.StatusServiceUnavailable, err, "tenant database query failed")
		return
	}

	e.OK(c, ConnectionResult{
		TenantID:  tenantID,
		PoolKey:   poolKey,
		Source:    string(source),
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}, "")
}
