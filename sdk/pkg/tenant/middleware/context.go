package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/database"
)

// gin.Context 中的键
const (
	TenantIDKey = "tenant_id"
	SessionKey  = "tenant_db_session"
	bindingKey  = "tenant_db_binding"
)

type contextKey int

const (
	sessionContextKey contextKey = iota
	tenantContextKey
)

// WithSession 把会话和租户标识放入标准 context，供不接触 gin 的下游代码使用
func WithSession(ctx context.Context, tenantID string, s *database.Session) context.Context {
	ctx = context.WithValue(ctx, tenantContextKey, tenantID)
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext 取出当前请求绑定的会话
func FromContext(ctx context.Context) (*database.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*database.Session)
	return s, ok && s != nil
}

// TenantIDFromContext 取出当前请求的租户标识
func TenantIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantContextKey).(string)
	return id
}

// GetDB 当前请求的租户数据库句柄，未绑定时返回 nil
func GetDB(c *gin.Context) *gorm.DB {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil
	}
	s, ok := v.(*database.Session)
	if !ok || s == nil {
		return nil
	}
	return s.DB()
}

// GetTenantID 当前请求的租户标识
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}
