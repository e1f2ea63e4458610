package runtime

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/cache"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/database"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/middleware"
)

type Runtime interface {
	// SetupTenantDB 按配置组装凭证缓存、解析器、连接池注册表和绑定中间件
	SetupTenantDB(ctx context.Context, opts ...SetupOption) error

	GetCredentialCache() *cache.CredentialCache
	GetResolver() *database.Resolver
	GetRegistry() *database.Registry
	GetBinder() *middleware.Binder

	// OpenTenantSession 请求之外（定时任务等）按租户打开会话，用完必须 Close
	OpenTenantSession(ctx context.Context, tenantID string) (*database.Session, error)

	// SetEngine 使用的路由
	SetEngine(engine http.Handler)
	GetEngine() http.Handler

	GetRouter() []Router

	// SetLogger 使用zap
	SetLogger(logger *zap.Logger)
	GetLogger() *zap.Logger

	// SetCrontab crontab
	SetCrontab(key string, crontab *cron.Cron)
	GetCrontab(key string) *cron.Cron
	GetCrontabs(fn func(key string, crontab *cron.Cron) bool)

	// SetMiddleware middleware
	SetMiddleware(string, interface{})
	GetMiddleware() map[string]interface{}
	GetMiddlewareKey(key string) interface{}

	SetHandler(key string, routerGroup func(r *gin.RouterGroup, hand ...*gin.HandlerFunc))
	GetHandler() map[string][]func(r *gin.RouterGroup, hand ...*gin.HandlerFunc)
	GetHandlerPrefix(key string) []func(r *gin.RouterGroup, hand ...*gin.HandlerFunc)
	MountHandlers(router gin.IRouter)

	GetConfig(key string) interface{}
	SetConfig(key string, value interface{})

	// SetAppRouters set AppRouter
	SetAppRouters(appRouters func())
	GetAppRouters() []func()

	// Shutdown 停止定时任务，关闭全部租户连接池与缓存连接
	Shutdown(ctx context.Context) error
}
