package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	toolsConfig "github.com/ChenBigdata421/jxt-tenantdb/sdk/config"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/cache"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/database"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/metrics"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/middleware"
)

type Application struct {
	config      *toolsConfig.Config                                             //配置
	engine      http.Handler                                                    //路由引擎
	crontabs    sync.Map                                                        //crontab
	mux         sync.RWMutex                                                    //互斥锁
	middlewares map[string]interface{}                                          //中间件
	handler     map[string][]func(r *gin.RouterGroup, hand ...*gin.HandlerFunc) //handler
	routers     []Router                                                        //路由
	configs     map[string]interface{}                                          // 系统参数
	appRouters  []func()                                                        // app路由

	credentialCache *cache.CredentialCache //凭证缓存
	resolver        *database.Resolver     //凭证解析
	registry        *database.Registry     //租户连接池
	binder          *middleware.Binder     //请求会话绑定
	metrics         metrics.Collector
	lockRedis       *redis.Client //分布式锁独立使用的 redis
}

type Router struct {
	HttpMethod, RelativePath, Handler string
}

type Routers struct {
	List []Router
}

// NewConfig 默认值；cfg 为 nil 时使用全局 AppConfig
func NewConfig(cfg ...*toolsConfig.Config) *Application {
	c := toolsConfig.AppConfig
	if len(cfg) > 0 && cfg[0] != nil {
		c = cfg[0]
	}
	return &Application{
		config:      c,
		middlewares: make(map[string]interface{}),
		handler:     make(map[string][]func(r *gin.RouterGroup, hand ...*gin.HandlerFunc)),
		routers:     make([]Router, 0),
		configs:     make(map[string]interface{}),
		metrics:     metrics.NoOpCollector{},
	}
}

// GetCredentialCache 凭证缓存，SetupTenantDB 之前为 nil
func (e *Application) GetCredentialCache() *cache.CredentialCache {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.credentialCache
}

// GetResolver 凭证解析器
func (e *Application) GetResolver() *database.Resolver {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.resolver
}

// GetRegistry 租户连接池注册表
func (e *Application) GetRegistry() *database.Registry {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.registry
}

// GetBinder 请求会话绑定中间件
func (e *Application) GetBinder() *middleware.Binder {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.binder
}

// OpenTenantSession 解析租户、确保连接池存在后打开会话
func (e *Application) OpenTenantSession(ctx context.Context, tenantID string) (*database.Session, error) {
	binder, resolver, registry := e.GetBinder(), e.GetResolver(), e.GetRegistry()
	if binder == nil {
		return nil, fmt.Errorf("%w: tenant database not set up", middleware.ErrSessionBindingFailed)
	}
	id, err := binder.Canonical(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", middleware.ErrSessionBindingFailed, err)
	}
	poolKey := binder.PoolKey(id)
	creds, err := resolver.ResolveErr(ctx, poolKey, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", middleware.ErrSessionBindingFailed, err)
	}
	entry, err := registry.GetOrCreate(ctx, poolKey, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", middleware.ErrSessionBindingFailed, err)
	}
	return entry.NewSession(ctx)
}

// SetEngine 设置路由引擎
func (e *Application) SetEngine(engine http.Handler) {
	e.engine = engine
}

// GetEngine 获取路由引擎
func (e *Application) GetEngine() http.Handler {
	return e.engine
}

// GetRouter 获取路由表
func (e *Application) GetRouter() []Router {
	return e.setRouter()
}

// setRouter 设置路由表
func (e *Application) setRouter() []Router {
	switch engine := e.engine.(type) {
	case *gin.Engine:
		e.routers = e.routers[:0]
		for _, router := range engine.Routes() {
			e.routers = append(e.routers, Router{RelativePath: router.Path, Handler: router.Handler, HttpMethod: router.Method})
		}
	}
	return e.routers
}

// SetLogger 设置日志组件
func (e *Application) SetLogger(l *zap.Logger) {
	logger.Logger = l
}

// GetLogger 获取日志组件
func (e *Application) GetLogger() *zap.Logger {
	if logger.Logger == nil {
		return zap.NewNop()
	}
	return logger.Logger
}

// SetCrontab 设置对应key的crontab
func (e *Application) SetCrontab(key string, crontab *cron.Cron) {
	e.crontabs.Store(key, crontab)
}

// GetCrontab 根据key获取crontab
func (e *Application) GetCrontab(key string) *cron.Cron {
	if value, ok := e.crontabs.Load(key); ok {
		return value.(*cron.Cron)
	}
	return nil
}

// GetCrontabs 遍历所有crontab
func (e *Application) GetCrontabs(fn func(key string, crontab *cron.Cron) bool) {
	e.crontabs.Range(func(key, value interface{}) bool {
		return fn(key.(string), value.(*cron.Cron))
	})
}

// SetMiddleware 设置中间件
func (e *Application) SetMiddleware(key string, middleware interface{}) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.middlewares[key] = middleware
}

// GetMiddleware 获取所有中间件
func (e *Application) GetMiddleware() map[string]interface{} {
	return e.middlewares
}

// GetMiddlewareKey 获取对应key的中间件
func (e *Application) GetMiddlewareKey(key string) interface{} {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.middlewares[key]
}

// SetHandler 登记路由组，key 为路由前缀，由 MountHandlers 统一挂载
func (e *Application) SetHandler(key string, routerGroup func(r *gin.RouterGroup, hand ...*gin.HandlerFunc)) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.handler[key] = append(e.handler[key], routerGroup)
}

// GetHandler 返回登记表的副本
func (e *Application) GetHandler() map[string][]func(r *gin.RouterGroup, hand ...*gin.HandlerFunc) {
	e.mux.Lock()
	defer e.mux.Unlock()
	out := make(map[string][]func(r *gin.RouterGroup, hand ...*gin.HandlerFunc), len(e.handler))
	for k, v := range e.handler {
		out[k] = append([]func(r *gin.RouterGroup, hand ...*gin.HandlerFunc){}, v...)
	}
	return out
}

// MountHandlers 按前缀挂载登记的路由组。
// SetupTenantDB 之后每个组都挂上租户会话绑定，豁免前缀下的请求由绑定器自己放行。
func (e *Application) MountHandlers(router gin.IRouter) {
	var mws []gin.HandlerFunc
	if binder := e.GetBinder(); binder != nil {
		mws = append(mws, binder.Handler())
	}
	handlers := e.GetHandler()
	prefixes := make([]string, 0, len(handlers))
	for prefix := range handlers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		group := router.Group(prefix, mws...)
		for _, fn := range handlers[prefix] {
			fn(group)
		}
	}
}

func (e *Application) GetHandlerPrefix(key string) []func(r *gin.RouterGroup, hand ...*gin.HandlerFunc) {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.handler[key]
}

// SetConfig 设置对应key的config
func (e *Application) SetConfig(key string, value interface{}) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.configs[key] = value
}

// GetConfig 获取对应key的config
func (e *Application) GetConfig(key string) interface{} {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.configs[key]
}

// SetAppRouters 设置app的路由
func (e *Application) SetAppRouters(appRouters func()) {
	e.appRouters = append(e.appRouters, appRouters)
}

// GetAppRouters 获取app的路由
func (e *Application) GetAppRouters() []func() {
	return e.appRouters
}
