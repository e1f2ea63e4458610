package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/crypto"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/migration"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/cache"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/database"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/metrics"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/middleware"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/tenantid"
)

// MetricsNamespace Prometheus 指标命名空间
const MetricsNamespace = "jxt"

type setupOptions struct {
	registerer prometheus.Registerer
	opener     database.Opener
	migrator   *migration.Migrator
}

// SetupOption configures SetupTenantDB
type SetupOption func(*setupOptions)

// WithRegisterer 注册 Prometheus 指标；不设置时不采集指标
func WithRegisterer(reg prometheus.Registerer) SetupOption {
	return func(o *setupOptions) {
		o.registerer = reg
	}
}

// WithOpener 替换连接池的打开方式（测试用 sqlmock）
func WithOpener(opener database.Opener) SetupOption {
	return func(o *setupOptions) {
		o.opener = opener
	}
}

// WithMigrator 租户连接池首次建立时执行迁移
func WithMigrator(m *migration.Migrator) SetupOption {
	return func(o *setupOptions) {
		o.migrator = m
	}
}

// SetupTenantDB 按配置组装租户数据库组件。
// Redis 不可达时降级为只用进程内缓存、不加分布式锁，不影响启动。
func (e *Application) SetupTenantDB(ctx context.Context, opts ...SetupOption) error {
	o := &setupOptions{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := e.config
	log := e.GetLogger()

	collector := metrics.Collector(metrics.NoOpCollector{})
	if o.registerer != nil {
		pc, err := metrics.NewPrometheusCollector(MetricsNamespace, o.registerer)
		if err != nil {
			return fmt.Errorf("register tenant metrics: %w", err)
		}
		collector = pc
	}

	// 二级缓存
	var shared *redis.Client
	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.Cache.GetTTL()),
		cache.WithL1Size(cfg.Cache.GetL1Size()),
		cache.WithLogger(log),
		cache.WithMetrics(collector),
	}
	client, err := cfg.Cache.Setup(ctx)
	switch {
	case err != nil:
		log.Warn("redis unavailable, credential cache runs in-process only", zap.Error(err))
		if client != nil {
			_ = client.Close()
		}
	case client != nil:
		shared = client
		cacheOpts = append(cacheOpts, cache.WithStore(cache.NewRedisStore(client, cfg.Cache.GetKeyPrefix())))
	}
	credentialCache, err := cache.New(cacheOpts...)
	if err != nil {
		if shared != nil {
			_ = shared.Close()
		}
		return fmt.Errorf("credential cache: %w", err)
	}

	resolverOpts := []database.ResolverOption{
		database.WithLocalDatabase(cfg.Database.Local),
		database.WithCredentialCache(credentialCache),
		database.WithCacheTTL(cfg.Cache.GetTTL()),
		database.WithResolverLogger(log),
		database.WithResolverMetrics(collector),
	}

	// 多实例合并拉取
	locker, lockRedis, err := cfg.Locker.Setup(shared)
	if err != nil {
		log.Warn("credential fill lock disabled", zap.Error(err))
	} else if locker != nil {
		resolverOpts = append(resolverOpts, database.WithLocker(locker, cfg.Locker.GetTTL()))
	}

	if svc := cfg.Tenants.CredentialService; svc.BaseURL != "" {
		// 接口变量保持 nil，不能传入 nil 的 *crypto.Codec
		var codec provider.Decrypter
		if svc.EncryptionKey != "" {
			codec = crypto.NewCodec(svc.EncryptionKey)
		} else {
			log.Warn("no encryption key configured, encrypted credential values will be rejected")
		}
		resolverOpts = append(resolverOpts, database.WithCredentialFetcher(
			provider.NewClient(svc.BaseURL, codec, provider.WithTimeout(svc.GetTimeout()), provider.WithLogger(log))))
	} else if cfg.Tenants.Enabled {
		log.Warn("multi-tenant enabled without credential service, only local tenant resolvable")
	}
	resolver := database.NewResolver(resolverOpts...)

	registryOpts := []database.RegistryOption{
		database.WithPoolOptions(database.PoolOptionsFrom(cfg.Database.Pool)),
		database.WithRegistryLogger(log),
		database.WithRegistryMetrics(collector),
	}
	if o.opener != nil {
		registryOpts = append(registryOpts, database.WithOpener(o.opener))
	}
	if o.migrator != nil {
		registryOpts = append(registryOpts, database.WithPoolInitializer(o.migrator.Migrate))
	}
	registry := database.NewRegistry(registryOpts...)
	if o.registerer != nil {
		if err := registry.StartStatsReporter(cfg.Database.Pool.GetStatsCron()); err != nil {
			log.Warn("pool stats reporter disabled", zap.Error(err))
		}
	}

	binder := middleware.NewBinder(resolver, registry,
		middleware.WithOverrideHeaders(cfg.Tenants.GetOverrideHeaders()...),
		middleware.WithExemptPrefixes(cfg.Tenants.GetExemptPrefixes()),
		middleware.WithAliases(tenantid.NewAliases(cfg.Tenants.AliasMap())),
		middleware.WithLocalHosts(cfg.Tenants.LocalHosts...),
		middleware.WithMultiTenant(cfg.Tenants.Enabled),
		middleware.WithLogger(log),
		middleware.WithMetrics(collector),
	)

	e.mux.Lock()
	e.credentialCache = credentialCache
	e.resolver = resolver
	e.registry = registry
	e.binder = binder
	e.metrics = collector
	e.lockRedis = lockRedis
	e.mux.Unlock()

	log.Info("tenant database setup complete",
		zap.Bool("multiTenant", cfg.Tenants.Enabled),
		zap.Bool("sharedCache", shared != nil),
		zap.Bool("fillLock", locker != nil),
		zap.String("driver", registry.Options().Driver))
	return nil
}

// Shutdown 停止定时任务，关闭全部租户连接池与缓存连接
func (e *Application) Shutdown(ctx context.Context) error {
	e.crontabs.Range(func(key, value interface{}) bool {
		c := value.(*cron.Cron)
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
		return true
	})

	e.mux.Lock()
	registry, credentialCache, lockRedis, collector := e.registry, e.credentialCache, e.lockRedis, e.metrics
	e.registry, e.credentialCache, e.resolver, e.binder, e.lockRedis = nil, nil, nil, nil, nil
	e.mux.Unlock()

	var errs []error
	if registry != nil {
		registry.Stop()
		n := registry.DisposeAll()
		e.GetLogger().Info("tenant pools disposed", zap.Int("count", n))
	}
	if credentialCache != nil {
		if err := credentialCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close credential cache: %w", err))
		}
	}
	if lockRedis != nil {
		if err := lockRedis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lock redis: %w", err))
		}
	}
	if pc, ok := collector.(*metrics.PrometheusCollector); ok {
		pc.Unregister()
	}
	return errors.Join(errs...)
}
