package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/metrics"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
)

// Opener 打开一个 gorm 引擎；测试中替换为 sqlmock
type Opener func(driver, dsn string, cfg *gorm.Config) (*gorm.DB, error)

// DefaultOpener 按驱动名选择 gorm 方言
func DefaultOpener(driver, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	switch driver {
	case DriverPostgres, "":
		return gorm.Open(postgres.Open(dsn), cfg)
	case DriverMySQL:
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// PoolEntry 一个租户的连接池及其会话工厂
type PoolEntry struct {
	TenantID  string
	DB        *gorm.DB
	SQLDB     *sql.DB
	Options   PoolOptions
	CreatedAt time.Time
}

// NewSession 从池中取出一个专用连接组成会话。
// 取连接受 PoolTimeout 约束；开启 PrePing 时先检测连接存活。
func (e *PoolEntry) NewSession(ctx context.Context) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	acquireCtx, cancel := context.WithTimeout(ctx, e.Options.PoolTimeout)
	defer cancel()

	conn, err := e.SQLDB.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for %s: %w", e.TenantID, err)
	}
	if e.Options.PrePing {
		if err := conn.PingContext(acquireCtx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ping connection for %s: %w", e.TenantID, err)
		}
	}
	return newSession(ctx, e.TenantID, e.DB, conn), nil
}

// PoolStats 单个连接池的运行状态
type PoolStats struct {
	TenantID        string        `json:"tenantId"`
	MaxOpen         int           `json:"maxOpen"`
	OpenConnections int           `json:"openConnections"`
	InUse           int           `json:"inUse"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"waitCount"`
	WaitDuration    time.Duration `json:"waitDuration"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Registry 租户连接池注册表。
// 读路径只持读锁；同一租户的并发首次构建经 singleflight 合并为一次，
// 不同租户的构建互不等待，写锁只覆盖 map 写入本身。
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*PoolEntry
	group singleflight.Group

	opts    PoolOptions
	opener  Opener
	init    []PoolInitializer
	log     *zap.Logger
	metrics metrics.Collector

	cronMu sync.Mutex
	cron   *cron.Cron
}

// RegistryOption configures Registry
type RegistryOption func(*Registry)

// WithPoolOptions 设置连接池参数
func WithPoolOptions(opts PoolOptions) RegistryOption {
	return func(r *Registry) {
		r.opts = opts
	}
}

// WithOpener 替换引擎打开方式
func WithOpener(opener Opener) RegistryOption {
	return func(r *Registry) {
		if opener != nil {
			r.opener = opener
		}
	}
}

// PoolInitializer 连接池校验通过、登记之前执行（如租户库迁移）；出错时连接池被丢弃
type PoolInitializer func(ctx context.Context, tenantID string, db *gorm.DB) error

// WithPoolInitializer 追加连接池初始化函数，按添加顺序执行
func WithPoolInitializer(fn PoolInitializer) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.init = append(r.init, fn)
		}
	}
}

// WithRegistryLogger sets the logger
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRegistryMetrics sets the metrics collector
func WithRegistryMetrics(m metrics.Collector) RegistryOption {
	return func(r *Registry) {
		r.metrics = metrics.OrNoOp(m)
	}
}

// NewRegistry 创建注册表
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		pools:   make(map[string]*PoolEntry),
		opts:    DefaultPoolOptions(),
		opener:  DefaultOpener,
		log:     zap.NewNop(),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.opts.ValidationQuery == "" {
		r.opts.ValidationQuery = DefaultValidationQuery
	}
	r.log = r.log.Named("tenant.registry")
	return r
}

// Options 连接池参数
func (r *Registry) Options() PoolOptions {
	return r.opts
}

// Get 查找已登记的连接池
func (r *Registry) Get(tenantID string) (*PoolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.pools[tenantID]
	return e, ok
}

// GetOrCreate 返回租户的连接池，不存在时用 creds 构建并校验。
// 构建失败时引擎被关闭，注册表保持不变。
func (r *Registry) GetOrCreate(ctx context.Context, tenantID string, creds *provider.CredentialSet) (*PoolEntry, error) {
	if e, ok := r.Get(tenantID); ok {
		return e, nil
	}
	if creds == nil {
		return nil, fmt.Errorf("%w: no credentials for %s", ErrPoolConstructionFailed, tenantID)
	}

	// 建池不跟随发起者取消，校验查询由 PoolTimeout 限定；调用方各自按 ctx 放弃等待
	buildCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(tenantID, func() (interface{}, error) {
		if e, ok := r.Get(tenantID); ok {
			return e, nil
		}
		e, err := r.build(buildCtx, tenantID, *creds)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pools[tenantID] = e
		r.mu.Unlock()
		return e, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*PoolEntry), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrPoolConstructionFailed, tenantID, ctx.Err())
	}
}

func (r *Registry) build(ctx context.Context, tenantID string, creds provider.CredentialSet) (entry *PoolEntry, err error) {
	start := time.Now()
	defer func() {
		r.metrics.RecordPoolCreated(tenantID, err == nil, time.Since(start))
	}()

	dsn, err := BuildDSN(r.opts.Driver, r.opts.SSLMode, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolConstructionFailed, err)
	}

	engine, err := r.opener(r.opts.Driver, dsn, &gorm.Config{
		Logger:               logger.NewGormLogger(r.log, r.opts.GormLogLevel, tenantID),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPoolConstructionFailed, tenantID, err)
	}
	sqlDB, err := engine.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPoolConstructionFailed, tenantID, err)
	}

	sqlDB.SetMaxIdleConns(r.opts.PoolSize)
	sqlDB.SetMaxOpenConns(r.opts.MaxOpen())
	sqlDB.SetConnMaxLifetime(r.opts.PoolRecycle)
	sqlDB.SetConnMaxIdleTime(r.opts.PoolRecycle)

	validateCtx, cancel := context.WithTimeout(ctx, r.opts.PoolTimeout)
	defer cancel()
	if err := engine.WithContext(validateCtx).Exec(r.opts.ValidationQuery).Error; err != nil {
		_ = sqlDB.Close()
		r.log.Warn("tenant pool validation failed",
			zap.String("tenant", tenantID), zap.String("host", creds.Host), zap.Int("port", creds.Port),
			zap.String("database", creds.Database), zap.Error(err))
		return nil, fmt.Errorf("%w: validate %s: %v", ErrPoolConstructionFailed, tenantID, err)
	}

	for _, fn := range r.init {
		if err := fn(ctx, tenantID, engine); err != nil {
			_ = sqlDB.Close()
			r.log.Warn("tenant pool initialization failed", zap.String("tenant", tenantID), zap.Error(err))
			return nil, fmt.Errorf("%w: initialize %s: %v", ErrPoolConstructionFailed, tenantID, err)
		}
	}

	r.log.Info("tenant pool created",
		zap.String("tenant", tenantID), zap.String("host", creds.Host), zap.Int("port", creds.Port),
		zap.String("database", creds.Database), zap.Duration("elapsed", time.Since(start)))

	return &PoolEntry{
		TenantID:  tenantID,
		DB:        engine,
		SQLDB:     sqlDB,
		Options:   r.opts,
		CreatedAt: time.Now(),
	}, nil
}

// OpenSession 从已登记的连接池打开会话，不持有注册表锁
func (r *Registry) OpenSession(ctx context.Context, tenantID string) (*Session, error) {
	e, ok := r.Get(tenantID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, tenantID)
	}
	return e.NewSession(ctx)
}

// SessionFactory 返回租户的会话工厂
func (r *Registry) SessionFactory(tenantID string) (SessionFactory, bool) {
	e, ok := r.Get(tenantID)
	if !ok {
		return nil, false
	}
	return e.NewSession, true
}

// Dispose 注销并关闭一个租户的连接池；已借出的连接在归还时关闭
func (r *Registry) Dispose(tenantID string) bool {
	r.mu.Lock()
	e, ok := r.pools[tenantID]
	delete(r.pools, tenantID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.close(e)
	return true
}

// DisposeAll 关闭全部连接池，返回关闭的数量
func (r *Registry) DisposeAll() int {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*PoolEntry)
	r.mu.Unlock()

	for _, e := range pools {
		r.close(e)
	}
	return len(pools)
}

func (r *Registry) close(e *PoolEntry) {
	if err := e.SQLDB.Close(); err != nil {
		r.log.Warn("close tenant pool failed", zap.String("tenant", e.TenantID), zap.Error(err))
	}
	r.metrics.RecordPoolDisposed(e.TenantID)
	r.log.Info("tenant pool disposed", zap.String("tenant", e.TenantID))
}

// ActiveTenants 已登记连接池的租户（排序）
func (r *Registry) ActiveTenants() []string {
	r.mu.RLock()
	tenants := make([]string, 0, len(r.pools))
	for id := range r.pools {
		tenants = append(tenants, id)
	}
	r.mu.RUnlock()
	sort.Strings(tenants)
	return tenants
}

// Stats 各连接池的 sql.DBStats 快照（按租户排序）
func (r *Registry) Stats() []PoolStats {
	r.mu.RLock()
	entries := make([]*PoolEntry, 0, len(r.pools))
	for _, e := range r.pools {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	stats := make([]PoolStats, 0, len(entries))
	for _, e := range entries {
		s := e.SQLDB.Stats()
		stats = append(stats, PoolStats{
			TenantID:        e.TenantID,
			MaxOpen:         s.MaxOpenConnections,
			OpenConnections: s.OpenConnections,
			InUse:           s.InUse,
			Idle:            s.Idle,
			WaitCount:       s.WaitCount,
			WaitDuration:    s.WaitDuration,
			CreatedAt:       e.CreatedAt,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].TenantID < stats[j].TenantID })
	return stats
}

// ReportStats 把当前连接池状态写入指标
func (r *Registry) ReportStats() {
	for _, s := range r.Stats() {
		r.metrics.RecordPoolStats(s.TenantID, s.OpenConnections, s.InUse, s.Idle, s.WaitCount)
	}
}

// StartStatsReporter 按 cron 表达式（如 "@every 30s"）定期上报连接池状态
func (r *Registry) StartStatsReporter(spec string) error {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, r.ReportStats); err != nil {
		return fmt.Errorf("invalid stats cron %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop 停止定时上报，等待正在执行的任务结束
func (r *Registry) Stop() {
	r.cronMu.Lock()
	c := r.cron
	r.cron = nil
	r.cronMu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
