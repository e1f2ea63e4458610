package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/metrics"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
)

const (
	// DefaultTTL 未指定 TTL 时凭证的缓存时间
	DefaultTTL = time.Hour
	// DefaultL1Size 进程内缓存的条目上限
	DefaultL1Size = 1024
)

// Stats 缓存统计
type Stats struct {
	EntryCount  int           `json:"entryCount"`
	L1Entries   int           `json:"l1Entries"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	L2Errors    int64         `json:"l2Errors"`
	L2Available bool          `json:"l2Available"`
	DefaultTTL  time.Duration `json:"defaultTtl"`
}

// CredentialCache 两级凭证缓存，并发安全
type CredentialCache struct {
	l1      *lru.Cache[string, Entry]
	l2      Store
	ttl     time.Duration
	l1Size  int
	now     func() time.Time
	logger  *zap.Logger
	metrics metrics.Collector

	hits     atomic.Int64
	misses   atomic.Int64
	l2Errors atomic.Int64
}

// Option configures CredentialCache
type Option func(*CredentialCache)

// WithStore 设置二级缓存，nil 表示只用进程内缓存
func WithStore(s Store) Option {
	return func(c *CredentialCache) {
		c.l2 = s
	}
}

// WithTTL 设置默认 TTL
func WithTTL(ttl time.Duration) Option {
	return func(c *CredentialCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithL1Size 设置进程内缓存条目上限
func WithL1Size(size int) Option {
	return func(c *CredentialCache) {
		if size > 0 {
			c.l1Size = size
		}
	}
}

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(c *CredentialCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *CredentialCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.Collector) Option {
	return func(c *CredentialCache) {
		c.metrics = metrics.OrNoOp(m)
	}
}

// New 创建凭证缓存
func New(opts ...Option) (*CredentialCache, error) {
	c := &CredentialCache{
		ttl:     DefaultTTL,
		l1Size:  DefaultL1Size,
		now:     time.Now,
		logger:  zap.NewNop(),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	l1, err := lru.New[string, Entry](c.l1Size)
	if err != nil {
		return nil, err
	}
	c.l1 = l1
	c.logger = c.logger.Named("tenant.cache")
	return c, nil
}

// DefaultTTL 默认 TTL
func (c *CredentialCache) DefaultTTL() time.Duration {
	return c.ttl
}

// Get 依次查一级、二级缓存；二级命中会带着剩余 TTL 回填一级
func (c *CredentialCache) Get(ctx context.Context, tenantID string) (*provider.CredentialSet, bool) {
	now := c.now()

	if entry, ok := c.l1.Get(tenantID); ok {
		if !entry.Expired(now) {
			c.hit("l1")
			creds := entry.Credentials
			return &creds, true
		}
		c.l1.Remove(tenantID)
	}

	if c.l2 != nil {
		entry, err := c.l2.Get(ctx, tenantID)
		switch {
		case err != nil:
			c.l2Failed("get", tenantID, err)
		case entry != nil && !entry.Expired(now):
			c.l1.Add(tenantID, *entry)
			c.hit("l2")
			creds := entry.Credentials
			return &creds, true
		}
	}

	c.misses.Add(1)
	c.metrics.RecordCacheMiss()
	return nil, false
}

// Put 写入两级缓存；ttl <= 0 使用默认 TTL。二级缓存写入失败不影响一级。
func (c *CredentialCache) Put(ctx context.Context, tenantID string, creds *provider.CredentialSet, ttl time.Duration) {
	if creds == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry := Entry{Credentials: *creds, ExpiresAt: c.now().Add(ttl)}
	c.l1.Add(tenantID, entry)

	if c.l2 != nil {
		if err := c.l2.Set(ctx, tenantID, &entry, ttl); err != nil {
			c.l2Failed("set", tenantID, err)
		}
	}
}

// Invalidate 删除一个租户的缓存，任一级确实删除了条目时返回 true
func (c *CredentialCache) Invalidate(ctx context.Context, tenantID string) bool {
	removed := c.l1.Remove(tenantID)
	if c.l2 != nil {
		ok, err := c.l2.Delete(ctx, tenantID)
		if err != nil {
			c.l2Failed("delete", tenantID, err)
		}
		removed = removed || ok
	}
	return removed
}

// ClearAll 清空两级缓存
func (c *CredentialCache) ClearAll(ctx context.Context) {
	c.l1.Purge()
	if c.l2 != nil {
		n, err := c.l2.Clear(ctx)
		if err != nil {
			c.l2Failed("clear", "", err)
			return
		}
		c.logger.Info("credential cache cleared", zap.Int("l2Removed", n))
	}
}

// Stats 二级缓存可用时 EntryCount 取二级缓存中的条目数
func (c *CredentialCache) Stats(ctx context.Context) Stats {
	s := Stats{
		L1Entries:  c.l1.Len(),
		DefaultTTL: c.ttl,
	}
	s.EntryCount = s.L1Entries

	if c.l2 != nil {
		if err := c.l2.Ping(ctx); err != nil {
			c.l2Failed("ping", "", err)
		} else if n, err := c.l2.Count(ctx); err != nil {
			c.l2Failed("count", "", err)
		} else {
			s.L2Available = true
			s.EntryCount = n
		}
	}

	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.L2Errors = c.l2Errors.Load()
	return s
}

// Close 关闭二级缓存连接
func (c *CredentialCache) Close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Close()
}

func (c *CredentialCache) hit(level string) {
	c.hits.Add(1)
	c.metrics.RecordCacheHit(level)
}

func (c *CredentialCache) l2Failed(op, tenantID string, err error) {
	c.l2Errors.Add(1)
	c.metrics.RecordCacheError(op)
	c.logger.Warn("shared credential cache unavailable, degraded",
		zap.String("op", op), zap.String("tenant", tenantID), zap.Error(err))
}
