package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	toolsConfig "github.com/ChenBigdata421/jxt-tenantdb/sdk/config"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/metrics"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/tenantid"
)

// Source 凭证来源
type Source string

const (
	SourceLocal   Source = "local"
	SourceCache   Source = "cache"
	SourceService Source = "service"
)

const (
	lockKeyPrefix     = "jxt:tenantdb:lock:"
	lockRetryInterval = 100 * time.Millisecond
)

// CredentialFetcher 外部凭证服务
type CredentialFetcher interface {
	Fetch(ctx context.Context, tenantURL string) (*provider.Bundle, error)
}

// CredentialCache 凭证缓存
type CredentialCache interface {
	Get(ctx context.Context, tenantID string) (*provider.CredentialSet, bool)
	Put(ctx context.Context, tenantID string, creds *provider.CredentialSet, ttl time.Duration)
	Invalidate(ctx context.Context, tenantID string) bool
}

// Resolver 把租户标识解析为数据库凭证：本地租户读静态配置，其余先查缓存，未命中时请求凭证服务。
// 同一租户的并发未命中只会产生一次外部请求；失败不重试，也不写缓存。
type Resolver struct {
	local   toolsConfig.LocalDatabase
	cache   CredentialCache
	client  CredentialFetcher
	ttl     time.Duration
	locker  *redislock.Client
	lockTTL time.Duration
	group   singleflight.Group
	log     *zap.Logger
	metrics metrics.Collector
}

// ResolverOption configures Resolver
type ResolverOption func(*Resolver)

// WithLocalDatabase 本地/开发租户的静态连接参数
func WithLocalDatabase(local toolsConfig.LocalDatabase) ResolverOption {
	return func(r *Resolver) {
		r.local = local
	}
}

// WithCredentialCache sets the credential cache
func WithCredentialCache(c CredentialCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithCredentialFetcher sets the credential service client
func WithCredentialFetcher(f CredentialFetcher) ResolverOption {
	return func(r *Resolver) {
		r.client = f
	}
}

// WithCacheTTL 写入缓存时使用的 TTL，0 表示使用缓存默认值
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithLocker 多实例部署时用 Redis 锁合并跨进程的同租户拉取
func WithLocker(locker *redislock.Client, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.locker = locker
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithResolverMetrics sets the metrics collector
func WithResolverMetrics(m metrics.Collector) ResolverOption {
	return func(r *Resolver) {
		r.metrics = metrics.OrNoOp(m)
	}
}

// NewResolver 创建凭证解析器
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lockTTL: 15 * time.Second,
		log:     zap.NewNop(),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("tenant.resolver")
	return r
}

// Resolve 解析失败时返回 nil, false；失败原因已记录日志
func (r *Resolver) Resolve(ctx context.Context, tenantID, tenantURL string) (*provider.CredentialSet, bool) {
	creds, _, err := r.ResolveWithSource(ctx, tenantID, tenantURL)
	return creds, err == nil
}

// ResolveErr 同 Resolve，但返回分类后的错误
func (r *Resolver) ResolveErr(ctx context.Context, tenantID, tenantURL string) (*provider.CredentialSet, error) {
	creds, _, err := r.ResolveWithSource(ctx, tenantID, tenantURL)
	return creds, err
}

// ResolveWithSource 同时返回凭证来源。tenantURL 为空时由 tenantID 推导。
func (r *Resolver) ResolveWithSource(ctx context.Context, tenantID, tenantURL string) (creds *provider.CredentialSet, source Source, err error) {
	start := time.Now()
	defer func() {
		if source == "" {
			source = SourceService
		}
		r.metrics.RecordResolve(string(source), err == nil, time.Since(start))
		if err != nil {
			r.log.Warn("tenant credentials not resolved",
				zap.String("tenant", tenantID), zap.String("source", string(source)), zap.Error(err))
		}
	}()

	if tenantID == "" {
		return nil, "", fmt.Errorf("%w: empty tenant id", ErrTenantNotResolved)
	}

	if tenantid.IsLocal(tenantID) {
		creds, err := r.resolveLocal()
		return creds, SourceLocal, err
	}

	if creds, ok := r.cacheGet(ctx, tenantID); ok {
		return creds, SourceCache, nil
	}

	if tenantURL == "" {
		tenantURL = tenantid.URL(tenantID)
	}
	// 合并后的拉取不跟随任何一个调用方取消，由凭证服务超时和锁的重试次数限定；
	// 每个调用方只按自己的 ctx 放弃等待
	ch := r.group.DoChan(tenantID, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), tenantID, tenantURL)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, SourceService, res.Err
		}
		fr := res.Val.(fetchResult)
		out := *fr.creds
		return &out, fr.source, nil
	case <-ctx.Done():
		return nil, SourceService, fmt.Errorf("%w: %s: %w", ErrTenantNotResolved, tenantID, ctx.Err())
	}
}

// Invalidate 删除租户的缓存凭证
func (r *Resolver) Invalidate(ctx context.Context, tenantID string) bool {
	if r.cache == nil {
		return false
	}
	return r.cache.Invalidate(ctx, tenantID)
}

// IsCached 租户凭证是否在缓存中
func (r *Resolver) IsCached(ctx context.Context, tenantID string) bool {
	_, ok := r.cacheGet(ctx, tenantID)
	return ok
}

func (r *Resolver) resolveLocal() (*provider.CredentialSet, error) {
	if missing := r.local.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: local database not configured, missing %s",
			ErrTenantNotResolved, strings.Join(missing, ", "))
	}
	return &provider.CredentialSet{
		Host:     r.local.Host,
		Port:     r.local.Port,
		Database: r.local.Name,
		User:     r.local.User,
		Password: r.local.Password,
	}, nil
}

func (r *Resolver) cacheGet(ctx context.Context, tenantID string) (*provider.CredentialSet, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(ctx, tenantID)
}

type fetchResult struct {
	creds  *provider.CredentialSet
	source Source
}

func (r *Resolver) fetch(ctx context.Context, tenantID, tenantURL string) (fetchResult, error) {
	// 合并窗口之前刚有调用写入了缓存
	if creds, ok := r.cacheGet(ctx, tenantID); ok {
		return fetchResult{creds: creds, source: SourceCache}, nil
	}

	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, lockKeyPrefix+tenantID, r.lockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryInterval), int(r.lockTTL/lockRetryInterval)),
		})
		if err != nil {
			if !errors.Is(err, redislock.ErrNotObtained) {
				r.log.Warn("credential fill lock unavailable, fetching without it",
					zap.String("tenant", tenantID), zap.Error(err))
			}
		} else {
			defer func() {
				if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
					r.log.Warn("release credential fill lock failed", zap.String("tenant", tenantID), zap.Error(err))
				}
			}()
			// 其他实例可能已经拉取并写入了共享缓存
			if creds, ok := r.cacheGet(ctx, tenantID); ok {
				return fetchResult{creds: creds, source: SourceCache}, nil
			}
		}
	}

	if r.client == nil {
		return fetchResult{}, fmt.Errorf("%w: %s: credential service not configured", ErrTenantNotResolved, tenantID)
	}
	bundle, err := r.client.Fetch(ctx, tenantURL)
	if err != nil {
		return fetchResult{}, fmt.Errorf("%w: %s: %w", ErrTenantNotResolved, tenantID, err)
	}
	creds, err := provider.ExtractCredentials(bundle)
	if err != nil {
		return fetchResult{}, fmt.Errorf("%w: %s: %w", ErrTenantNotResolved, tenantID, err)
	}
	if r.cache != nil {
		r.cache.Put(ctx, tenantID, creds, r.ttl)
	}
	r.log.Info("tenant credentials fetched", zap.String("tenant", tenantID), zap.String("host", creds.Host))
	return fetchResult{creds: creds, source: SourceService}, nil
}
