package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
)

const scanBatch = 100

// RedisStore 基于 Redis 的二级缓存，键为 {prefix}credentials:{tenantId}，依赖 Redis 自身的过期
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	codec  Codec
}

// NewRedisStore prefix 为空时使用 jxt:tenantdb:
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "jxt:tenantdb:"
	}
	return &RedisStore{client: client, prefix: prefix, codec: JSONCodec{}}
}

func (r *RedisStore) key(tenantID string) string {
	return r.prefix + "credentials:" + tenantID
}

func (r *RedisStore) pattern() string {
	return r.prefix + "credentials:*"
}

func (r *RedisStore) Get(ctx context.Context, tenantID string) (*Entry, error) {
	data, err := r.client.Get(ctx, r.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", tenantID, err)
	}
	return entry, nil
}

func (r *RedisStore) Set(ctx context.Context, tenantID string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s", ttl)
	}
	data, err := r.codec.Encode(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(tenantID), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, tenantID string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(tenantID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear 删除本命名空间下的全部凭证，返回删除数量。
// 先完整 SCAN 收集键再分批 DEL，边扫边删会让游标跳过部分键。
func (r *RedisStore) Clear(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	var keys []string
	err := r.scan(ctx, func(batch []string) error {
		for _, k := range batch {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := r.client.Del(ctx, keys[start:end]...).Result()
		removed += int(n)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.scan(ctx, func(keys []string) error {
		count += len(keys)
		return nil
	})
	return count, err
}

func (r *RedisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.pattern(), scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
