package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
)

// Cache 凭证缓存配置
// Redis 为空时只使用进程内一级缓存
type Cache struct {
	Redis     *RedisConnectOptions `mapstructure:"redis"`
	L1Size    int                  `mapstructure:"l1Size"`    // 进程内缓存条目上限，默认1024
	KeyPrefix string               `mapstructure:"keyPrefix"` // Redis 键前缀，默认 jxt:tenantdb:
	TTL       int                  `mapstructure:"ttl"`       // 凭证缓存时间(秒)，默认3600
}

// RedisConnectOptions Redis 连接配置，URL 优先于其余字段
type RedisConnectOptions struct {
	URL         string `mapstructure:"url"`
	Addr        string `mapstructure:"addr"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PoolSize    int    `mapstructure:"poolSize"`
	DialTimeout int    `mapstructure:"dialTimeout"` // 秒
	ReadTimeout int    `mapstructure:"readTimeout"` // 秒
}

var CacheConfig = new(Cache)

func (e Cache) GetL1Size() int {
	if e.L1Size <= 0 {
		return 1024
	}
	return e.L1Size
}

func (e Cache) GetKeyPrefix() string {
	if e.KeyPrefix == "" {
		return "jxt:tenantdb:"
	}
	return e.KeyPrefix
}

func (e Cache) GetTTL() time.Duration {
	if e.TTL <= 0 {
		return time.Hour
	}
	return time.Duration(e.TTL) * time.Second
}

// Enabled 是否配置了 Redis
func (e *RedisConnectOptions) Enabled() bool {
	return e != nil && (e.URL != "" || e.Addr != "")
}

// GetRedisOptions 转换为 go-redis 连接参数
func (e *RedisConnectOptions) GetRedisOptions() (*redis.Options, error) {
	if !e.Enabled() {
		return nil, fmt.Errorf("redis not configured")
	}
	var options *redis.Options
	if e.URL != "" {
		parsed, err := redis.ParseURL(e.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{
			Addr:     e.Addr,
			Username: e.Username,
			Password: e.Password,
			DB:       e.DB,
		}
	}
	if e.PoolSize > 0 {
		options.PoolSize = e.PoolSize
	}
	options.DialTimeout = 2 * time.Second
	if e.DialTimeout > 0 {
		options.DialTimeout = time.Duration(e.DialTimeout) * time.Second
	}
	options.ReadTimeout = time.Second
	if e.ReadTimeout > 0 {
		options.ReadTimeout = time.Duration(e.ReadTimeout) * time.Second
	}
	return options, nil
}

// Setup 创建 Redis 客户端；未配置时返回 nil, nil。
// 启动时 Redis 不可达只记录为错误返回，调用方可以选择降级为无二级缓存运行。
func (e Cache) Setup(ctx context.Context) (*redis.Client, error) {
	if !e.Redis.Enabled() {
		return nil, nil
	}
	options, err := e.Redis.GetRedisOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("redis ping %s: %w", options.Addr, err)
	}
	return client, nil
}
