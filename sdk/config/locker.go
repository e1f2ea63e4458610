package config

import (
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v9"
)

// Locker 分布式锁配置，用于多实例部署时合并同一租户的凭证拉取
type Locker struct {
	Redis *RedisConnectOptions `mapstructure:"redis"`
	TTL   int                  `mapstructure:"ttl"` // 锁持有时间(秒)，默认15
}

var LockerConfig = new(Locker)

// Empty 空设置
func (e Locker) Empty() bool {
	return !e.Redis.Enabled()
}

func (e Locker) GetTTL() time.Duration {
	if e.TTL <= 0 {
		return 15 * time.Second
	}
	return time.Duration(e.TTL) * time.Second
}

// Setup 启用顺序：独立配置的 redis > 缓存共用的 redis > 不启用。
// 使用独立 redis 时第二个返回值为新建的连接，由调用方关闭。
func (e Locker) Setup(shared *redis.Client) (*redislock.Client, *redis.Client, error) {
	if !e.Empty() {
		options, err := e.Redis.GetRedisOptions()
		if err != nil {
			return nil, nil, err
		}
		own := redis.NewClient(options)
		return redislock.New(own), own, nil
	}
	if shared != nil {
		return redislock.New(shared), nil, nil
	}
	return nil, nil, nil
}
