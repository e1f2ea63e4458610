// Package cache 租户数据库凭证的两级缓存。
//
// 一级缓存是进程内 LRU，二级缓存是可选的共享存储（生产上是 Redis）。
// 二级缓存的任何失败都只记录告警并按未命中/空操作处理，不会让请求失败。
// 两级缓存中的条目都不会活过写入时给定的 TTL。凭证不落盘。
//
// Usage:
//
//	store := cache.NewRedisStore(redisClient, "jxt:tenantdb:")
//	c, err := cache.New(cache.WithStore(store), cache.WithTTL(time.Hour))
//	creds, ok := c.Get(ctx, "acme.example.com")
//	c.Put(ctx, "acme.example.com", creds, 0) // 0 使用默认 TTL
package cache
