package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"rental-admin/internal/shared/cache"
	cacheredis "rental-admin/internal/shared/cache/redis"
	"rental-admin/internal/shared/eventbus"
	eventbusredis "rental-admin/internal/shared/eventbus/redis"
)

// RedisInfra Redis 基础设施
//
// 会话登记与事件总线共用一个连接，由 RedisInfra 统一关闭。
type RedisInfra struct {
	cacheStore    *cacheredis.Store
	eventBusStore *eventbusredis.Store

	// 底层连接
	client *redis.Client
}

// NewRedisInfra 从 URL 创建 Redis 基础设施
func NewRedisInfra(redisURL string) (*RedisInfra, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[redis/infra] Connected to %s", opts.Addr)

	return &RedisInfra{
		client:        client,
		cacheStore:    cacheredis.NewStoreFromClient(client),
		eventBusStore: eventbusredis.NewStoreFromClient(client),
	}, nil
}

// Cache 返回会话缓存组件
//
// 返回的组件 Close 为空操作，连接由 RedisInfra.Close 关闭。
func (r *RedisInfra) Cache() cache.Cache {
	return sharedConn{r.cacheStore}
}

// EventBus 返回事件总线组件
func (r *RedisInfra) EventBus() eventbus.EventBus {
	return r.eventBusStore
}

// Client 返回底层 Redis 客户端
func (r *RedisInfra) Client() *redis.Client {
	return r.client
}

// Close 关闭 Redis 连接
func (r *RedisInfra) Close() error {
	return r.client.Close()
}

// sharedConn 屏蔽 cacheredis.Store.Close，避免重复关闭共享连接
type sharedConn struct {
	*cacheredis.Store
}

func (sharedConn) Close() error { return nil }
