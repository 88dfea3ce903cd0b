package data

import (
	"context"
	"time"

	"github.com/lk2023060901/chunkjson/internal/pkg/redis"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
)

// exportPrefix 导出缓存键前缀，Invalidate 按此前缀批量删除
const exportPrefix = "export:"

// RedisCache implements biz.DocumentCache on redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a document cache; keys are namespaced by the client prefix.
func NewRedisCache(client *redis.Client) biz.DocumentCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key)
	if redis.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl)
}

// Invalidate 删除所有导出缓存
func (c *RedisCache) Invalidate(ctx context.Context) error {
	_, err := c.client.DeleteByPrefix(ctx, exportPrefix)
	return err
}
