package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix 缓存键的命名空间
// 任务队列与缓存共用一个Redis实例，缓存操作只能触及自己命名空间下的键
const keyPrefix = "regcache:"

// RedisCache 基于Redis实现的缓存
// 所有键都带命名空间前缀，与同实例上的任务队列数据隔离
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisCache 创建一个新的Redis缓存
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// 测试连接
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
		ctx:    ctx,
	}, nil
}

// Get 获取缓存内容
func (r *RedisCache) Get(key string) (string, bool, error) {
	value, err := r.client.Get(r.ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 设置缓存内容
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	return r.client.Set(r.ctx, keyPrefix+key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	return r.client.Del(r.ctx, keyPrefix+key).Err()
}

// Clear 清空本命名空间下的全部缓存键
// 按前缀SCAN分批删除，同库的任务队列键不受影响
func (r *RedisCache) Clear() error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(r.ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func init() {
	RegisterCache("redis", NewRedisCache)
}
