/*
 * @module service/keylock/redis_lock
 * @description Redis按键互斥锁实现，多实例环境下保证同一复合键的Upsert串行
 * @architecture 工具层 - SET NX加锁，Lua脚本保证只有持有者能释放
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow TryLock(SET NX) -> 转换写入 -> Unlock(Lua校验持有者)
 * @rules 锁自动过期防止持有方崩溃后死锁；持有者标识为主机名+进程ID
 * @dependencies github.com/go-redis/redis/v8
 * @refs keylock.go
 */

package keylock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

const lockKeyPrefix = "transform:lock:"

// RedisKeyLock Redis按键互斥锁
type RedisKeyLock struct {
	client     *redis.Client
	instanceID string
}

// NewRedisKeyLock 基于已有Redis客户端创建按键互斥锁
func NewRedisKeyLock(client *redis.Client) *RedisKeyLock {
	hostname, _ := os.Hostname()
	instanceID := fmt.Sprintf("%s:%d", hostname, os.Getpid())

	return &RedisKeyLock{
		client:     client,
		instanceID: instanceID,
	}
}

// TryLock 使用SET NX尝试获取锁
func (r *RedisKeyLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	locked, err := r.client.SetNX(ctx, lockKeyPrefix+key, r.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}

	if locked {
		slog.Debug("按键锁: 成功获取锁", "key", key, "ttl", ttl, "instance", r.instanceID)
	}
	return locked, nil
}

// Unlock 释放锁，Lua脚本确保只有持有者能删除
func (r *RedisKeyLock) Unlock(ctx context.Context, key string) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	result, err := r.client.Eval(ctx, script, []string{lockKeyPrefix + key}, r.instanceID).Result()
	if err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}

	if result.(int64) != 1 {
		slog.Warn("按键锁: 锁不存在或已被其他实例持有", "key", key, "instance", r.instanceID)
	}
	return nil
}
