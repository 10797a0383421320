/*
 * @module service/keylock/keylock
 * @description 按键互斥锁，Upsert要求同一复合键同一时刻只有一个写入方
 * @architecture 工具层 - 接口抽象，进程内实现用于单实例，Redis实现用于多实例
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 提取复合键 -> TryLock -> 转换写入 -> Unlock
 * @rules 锁粒度为复合键编码值，不同键之间互不阻塞
 * @dependencies sync
 * @refs service/transform/upsert_resolver.go, redis_lock.go
 */

package keylock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyLock 按键互斥锁接口
type KeyLock interface {
	// TryLock 尝试获取指定键的锁，已被持有时返回false
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock 释放指定键的锁
	Unlock(ctx context.Context, key string) error
}

// LocalKeyLock 进程内按键互斥锁
type LocalKeyLock struct {
	mutex sync.Mutex
	held  map[string]bool
}

// NewLocalKeyLock 创建进程内按键互斥锁
func NewLocalKeyLock() *LocalKeyLock {
	return &LocalKeyLock{held: make(map[string]bool)}
}

// TryLock 尝试获取锁，进程内实现忽略TTL
func (l *LocalKeyLock) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

// Unlock 释放锁
func (l *LocalKeyLock) Unlock(_ context.Context, key string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.held[key] {
		return fmt.Errorf("锁未被持有: %s", key)
	}
	delete(l.held, key)
	return nil
}

// WithLock 在指定键的锁保护下执行函数，获取失败时返回错误
func WithLock(ctx context.Context, lock KeyLock, key string, ttl time.Duration, fn func() error) error {
	locked, err := lock.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("获取锁失败: %w", err)
	}
	if !locked {
		return fmt.Errorf("键已被其他写入方锁定: %s", key)
	}

	defer func() {
		_ = lock.Unlock(ctx, key)
	}()

	return fn()
}
