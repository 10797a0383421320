/*
 * @module service/store/redis_store
 * @description Redis记录存储实现，多实例部署时共享Upsert查询视图
 * @architecture 存储层 - 记录以JSON字符串存入Redis，键为复合键编码加前缀
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 连接Redis -> GET查询/SET保存 -> Close
 * @rules redis.Nil视为记录不存在而非错误；TTL为0表示不过期
 * @dependencies github.com/go-redis/redis/v8, encoding/json
 * @refs record_store.go, service/transform/upsert_resolver.go
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"transform-service/service/transform"
)

const redisKeyPrefix = "transform:record:"

// RedisStoreConfig Redis记录存储配置
type RedisStoreConfig struct {
	Addr     string        `json:"addr"`     // Redis地址
	Password string        `json:"password"` // 密码
	DB       int           `json:"db"`       // 数据库编号
	TTL      time.Duration `json:"ttl"`      // 记录过期时间，0表示不过期
}

// RedisStore Redis记录存储
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建Redis记录存储并验证连接
func NewRedisStore(config *RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	slog.Info("Redis记录存储初始化成功", "addr", config.Addr, "db", config.DB)
	return &RedisStore{client: client, ttl: config.TTL}, nil
}

// Lookup 按复合键查询记录
func (s *RedisStore) Lookup(ctx context.Context, key transform.CompositeKey) (map[string]interface{}, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+EncodeKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Redis查询记录失败: %w", err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, false, fmt.Errorf("记录反序列化失败: %w", err)
	}
	return record, true, nil
}

// Save 保存记录
func (s *RedisStore) Save(ctx context.Context, key transform.CompositeKey, record map[string]interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("记录序列化失败: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+EncodeKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("Redis保存记录失败: %w", err)
	}
	return nil
}

// Client 返回底层Redis客户端，供按键锁等组件复用连接
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close 关闭Redis客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}
