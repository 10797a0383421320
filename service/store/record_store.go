/*
 * @module service/store/record_store
 * @description 记录存储接口与内存实现，为Upsert提供按复合键的查询与保存能力
 * @architecture 存储层 - 接口抽象，内存实现用于测试与CLI，Redis实现用于多实例场景
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow Upsert查询回调 -> Lookup -> 冲突解决 -> Save写回
 * @rules 复合键按字段名与序列化值编码，字段顺序参与编码结果
 * @dependencies encoding/json
 * @refs service/transform/upsert_resolver.go, redis_store.go
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"transform-service/service/transform"
)

// RecordStore 按复合键访问记录的存储接口
type RecordStore interface {
	// Lookup 按复合键查询记录，found为false表示确认不存在
	Lookup(ctx context.Context, key transform.CompositeKey) (map[string]interface{}, bool, error)
	// Save 按复合键保存记录，已存在则整体覆盖
	Save(ctx context.Context, key transform.CompositeKey, record map[string]interface{}) error
	// Close 释放底层连接
	Close() error
}

// EncodeKey 将复合键编码为稳定的字符串
func EncodeKey(key transform.CompositeKey) string {
	parts := make([]string, 0, len(key.Fields))
	for i, field := range key.Fields {
		value, _ := json.Marshal(key.Values[i])
		parts = append(parts, fmt.Sprintf("%s=%s", field, value))
	}
	return strings.Join(parts, "|")
}

// MemoryStore 内存记录存储
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[string]map[string]interface{}
}

// NewMemoryStore 创建内存记录存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]interface{})}
}

// Lookup 按复合键查询记录
func (s *MemoryStore) Lookup(_ context.Context, key transform.CompositeKey) (map[string]interface{}, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, found := s.records[EncodeKey(key)]
	if !found {
		return nil, false, nil
	}

	// 返回拷贝，避免调用方修改存储内部状态
	clone := make(map[string]interface{}, len(record))
	for k, v := range record {
		clone[k] = v
	}
	return clone, true, nil
}

// Save 保存记录
func (s *MemoryStore) Save(_ context.Context, key transform.CompositeKey, record map[string]interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	clone := make(map[string]interface{}, len(record))
	for k, v := range record {
		clone[k] = v
	}
	s.records[EncodeKey(key)] = clone
	return nil
}

// Size 返回存储中的记录数
func (s *MemoryStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}

// Close 内存存储无需释放资源
func (s *MemoryStore) Close() error {
	return nil
}

// LookupFunc 将存储适配为Upsert的查询回调
func LookupFunc(s RecordStore) transform.LookupFunc {
	return func(ctx context.Context, key transform.CompositeKey) (map[string]interface{}, bool, error) {
		return s.Lookup(ctx, key)
	}
}
