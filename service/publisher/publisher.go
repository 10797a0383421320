/*
 * @module service/publisher/publisher
 * @description 变更事件发布接口与内存实现，转换引擎产出的变更事件经此分发
 * @architecture 适配器模式 - 统一发布接口，具体传输由Kafka/MQTT适配器实现
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 引擎产出变更事件 -> Publish -> 序列化 -> 下游传输
 * @rules 发布失败不影响转换结果，由调用方决定重试策略
 * @dependencies encoding/json
 * @refs service/transform/change_diff.go, kafka_publisher.go, mqtt_publisher.go
 */

package publisher

import (
	"context"
	"sync"

	"transform-service/service/transform"
)

// EventPublisher 变更事件发布接口
type EventPublisher interface {
	// Publish 发布一条变更事件
	Publish(ctx context.Context, event *transform.ChangeEvent) error
	// Close 释放底层连接
	Close() error
}

// MemoryPublisher 内存发布器，收集事件供测试与CLI输出使用
type MemoryPublisher struct {
	mutex  sync.Mutex
	events []*transform.ChangeEvent
}

// NewMemoryPublisher 创建内存发布器
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 记录事件到内存
func (p *MemoryPublisher) Publish(_ context.Context, event *transform.ChangeEvent) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events 返回已发布事件的快照
func (p *MemoryPublisher) Events() []*transform.ChangeEvent {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	snapshot := make([]*transform.ChangeEvent, len(p.events))
	copy(snapshot, p.events)
	return snapshot
}

// Close 内存发布器无需释放资源
func (p *MemoryPublisher) Close() error {
	return nil
}
