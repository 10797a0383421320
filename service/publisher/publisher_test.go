/*
 * @module service/publisher/publisher_test
 * @description 内存发布器与接口实现的单元测试
 * @architecture 测试层
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 构造事件 -> Publish -> 断言收集结果
 * @rules 仅测试内存实现，Kafka/MQTT适配器依赖外部broker不在单测范围
 * @dependencies github.com/stretchr/testify
 * @refs publisher.go
 */

package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transform-service/service/transform"
)

func TestMemoryPublisher(t *testing.T) {
	t.Run("发布并收集事件", func(t *testing.T) {
		p := NewMemoryPublisher()
		ctx := context.Background()

		event1 := &transform.ChangeEvent{ID: "e1", EntityID: "c-1", EventType: "customer.changed"}
		event2 := &transform.ChangeEvent{ID: "e2", EntityID: "c-2", EventType: "customer.changed"}

		require.NoError(t, p.Publish(ctx, event1))
		require.NoError(t, p.Publish(ctx, event2))

		events := p.Events()
		require.Len(t, events, 2)
		assert.Equal(t, "e1", events[0].ID)
		assert.Equal(t, "e2", events[1].ID)
	})

	t.Run("快照不受后续发布影响", func(t *testing.T) {
		p := NewMemoryPublisher()
		ctx := context.Background()

		require.NoError(t, p.Publish(ctx, &transform.ChangeEvent{ID: "e1"}))
		snapshot := p.Events()
		require.NoError(t, p.Publish(ctx, &transform.ChangeEvent{ID: "e2"}))

		assert.Len(t, snapshot, 1)
		assert.Len(t, p.Events(), 2)
	})

	t.Run("实现发布接口", func(t *testing.T) {
		var _ EventPublisher = NewMemoryPublisher()
		var _ EventPublisher = (*KafkaPublisher)(nil)
		var _ EventPublisher = (*MQTTPublisher)(nil)
	})
}
