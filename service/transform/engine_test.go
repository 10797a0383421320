/*
 * @module service/transform/engine_test
 * @description 转换引擎的集成测试，覆盖求值、Upsert与变更事件的完整管道
 * @architecture 集成测试 - 外部查询以回调桩模拟
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 构造完整请求 -> Transform -> 输出/动作/事件验证
 * @rules 引擎为纯计算，同一请求可重复调用且不受调用间状态影响
 * @dependencies testing, github.com/stretchr/testify/assert
 * @refs engine.go
 */

package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineTransform(t *testing.T) {
	engine := NewTransformEngine()
	ctx := context.Background()

	t.Run("输入为nil报错", func(t *testing.T) {
		_, err := engine.Transform(ctx, TransformRequest{})
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("仅求值", func(t *testing.T) {
		result, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{"name": "张三"},
			FieldMappings: []FieldMapping{
				{Source: "name", Target: "customer_name", Transformation: TransformDirect, Active: true},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "张三", result.Output["customer_name"])
		assert.Equal(t, result.Output, result.Record)
		assert.Empty(t, result.Action)
		assert.Nil(t, result.Event)
	})

	t.Run("完整管道", func(t *testing.T) {
		existing := map[string]interface{}{
			"customer_id": "c-1",
			"name":        "旧名字",
			"segment":     "retail",
		}
		lookup := func(_ context.Context, key CompositeKey) (map[string]interface{}, bool, error) {
			assert.Equal(t, []string{"customer_id"}, key.Fields)
			return existing, true, nil
		}

		result, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{
				"id":     "c-1",
				"name":   "新名字",
				"status": "A",
			},
			FieldMappings: []FieldMapping{
				{Source: "id", Target: "customer_id", Transformation: TransformDirect, Active: true},
				{Source: "name", Target: "name", Transformation: TransformDirect, Active: true},
				{Source: "status", Target: "state", Transformation: TransformValueMapping, ValueMappingID: "status", Active: true},
			},
			ValueMappings: []ValueMapping{{
				ID:       "status",
				Type:     MatchExact,
				Mappings: []ValueMappingEntry{{Key: "A", Value: "active"}},
			}},
			Upsert: &UpsertConfig{
				Enabled:            true,
				UniqueFields:       []string{"customer_id"},
				ConflictResolution: ConflictMerge,
				MergeStrategy:      MergeShallow,
			},
			ChangeEvent: &ChangeEventConfig{
				Enabled:          true,
				EventType:        "customer.changed",
				IncludeOldValues: true,
				IncludeMetadata:  true,
			},
			SystemFields: &SystemFields{CorrelationID: "corr-1"},
			EntityID:     "c-1",
			Lookup:       lookup,
		})
		require.NoError(t, err)

		// 求值结果
		assert.Equal(t, "active", result.Output["state"])
		// 浅合并保留旧记录独有键
		assert.Equal(t, ActionMerged, result.Action)
		assert.Equal(t, "新名字", result.Record["name"])
		assert.Equal(t, "retail", result.Record["segment"])
		// 变更事件以解决前的已有记录为旧状态
		require.NotNil(t, result.Event)
		assert.Equal(t, "customer.changed", result.Event.EventType)
		assert.Equal(t, "c-1", result.Event.EntityID)
		assert.Equal(t, existing, result.Event.Data.Old)
		require.NotNil(t, result.Event.Metadata)
		assert.Equal(t, "corr-1", result.Event.Metadata.CorrelationID)
		assert.NotEmpty(t, result.Event.Data.Changes)
	})

	t.Run("新建记录的事件全部为add", func(t *testing.T) {
		result, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{"id": "c-9", "name": "张三"},
			FieldMappings: []FieldMapping{
				{Source: "id", Target: "customer_id", Transformation: TransformDirect, Active: true},
				{Source: "name", Target: "name", Transformation: TransformDirect, Active: true},
			},
			Upsert: &UpsertConfig{
				Enabled:            true,
				UniqueFields:       []string{"customer_id"},
				ConflictResolution: ConflictUpdate,
			},
			ChangeEvent: &ChangeEventConfig{Enabled: true, EventType: "customer.created"},
			EntityID:    "c-9",
			Lookup:      fixedLookup(nil),
		})
		require.NoError(t, err)
		assert.Equal(t, ActionCreated, result.Action)
		require.NotNil(t, result.Event)
		for _, change := range result.Event.Data.Changes {
			assert.Equal(t, OperationAdd, change.Operation)
		}
	})

	t.Run("skip动作事件差分为空", func(t *testing.T) {
		existing := map[string]interface{}{"customer_id": "c-1", "name": "旧名字"}
		result, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{"id": "c-1", "name": "新名字"},
			FieldMappings: []FieldMapping{
				{Source: "id", Target: "customer_id", Transformation: TransformDirect, Active: true},
				{Source: "name", Target: "name", Transformation: TransformDirect, Active: true},
			},
			Upsert: &UpsertConfig{
				Enabled:            true,
				UniqueFields:       []string{"customer_id"},
				ConflictResolution: ConflictSkip,
			},
			ChangeEvent: &ChangeEventConfig{Enabled: true, EventType: "customer.changed"},
			EntityID:    "c-1",
			Lookup:      fixedLookup(existing),
		})
		require.NoError(t, err)
		assert.Equal(t, ActionSkipped, result.Action)
		assert.Equal(t, existing, result.Record)
		require.NotNil(t, result.Event)
		assert.Empty(t, result.Event.Data.Changes)
	})

	t.Run("upsert冲突错误透传", func(t *testing.T) {
		_, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{"id": "c-1"},
			FieldMappings: []FieldMapping{
				{Source: "id", Target: "customer_id", Transformation: TransformDirect, Active: true},
			},
			Upsert: &UpsertConfig{
				Enabled:            true,
				UniqueFields:       []string{"customer_id"},
				ConflictResolution: ConflictError,
			},
			Lookup: fixedLookup(map[string]interface{}{"customer_id": "c-1"}),
		})
		var cErr *UpsertConflictError
		assert.ErrorAs(t, err, &cErr)
	})

	t.Run("警告随结果返回", func(t *testing.T) {
		result, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{"status": "A"},
			FieldMappings: []FieldMapping{
				{Source: "status", Target: "state", Transformation: TransformValueMapping, ValueMappingID: "nope", Active: true},
			},
		})
		require.NoError(t, err)
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, WarnUnresolvedReference, result.Warnings[0].Kind)
	})

	t.Run("未启用变更事件时无事件", func(t *testing.T) {
		result, err := engine.Transform(ctx, TransformRequest{
			Input: map[string]interface{}{"a": 1},
			FieldMappings: []FieldMapping{
				{Source: "a", Target: "a", Transformation: TransformDirect, Active: true},
			},
			ChangeEvent: &ChangeEventConfig{Enabled: false},
		})
		require.NoError(t, err)
		assert.Nil(t, result.Event)
	})
}
