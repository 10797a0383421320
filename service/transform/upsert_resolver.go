/*
 * @module service/transform/upsert_resolver
 * @description Upsert冲突解决器，将新计算的输出记录与外部已有记录按策略合并
 * @architecture 策略模式 - update/merge/skip/error四种冲突解决策略
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 复合键提取 -> 外部回调查询 -> 策略解决 -> 返回记录与动作
 * @rules 唯一字段缺失即校验失败；查询回调出错时中止Upsert而非视为未找到
 * @refs merge_resolver.go, types.go
 */

package transform

import (
	"context"
	"fmt"
	"log/slog"
)

// UpsertResult Upsert解决结果，Existing为解决前查询到的已有记录（未命中时为nil）
type UpsertResult struct {
	Record   map[string]interface{} `json:"record"`
	Action   UpsertAction           `json:"action"`
	Key      CompositeKey           `json:"key"`
	Existing map[string]interface{} `json:"existing,omitempty"`
}

// UpsertResolver Upsert冲突解决器
type UpsertResolver struct {
	merger *MergeResolver
}

// NewUpsertResolver 创建Upsert冲突解决器
func NewUpsertResolver() *UpsertResolver {
	return &UpsertResolver{merger: NewMergeResolver()}
}

// ExtractKey 从输出记录中提取复合唯一键，任一唯一字段缺失返回ValidationError
func (ur *UpsertResolver) ExtractKey(output map[string]interface{}, config UpsertConfig) (CompositeKey, error) {
	if len(config.UniqueFields) == 0 {
		return CompositeKey{}, &ValidationError{
			Field:   "upsert.unique_fields",
			Message: "启用Upsert时唯一字段不能为空",
		}
	}

	key := CompositeKey{
		Fields: make([]string, 0, len(config.UniqueFields)),
		Values: make([]interface{}, 0, len(config.UniqueFields)),
	}
	for _, field := range config.UniqueFields {
		value, found := GetPath(output, field)
		if !found {
			return CompositeKey{}, &ValidationError{
				Field:   field,
				Message: "输出记录缺少唯一字段",
			}
		}
		key.Fields = append(key.Fields, field)
		key.Values = append(key.Values, value)
	}
	return key, nil
}

// Resolve 将输出记录与已有记录按冲突策略解决。
// lookup为调用方提供的按复合键查询回调，查询失败中止整个Upsert步骤。
func (ur *UpsertResolver) Resolve(
	ctx context.Context,
	output map[string]interface{},
	config UpsertConfig,
	lookup LookupFunc,
) (*UpsertResult, error) {

	key, err := ur.ExtractKey(output, config)
	if err != nil {
		return nil, err
	}

	var existing map[string]interface{}
	var found bool
	if lookup != nil {
		existing, found, err = lookup(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("查询已有记录失败: %w", err)
		}
	}

	if !found {
		return &UpsertResult{Record: output, Action: ActionCreated, Key: key}, nil
	}

	slog.Debug("Upsert命中已有记录", "key_fields", key.Fields, "key_values", key.Values,
		"resolution", config.ConflictResolution)

	switch config.ConflictResolution {
	case ConflictUpdate:
		// 两侧共享相同键值，整体覆盖不破坏唯一键身份
		return &UpsertResult{Record: output, Action: ActionUpdated, Key: key, Existing: existing}, nil

	case ConflictMerge:
		strategy := config.MergeStrategy
		if strategy == "" {
			strategy = MergeShallow
		}
		merged := ur.merger.Merge(existing, output, strategy)
		return &UpsertResult{Record: merged, Action: ActionMerged, Key: key, Existing: existing}, nil

	case ConflictSkip:
		return &UpsertResult{Record: existing, Action: ActionSkipped, Key: key, Existing: existing}, nil

	case ConflictError:
		return nil, &UpsertConflictError{Key: key}

	default:
		return nil, &ValidationError{
			Field:   "upsert.conflict_resolution",
			Message: fmt.Sprintf("未知的冲突解决策略: %s", config.ConflictResolution),
		}
	}
}
