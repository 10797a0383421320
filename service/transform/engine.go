/*
 * @module service/transform/engine
 * @description 转换引擎编排器，串联字段映射求值、Upsert冲突解决和变更事件生成
 * @architecture 管道编排 - 无共享可变状态的纯计算，唯一挂起点为外部查询回调
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 映射求值 -> (可选)Upsert解决 -> (可选)变更差分 -> 结果返回
 * @rules 同一调用内映射严格顺序执行；不同记录的调用可完全并行；引擎不按键串行化
 * @refs evaluator.go, upsert_resolver.go, change_diff.go
 */

package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TransformEngine 转换引擎，按调用编排各组件，自身不持有任何调用间状态
type TransformEngine struct {
	evaluator *Evaluator
	upserter  *UpsertResolver
	differ    *DiffGenerator
}

// NewTransformEngine 创建转换引擎
func NewTransformEngine() *TransformEngine {
	return &TransformEngine{
		evaluator: NewEvaluator(),
		upserter:  NewUpsertResolver(),
		differ:    NewDiffGenerator(),
	}
}

// Evaluator 返回底层求值器（供配置校验复用）
func (te *TransformEngine) Evaluator() *Evaluator {
	return te.evaluator
}

// Transform 执行一次完整的转换调用：求值 -> Upsert -> 变更差分
func (te *TransformEngine) Transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	start := time.Now()

	result, err := te.transform(ctx, req)
	transformDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		transformTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	transformTotal.WithLabelValues("ok").Inc()
	for _, w := range result.Warnings {
		transformWarnings.WithLabelValues(string(w.Kind)).Inc()
	}

	slog.Debug("转换调用完成",
		"entity_id", req.EntityID,
		"action", result.Action,
		"warnings", len(result.Warnings),
		"duration", time.Since(start))

	return result, nil
}

func (te *TransformEngine) transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	if req.Input == nil {
		return nil, &ValidationError{Field: "input", Message: "输入记录不能为空"}
	}

	// 1. 字段映射求值
	output, warnings, err := te.evaluator.Evaluate(
		req.Input, req.FieldMappings, req.ValueMappings, req.SystemFields, req.Strict)
	if err != nil {
		return nil, err
	}

	result := &TransformResult{
		Output:   output,
		Record:   output,
		Warnings: warnings,
	}

	// 2. Upsert冲突解决
	var oldRecord map[string]interface{}
	if req.Upsert != nil && req.Upsert.Enabled {
		resolved, err := te.upserter.Resolve(ctx, output, *req.Upsert, req.Lookup)
		if err != nil {
			return nil, fmt.Errorf("upsert解决失败: %w", err)
		}
		result.Record = resolved.Record
		result.Action = resolved.Action
		upsertActions.WithLabelValues(string(resolved.Action)).Inc()

		// 差分的旧状态以解决前的已有记录为准
		oldRecord = resolved.Existing
	}

	// 3. 变更事件生成
	if req.ChangeEvent != nil && req.ChangeEvent.Enabled {
		metadata := &ChangeEventMetadata{Source: "transform-service"}
		if req.SystemFields != nil && req.SystemFields.CorrelationID != "" {
			metadata.CorrelationID = req.SystemFields.CorrelationID
		} else {
			metadata.CorrelationID = uuid.NewString()
		}

		event, err := te.differ.Diff(oldRecord, result.Record, req.EntityID, *req.ChangeEvent, metadata)
		if err != nil {
			return nil, fmt.Errorf("变更差分失败: %w", err)
		}
		result.Event = event
		changeEvents.Inc()
	}

	return result, nil
}
