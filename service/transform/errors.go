/*
 * @module service/transform/errors
 * @description 转换引擎错误分类定义，区分配置错误、转换错误、冲突错误和引用缺失
 * @architecture 错误分层 - 类型化错误支持errors.As判定，告警与错误分离
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 错误产生 -> 分类包装 -> 调用方按类型处理
 * @rules 非严格模式下单个映射失败仅降级为告警，Upsert与Diff失败始终上抛
 * @refs types.go, evaluator.go
 */

package transform

import "fmt"

// ValidationError 配置校验错误（映射/值映射格式非法、唯一字段缺失等）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("配置校验失败: 字段 %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("配置校验失败: %s", e.Message)
}

// TransformationError 自定义函数或转换执行失败，Target标识出错映射的目标路径
type TransformationError struct {
	Target string
	Cause  error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("转换执行失败: 目标 %s: %v", e.Target, e.Cause)
}

func (e *TransformationError) Unwrap() error {
	return e.Cause
}

// UpsertConflictError Upsert策略为error时触发的冲突错误，携带冲突的复合键值
type UpsertConflictError struct {
	Key CompositeKey
}

func (e *UpsertConflictError) Error() string {
	return fmt.Sprintf("记录冲突: 复合键 %v=%v 已存在", e.Key.Fields, e.Key.Values)
}

// UnresolvedReferenceError 值映射ID无法解析，作为非致命告警处理
type UnresolvedReferenceError struct {
	ValueMappingID string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("值映射引用无法解析: %s", e.ValueMappingID)
}
