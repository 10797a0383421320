/*
 * @module service/transform/types
 * @description 转换引擎核心类型定义，包含字段映射、值映射、Upsert配置和变更事件等值对象
 * @architecture 领域模型 - 所有实体为单次调用内构造的不可变值对象
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 配置解析 -> 映射求值 -> Upsert解决 -> 变更事件生成
 * @rules 映射顺序语义化（后写覆盖），值映射表保持插入顺序
 * @refs evaluator.go, upsert_resolver.go, change_diff.go
 */

package transform

import (
	"context"
	"encoding/json"
	"time"
)

// TransformationType 字段映射转换类型
type TransformationType string

const (
	TransformDirect          TransformationType = "direct"            // 直接传递
	TransformTemplate        TransformationType = "template"          // 模板替换
	TransformFunction        TransformationType = "function"          // 自定义函数
	TransformValueMapping    TransformationType = "value_mapping"     // 值映射查表
	TransformSubChildMerge   TransformationType = "sub_child_merge"   // 子树合并
	TransformSubChildReplace TransformationType = "sub_child_replace" // 子树替换
	TransformAggregation     TransformationType = "aggregation"       // 数组聚合
	TransformConditional     TransformationType = "conditional"       // 条件写入
)

// FieldMapping 字段映射规则，source为空仅允许常量/系统字段映射
type FieldMapping struct {
	Source         string             `json:"source"`
	Target         string             `json:"target"`
	Transformation TransformationType `json:"transformation"`
	Template       string             `json:"template,omitempty"`
	CustomFunction string             `json:"custom_function,omitempty"`
	ValueMappingID string             `json:"value_mapping_id,omitempty"`
	Aggregation    string             `json:"aggregation,omitempty"` // sum/count/min/max/concat
	Condition      string             `json:"condition,omitempty"`   // conditional类型的判断表达式
	Value          interface{}        `json:"value,omitempty"`       // 常量映射的固定值
	Active         bool               `json:"active"`
}

// UnmarshalJSON 反序列化时active缺省为true，仅显式false才停用映射
func (fm *FieldMapping) UnmarshalJSON(data []byte) error {
	type alias FieldMapping
	aux := alias{Active: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*fm = FieldMapping(aux)
	return nil
}

// ValueMappingType 值映射匹配策略
type ValueMappingType string

const (
	MatchExact    ValueMappingType = "exact"
	MatchRegex    ValueMappingType = "regex"
	MatchRange    ValueMappingType = "range"
	MatchContains ValueMappingType = "contains"
	MatchPrefix   ValueMappingType = "prefix"
	MatchSuffix   ValueMappingType = "suffix"
)

// ValueMappingEntry 值映射表条目，切片表示保证插入顺序即匹配顺序
type ValueMappingEntry struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// ValueMapping 可复用的标量查表映射
type ValueMapping struct {
	ID            string              `json:"id"`
	Type          ValueMappingType    `json:"type"`
	Mappings      []ValueMappingEntry `json:"mappings"`
	DefaultValue  interface{}         `json:"default_value,omitempty"`
	CaseSensitive bool                `json:"case_sensitive"`
}

// ConflictResolution Upsert冲突解决策略
type ConflictResolution string

const (
	ConflictUpdate ConflictResolution = "update" // 新记录整体覆盖
	ConflictMerge  ConflictResolution = "merge"  // 按合并策略合并
	ConflictSkip   ConflictResolution = "skip"   // 保留已有记录
	ConflictError  ConflictResolution = "error"  // 冲突即报错
)

// MergeStrategy 子树/记录合并策略
type MergeStrategy string

const (
	MergeShallow MergeStrategy = "shallow"
	MergeDeep    MergeStrategy = "deep"
)

// UpsertConfig Upsert配置，UniqueFields为组成复合键的路径有序集合
type UpsertConfig struct {
	Enabled            bool               `json:"enabled"`
	UniqueFields       []string           `json:"unique_fields"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
	MergeStrategy      MergeStrategy      `json:"merge_strategy,omitempty"`
}

// UpsertAction Upsert解决结果动作
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
	ActionMerged  UpsertAction = "merged"
	ActionSkipped UpsertAction = "skipped"
)

// ChangeEventConfig 变更事件配置
type ChangeEventConfig struct {
	Enabled          bool   `json:"enabled"`
	EventType        string `json:"event_type"`
	IncludeOldValues bool   `json:"include_old_values"`
	IncludeMetadata  bool   `json:"include_metadata"`
	// DeepDiff 为true时递归比较嵌套对象并以点分路径报告叶子变更，
	// 默认保持顶层浅比较
	DeepDiff bool `json:"deep_diff,omitempty"`
}

// ChangeOperation 字段变更操作类型
type ChangeOperation string

const (
	OperationAdd    ChangeOperation = "add"
	OperationUpdate ChangeOperation = "update"
	OperationDelete ChangeOperation = "delete"
)

// FieldChange 单字段变更明细
type FieldChange struct {
	Field     string          `json:"field"`
	OldValue  interface{}     `json:"old_value,omitempty"`
	NewValue  interface{}     `json:"new_value,omitempty"`
	Operation ChangeOperation `json:"operation"`
}

// ChangeEventData 变更事件载荷
type ChangeEventData struct {
	New     map[string]interface{} `json:"new"`
	Old     map[string]interface{} `json:"old,omitempty"`
	Changes []FieldChange          `json:"changes"`
}

// ChangeEventMetadata 变更事件元信息
type ChangeEventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Source        string `json:"source,omitempty"`
	Version       string `json:"version,omitempty"`
}

// ChangeEvent 实体状态变更事件，供下游队列/主题客户端序列化发布
type ChangeEvent struct {
	ID        string               `json:"id"`
	EntityID  string               `json:"entity_id"`
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	Data      ChangeEventData      `json:"data"`
	Metadata  *ChangeEventMetadata `json:"metadata,omitempty"`
}

// SystemFields 求值结束后原样附加的系统字段
type SystemFields struct {
	ProcessingTime *time.Time `json:"processing_time,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	EntityType     string     `json:"entity_type,omitempty"`
}

// CompositeKey 复合唯一键，字段顺序与UniqueFields一致
type CompositeKey struct {
	Fields []string      `json:"fields"`
	Values []interface{} `json:"values"`
}

// LookupFunc 外部提供的按复合键查询已有记录的回调。
// found为false表示确认不存在；err非nil时中止Upsert步骤，不会被当作未找到。
type LookupFunc func(ctx context.Context, key CompositeKey) (record map[string]interface{}, found bool, err error)

// WarningKind 求值告警类别
type WarningKind string

const (
	WarnTransformation       WarningKind = "transformation"
	WarnUnresolvedReference  WarningKind = "unresolved_reference"
	WarnInvalidConfiguration WarningKind = "invalid_configuration"
)

// Warning 单次调用内收集的非致命告警
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Target  string      `json:"target,omitempty"`
	Message string      `json:"message"`
}

// TransformRequest 单次转换调用的全部输入
type TransformRequest struct {
	Input         map[string]interface{} `json:"input"`
	FieldMappings []FieldMapping         `json:"field_mappings"`
	ValueMappings []ValueMapping         `json:"value_mappings,omitempty"`
	Upsert        *UpsertConfig          `json:"upsert,omitempty"`
	ChangeEvent   *ChangeEventConfig     `json:"change_event,omitempty"`
	SystemFields  *SystemFields          `json:"system_fields,omitempty"`
	EntityID      string                 `json:"entity_id,omitempty"`
	Strict        bool                   `json:"strict,omitempty"`
	Lookup        LookupFunc             `json:"-"`
}

// TransformResult 单次转换调用的输出
type TransformResult struct {
	Output   map[string]interface{} `json:"output"`
	Record   map[string]interface{} `json:"record"`
	Action   UpsertAction           `json:"action,omitempty"`
	Event    *ChangeEvent           `json:"event,omitempty"`
	Warnings []Warning              `json:"warnings,omitempty"`
}
