/*
 * @module service/mapping_config/loader
 * @description 映射配置文档的加载与校验，先做JSON Schema结构校验再做语义校验
 * @architecture 配置层 - 内嵌Schema，配置以显式参数传入引擎而非进程级注册表
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow Schema校验 -> 反序列化 -> 引用完整性与脚本语法校验
 * @rules 结构非法即拒绝；值映射引用缺失归为告警级问题，由求值期处理
 * @dependencies github.com/santhosh-tekuri/jsonschema/v6
 * @refs schema.json, service/transform/types.go
 */

package mapping_config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"transform-service/service/transform"
)

//go:embed schema.json
var configSchemaJSON []byte

// TransformConfig 一次转换所需的完整映射配置文档
type TransformConfig struct {
	EntityType    string                       `json:"entity_type,omitempty"`
	FieldMappings []transform.FieldMapping     `json:"field_mappings"`
	ValueMappings []transform.ValueMapping     `json:"value_mappings,omitempty"`
	Upsert        *transform.UpsertConfig      `json:"upsert,omitempty"`
	ChangeEvent   *transform.ChangeEventConfig `json:"change_event,omitempty"`
}

// Loader 映射配置加载器，持有编译后的Schema
type Loader struct {
	schema *jsonschema.Schema
}

// NewLoader 创建映射配置加载器
func NewLoader() (*Loader, error) {
	schemaValue, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("解析内嵌Schema失败: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mapping-config.schema.json", schemaValue); err != nil {
		return nil, fmt.Errorf("注册Schema资源失败: %w", err)
	}

	compiled, err := compiler.Compile("mapping-config.schema.json")
	if err != nil {
		return nil, fmt.Errorf("编译Schema失败: %w", err)
	}

	return &Loader{schema: compiled}, nil
}

// Load 校验并反序列化映射配置文档
func (l *Loader) Load(data []byte) (*TransformConfig, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &transform.ValidationError{Message: fmt.Sprintf("配置不是合法JSON: %v", err)}
	}

	if err := l.schema.Validate(instance); err != nil {
		return nil, &transform.ValidationError{Message: fmt.Sprintf("配置Schema校验失败: %v", err)}
	}

	var config TransformConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &transform.ValidationError{Message: fmt.Sprintf("配置反序列化失败: %v", err)}
	}

	return &config, nil
}

// LoadFile 从文件加载映射配置
func (l *Loader) LoadFile(path string) (*TransformConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return l.Load(data)
}

// ValidateSemantics 语义级校验：脚本语法、值映射引用、Upsert约束
func (l *Loader) ValidateSemantics(config *TransformConfig, scripts *transform.ScriptExecutor) []error {
	var problems []error

	vmIDs := make(map[string]bool, len(config.ValueMappings))
	for _, vm := range config.ValueMappings {
		if vmIDs[vm.ID] {
			problems = append(problems, &transform.ValidationError{
				Field:   "value_mappings",
				Message: fmt.Sprintf("值映射ID重复: %s", vm.ID),
			})
		}
		vmIDs[vm.ID] = true
	}

	for i, fm := range config.FieldMappings {
		switch fm.Transformation {
		case transform.TransformFunction:
			if fm.CustomFunction == "" {
				problems = append(problems, &transform.ValidationError{
					Field:   fmt.Sprintf("field_mappings[%d].custom_function", i),
					Message: "function转换必须提供脚本",
				})
				continue
			}
			if err := scripts.Validate(fm.CustomFunction); err != nil {
				problems = append(problems, &transform.ValidationError{
					Field:   fmt.Sprintf("field_mappings[%d].custom_function", i),
					Message: err.Error(),
				})
			}
		case transform.TransformValueMapping:
			if !vmIDs[fm.ValueMappingID] {
				problems = append(problems, &transform.ValidationError{
					Field:   fmt.Sprintf("field_mappings[%d].value_mapping_id", i),
					Message: fmt.Sprintf("引用的值映射不存在: %s", fm.ValueMappingID),
				})
			}
		case transform.TransformAggregation:
			if fm.Aggregation == "" {
				problems = append(problems, &transform.ValidationError{
					Field:   fmt.Sprintf("field_mappings[%d].aggregation", i),
					Message: "aggregation转换必须指定聚合函数",
				})
			}
		case transform.TransformConditional:
			if fm.Condition == "" {
				problems = append(problems, &transform.ValidationError{
					Field:   fmt.Sprintf("field_mappings[%d].condition", i),
					Message: "conditional转换必须提供条件表达式",
				})
			}
		}
	}

	if config.Upsert != nil && config.Upsert.Enabled && len(config.Upsert.UniqueFields) == 0 {
		problems = append(problems, &transform.ValidationError{
			Field:   "upsert.unique_fields",
			Message: "启用Upsert时唯一字段不能为空",
		})
	}

	return problems
}
