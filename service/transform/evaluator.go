/*
 * @module service/transform/evaluator
 * @description 字段映射求值器，按序应用映射规则将输入记录转换为输出记录
 * @architecture 策略模式 - 八种转换类型分派，匹配与合并委托给对应组件
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 配置校验 -> 逐映射求值 -> 目标路径写入 -> 系统字段附加
 * @rules 映射按列表顺序应用，同目标后写覆盖先写；非严格模式下单映射失败仅记告警
 * @dependencies github.com/spf13/cast
 * @refs value_matcher.go, merge_resolver.go, script_executor.go, path.go
 */

package transform

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// templatePattern 模板占位符格式 ${path}
var templatePattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Evaluator 字段映射求值器
type Evaluator struct {
	matcher *ValueMatcher
	merger  *MergeResolver
	scripts *ScriptExecutor
}

// NewEvaluator 创建字段映射求值器
func NewEvaluator() *Evaluator {
	return &Evaluator{
		matcher: NewValueMatcher(),
		merger:  NewMergeResolver(),
		scripts: NewScriptExecutor(),
	}
}

// Scripts 返回底层脚本执行器（供配置校验复用编译缓存）
func (e *Evaluator) Scripts() *ScriptExecutor {
	return e.scripts
}

// Evaluate 按序应用字段映射，返回输出记录和求值过程中收集的告警。
// strict为true时首个映射失败即中止整个求值。
func (e *Evaluator) Evaluate(
	input map[string]interface{},
	fieldMappings []FieldMapping,
	valueMappings []ValueMapping,
	systemFields *SystemFields,
	strict bool,
) (map[string]interface{}, []Warning, error) {

	if err := e.validateMappings(fieldMappings); err != nil {
		return nil, nil, err
	}

	vmByID := make(map[string]ValueMapping, len(valueMappings))
	for _, vm := range valueMappings {
		vmByID[vm.ID] = vm
	}

	output := make(map[string]interface{})
	var warnings []Warning

	for _, mapping := range fieldMappings {
		if !mapping.Active {
			continue
		}

		value, write, err := e.applyMapping(input, output, mapping, vmByID, &warnings)
		if err != nil {
			if strict {
				return nil, warnings, err
			}
			// 非严格模式：目标路径不写入，失败降级为告警
			warnings = append(warnings, Warning{
				Kind:    WarnTransformation,
				Target:  mapping.Target,
				Message: err.Error(),
			})
			slog.Warn("字段映射执行失败，跳过该映射", "target", mapping.Target, "error", err)
			continue
		}

		if write {
			output = SetPath(output, mapping.Target, value)
		}
	}

	output = e.appendSystemFields(output, systemFields)

	return output, warnings, nil
}

// validateMappings 校验映射配置的结构性约束
func (e *Evaluator) validateMappings(mappings []FieldMapping) error {
	for i, m := range mappings {
		if m.Target == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("field_mappings[%d].target", i),
				Message: "目标路径不能为空",
			}
		}
		if m.Source == "" && m.Value == nil &&
			m.Transformation != TransformTemplate && m.Transformation != TransformFunction {
			return &ValidationError{
				Field:   fmt.Sprintf("field_mappings[%d].source", i),
				Message: "源路径为空仅允许常量映射或模板/函数转换",
			}
		}
	}
	return nil
}

// applyMapping 应用单条映射，返回待写入的值和是否写入的标记
func (e *Evaluator) applyMapping(
	input, output map[string]interface{},
	mapping FieldMapping,
	vmByID map[string]ValueMapping,
	warnings *[]Warning,
) (interface{}, bool, error) {

	sourceValue, sourceFound := GetPath(input, mapping.Source)

	switch mapping.Transformation {
	case TransformDirect:
		// 常量映射：source为空时写入固定值
		if mapping.Source == "" {
			return mapping.Value, true, nil
		}
		// null原样传递，源路径缺失则不写入目标
		if !sourceFound {
			return nil, false, nil
		}
		return sourceValue, true, nil

	case TransformTemplate:
		return e.renderTemplate(input, mapping.Template), true, nil

	case TransformFunction:
		result, err := e.scripts.Execute(mapping.CustomFunction, sourceValue, input)
		if err != nil {
			return nil, false, &TransformationError{Target: mapping.Target, Cause: err}
		}
		return result, true, nil

	case TransformValueMapping:
		vm, exists := vmByID[mapping.ValueMappingID]
		if !exists {
			// 引用缺失非致命：原值透传并记录告警
			refErr := &UnresolvedReferenceError{ValueMappingID: mapping.ValueMappingID}
			*warnings = append(*warnings, Warning{
				Kind:    WarnUnresolvedReference,
				Target:  mapping.Target,
				Message: refErr.Error(),
			})
			slog.Warn("值映射引用缺失，原值透传", "target", mapping.Target, "value_mapping_id", mapping.ValueMappingID)
			return sourceValue, true, nil
		}
		return e.matcher.Match(sourceValue, vm), true, nil

	case TransformSubChildMerge:
		if !sourceFound {
			return nil, false, nil
		}
		return e.mergeSubChild(output, mapping.Target, sourceValue), true, nil

	case TransformSubChildReplace:
		if !sourceFound {
			return nil, false, nil
		}
		return sourceValue, true, nil

	case TransformAggregation:
		result, err := e.aggregate(sourceValue, sourceFound, mapping)
		if err != nil {
			return nil, false, err
		}
		return result, true, nil

	case TransformConditional:
		matched, err := evaluateCondition(mapping.Condition, input)
		if err != nil {
			return nil, false, &TransformationError{Target: mapping.Target, Cause: err}
		}
		if !matched {
			return nil, false, nil
		}
		if mapping.Value != nil {
			return mapping.Value, true, nil
		}
		return sourceValue, true, nil

	default:
		return nil, false, &ValidationError{
			Field:   "transformation",
			Message: fmt.Sprintf("未知的转换类型: %s", mapping.Transformation),
		}
	}
}

// renderTemplate 替换模板中的${path}占位符，未解析路径替换为空串
func (e *Evaluator) renderTemplate(input map[string]interface{}, template string) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		value, found := GetPath(input, path)
		if !found || value == nil {
			return ""
		}
		return cast.ToString(value)
	})
}

// mergeSubChild 将源子树按浅合并语义并入输出中目标路径的当前子树
func (e *Evaluator) mergeSubChild(output map[string]interface{}, target string, sourceValue interface{}) interface{} {
	sourceObj, sourceIsObj := sourceValue.(map[string]interface{})
	if !sourceIsObj {
		// 数组和标量按原子值替换
		return sourceValue
	}

	existing, found := GetPath(output, target)
	existingObj, existingIsObj := existing.(map[string]interface{})
	if !found || !existingIsObj {
		return sourceObj
	}

	return e.merger.Merge(existingObj, sourceObj, MergeShallow)
}

// aggregate 对源路径处的数组应用命名归约
func (e *Evaluator) aggregate(sourceValue interface{}, sourceFound bool, mapping FieldMapping) (interface{}, error) {
	if !sourceFound {
		if mapping.Aggregation == "count" {
			return 0, nil
		}
		return nil, nil
	}

	arr, ok := sourceValue.([]interface{})
	if !ok {
		return nil, &TransformationError{
			Target: mapping.Target,
			Cause:  fmt.Errorf("聚合转换的源 %s 不是数组", mapping.Source),
		}
	}

	switch mapping.Aggregation {
	case "count":
		return len(arr), nil

	case "sum":
		var sum float64
		for _, item := range arr {
			if n, err := cast.ToFloat64E(item); err == nil {
				sum += n
			}
		}
		return sum, nil

	case "min", "max":
		var result *float64
		for _, item := range arr {
			n, err := cast.ToFloat64E(item)
			if err != nil {
				continue
			}
			if result == nil ||
				(mapping.Aggregation == "min" && n < *result) ||
				(mapping.Aggregation == "max" && n > *result) {
				result = &n
			}
		}
		if result == nil {
			return nil, nil
		}
		return *result, nil

	case "concat":
		parts := make([]string, 0, len(arr))
		for _, item := range arr {
			parts = append(parts, cast.ToString(item))
		}
		return strings.Join(parts, ","), nil

	default:
		return nil, &ValidationError{
			Field:   "aggregation",
			Message: fmt.Sprintf("未知的聚合函数: %s", mapping.Aggregation),
		}
	}
}

// appendSystemFields 求值完成后原样附加调用方指定的系统字段
func (e *Evaluator) appendSystemFields(output map[string]interface{}, fields *SystemFields) map[string]interface{} {
	if fields == nil {
		return output
	}
	if fields.ProcessingTime != nil {
		output = SetPath(output, "processed_at", *fields.ProcessingTime)
	}
	if fields.CorrelationID != "" {
		output = SetPath(output, "correlation_id", fields.CorrelationID)
	}
	if fields.EntityType != "" {
		output = SetPath(output, "entity_type", fields.EntityType)
	}
	return output
}

// evaluateCondition 评估条件表达式，支持IS NULL/IS NOT NULL/比较运算和AND连接
func evaluateCondition(condition string, input map[string]interface{}) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return false, fmt.Errorf("条件表达式为空")
	}

	for _, clause := range strings.Split(condition, " AND ") {
		matched, err := evaluateClause(strings.TrimSpace(clause), input)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// evaluateClause 评估单个条件子句
func evaluateClause(clause string, input map[string]interface{}) (bool, error) {
	if strings.HasSuffix(clause, "IS NOT NULL") {
		path := strings.TrimSpace(strings.TrimSuffix(clause, "IS NOT NULL"))
		value, found := GetPath(input, path)
		return found && value != nil, nil
	}

	if strings.HasSuffix(clause, "IS NULL") {
		path := strings.TrimSpace(strings.TrimSuffix(clause, "IS NULL"))
		value, found := GetPath(input, path)
		return !found || value == nil, nil
	}

	// 两字符运算符优先于单字符，避免>=被误拆为>
	for _, op := range []string{">=", "<=", "!=", ">", "<", "="} {
		idx := strings.Index(clause, op)
		if idx <= 0 {
			continue
		}

		path := strings.TrimSpace(clause[:idx])
		literal := strings.Trim(strings.TrimSpace(clause[idx+len(op):]), `'"`)
		value, found := GetPath(input, path)

		switch op {
		case "=":
			return found && cast.ToString(value) == literal, nil
		case "!=":
			return !found || cast.ToString(value) != literal, nil
		default:
			if !found {
				return false, nil
			}
			actual, errA := cast.ToFloat64E(value)
			expected, errB := cast.ToFloat64E(literal)
			if errA != nil || errB != nil {
				return false, fmt.Errorf("条件子句 %q 的数值比较失败", clause)
			}
			switch op {
			case ">":
				return actual > expected, nil
			case "<":
				return actual < expected, nil
			case ">=":
				return actual >= expected, nil
			case "<=":
				return actual <= expected, nil
			}
		}
	}

	return false, fmt.Errorf("无法解析的条件子句: %q", clause)
}
