/*
 * @module service/transform/evaluator_test
 * @description 字段映射求值器的单元测试，覆盖八种转换类型、告警收集与严格模式
 * @architecture 单元测试 - 验证映射求值语义
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 构造输入与映射 -> Evaluate -> 输出与告警验证
 * @rules 映射顺序决定同目标的覆盖结果，非严格模式下失败降级为告警
 * @dependencies testing, github.com/stretchr/testify/assert
 * @refs evaluator.go
 */

package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalNoWarn(t *testing.T, input map[string]interface{}, mappings []FieldMapping, valueMappings []ValueMapping) map[string]interface{} {
	t.Helper()
	e := NewEvaluator()
	output, warnings, err := e.Evaluate(input, mappings, valueMappings, nil, false)
	require.NoError(t, err)
	require.Empty(t, warnings)
	return output
}

func TestEvaluateDirect(t *testing.T) {
	t.Run("字段重命名", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"name": "张三"},
			[]FieldMapping{{Source: "name", Target: "customer_name", Transformation: TransformDirect, Active: true}},
			nil)
		assert.Equal(t, map[string]interface{}{"customer_name": "张三"}, output)
	})

	t.Run("嵌套路径到嵌套路径", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"customer": map[string]interface{}{"id": "c-1"}},
			[]FieldMapping{{Source: "customer.id", Target: "ids.customer", Transformation: TransformDirect, Active: true}},
			nil)
		assert.Equal(t, "c-1", output["ids"].(map[string]interface{})["customer"])
	})

	t.Run("源缺失不写入目标", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"name": "张三"},
			[]FieldMapping{{Source: "missing", Target: "target", Transformation: TransformDirect, Active: true}},
			nil)
		_, exists := output["target"]
		assert.False(t, exists)
	})

	t.Run("显式null原样传递", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"score": nil},
			[]FieldMapping{{Source: "score", Target: "target", Transformation: TransformDirect, Active: true}},
			nil)
		value, exists := output["target"]
		assert.True(t, exists)
		assert.Nil(t, value)
	})

	t.Run("常量映射", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{},
			[]FieldMapping{{Target: "version", Transformation: TransformDirect, Value: "v2", Active: true}},
			nil)
		assert.Equal(t, "v2", output["version"])
	})

	t.Run("停用映射被跳过", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"name": "张三"},
			[]FieldMapping{{Source: "name", Target: "target", Transformation: TransformDirect, Active: false}},
			nil)
		assert.Empty(t, output)
	})

	t.Run("同目标后写覆盖先写", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"a": 1, "b": 2},
			[]FieldMapping{
				{Source: "a", Target: "x.y", Transformation: TransformDirect, Active: true},
				{Source: "b", Target: "x.y", Transformation: TransformDirect, Active: true},
			},
			nil)
		assert.Equal(t, 2, output["x"].(map[string]interface{})["y"])
	})

	t.Run("求值幂等", func(t *testing.T) {
		input := map[string]interface{}{"name": "张三"}
		mappings := []FieldMapping{{Source: "name", Target: "n", Transformation: TransformDirect, Active: true}}

		first := evalNoWarn(t, input, mappings, nil)
		second := evalNoWarn(t, input, mappings, nil)
		assert.Equal(t, first, second)
	})
}

func TestEvaluateTemplate(t *testing.T) {
	t.Run("占位符替换", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"customer": map[string]interface{}{"id": "42"}},
			[]FieldMapping{{Target: "code", Transformation: TransformTemplate,
				Template: "CUST-${customer.id}", Active: true}},
			nil)
		assert.Equal(t, "CUST-42", output["code"])
	})

	t.Run("未解析占位符替换为空串", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{},
			[]FieldMapping{{Target: "code", Transformation: TransformTemplate,
				Template: "pre-${missing}-post", Active: true}},
			nil)
		assert.Equal(t, "pre--post", output["code"])
	})

	t.Run("数值占位符字符串化", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"qty": 7},
			[]FieldMapping{{Target: "msg", Transformation: TransformTemplate,
				Template: "共${qty}件", Active: true}},
			nil)
		assert.Equal(t, "共7件", output["msg"])
	})
}

func TestEvaluateFunction(t *testing.T) {
	t.Run("脚本转换", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"name": "zhang"},
			[]FieldMapping{{Source: "name", Target: "upper", Transformation: TransformFunction,
				CustomFunction: `return strings.ToUpper(fmt.Sprintf("%v", value)), nil`, Active: true}},
			nil)
		assert.Equal(t, "ZHANG", output["upper"])
	})

	t.Run("脚本失败非严格模式降级为告警", func(t *testing.T) {
		e := NewEvaluator()
		output, warnings, err := e.Evaluate(
			map[string]interface{}{"name": "x"},
			[]FieldMapping{{Source: "name", Target: "t", Transformation: TransformFunction,
				CustomFunction: `return nil, fmt.Errorf("boom")`, Active: true}},
			nil, nil, false)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, WarnTransformation, warnings[0].Kind)
		assert.Equal(t, "t", warnings[0].Target)
		_, exists := output["t"]
		assert.False(t, exists)
	})

	t.Run("脚本失败严格模式中止", func(t *testing.T) {
		e := NewEvaluator()
		_, _, err := e.Evaluate(
			map[string]interface{}{"name": "x"},
			[]FieldMapping{{Source: "name", Target: "t", Transformation: TransformFunction,
				CustomFunction: `return nil, fmt.Errorf("boom")`, Active: true}},
			nil, nil, true)
		require.Error(t, err)
		var tErr *TransformationError
		assert.ErrorAs(t, err, &tErr)
	})
}

func TestEvaluateValueMapping(t *testing.T) {
	valueMappings := []ValueMapping{{
		ID:   "status",
		Type: MatchExact,
		Mappings: []ValueMappingEntry{
			{Key: "A", Value: "active"},
		},
		DefaultValue: "unknown",
	}}

	t.Run("查表命中", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"status": "A"},
			[]FieldMapping{{Source: "status", Target: "state", Transformation: TransformValueMapping,
				ValueMappingID: "status", Active: true}},
			valueMappings)
		assert.Equal(t, "active", output["state"])
	})

	t.Run("引用缺失原值透传并告警", func(t *testing.T) {
		e := NewEvaluator()
		output, warnings, err := e.Evaluate(
			map[string]interface{}{"status": "A"},
			[]FieldMapping{{Source: "status", Target: "state", Transformation: TransformValueMapping,
				ValueMappingID: "nope", Active: true}},
			valueMappings, nil, false)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, WarnUnresolvedReference, warnings[0].Kind)
		assert.Equal(t, "A", output["state"])
	})
}

func TestEvaluateSubChild(t *testing.T) {
	t.Run("子树合并保留既有键", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{
				"base":  map[string]interface{}{"x": 1, "y": 2},
				"patch": map[string]interface{}{"y": 9, "z": 3},
			},
			[]FieldMapping{
				{Source: "base", Target: "merged", Transformation: TransformSubChildReplace, Active: true},
				{Source: "patch", Target: "merged", Transformation: TransformSubChildMerge, Active: true},
			},
			nil)
		assert.Equal(t, map[string]interface{}{"x": 1, "y": 9, "z": 3}, output["merged"])
	})

	t.Run("子树替换整体覆盖", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{
				"base":  map[string]interface{}{"x": 1},
				"patch": map[string]interface{}{"y": 2},
			},
			[]FieldMapping{
				{Source: "base", Target: "t", Transformation: TransformSubChildReplace, Active: true},
				{Source: "patch", Target: "t", Transformation: TransformSubChildReplace, Active: true},
			},
			nil)
		assert.Equal(t, map[string]interface{}{"y": 2}, output["t"])
	})

	t.Run("数组源按原子值替换", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"tags": []interface{}{"a"}},
			[]FieldMapping{{Source: "tags", Target: "t", Transformation: TransformSubChildMerge, Active: true}},
			nil)
		assert.Equal(t, []interface{}{"a"}, output["t"])
	})

	t.Run("源缺失不写入", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{},
			[]FieldMapping{{Source: "missing", Target: "t", Transformation: TransformSubChildMerge, Active: true}},
			nil)
		assert.Empty(t, output)
	})
}

func TestEvaluateAggregation(t *testing.T) {
	input := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"price": 10},
			map[string]interface{}{"price": 20},
		},
		"prices": []interface{}{10.5, 20, "3", "skip-me"},
		"names":  []interface{}{"a", "b"},
	}

	tests := []struct {
		name        string
		source      string
		aggregation string
		expected    interface{}
	}{
		{"计数", "items", "count", 2},
		{"求和跳过非数值", "prices", "sum", 33.5},
		{"最小值", "prices", "min", 3.0},
		{"最大值", "prices", "max", 20.0},
		{"拼接", "names", "concat", "a,b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := evalNoWarn(t, input,
				[]FieldMapping{{Source: tt.source, Target: "result", Transformation: TransformAggregation,
					Aggregation: tt.aggregation, Active: true}},
				nil)
			assert.Equal(t, tt.expected, output["result"])
		})
	}

	t.Run("源缺失时count为0", func(t *testing.T) {
		output := evalNoWarn(t, map[string]interface{}{},
			[]FieldMapping{{Source: "missing", Target: "n", Transformation: TransformAggregation,
				Aggregation: "count", Active: true}},
			nil)
		assert.Equal(t, 0, output["n"])
	})

	t.Run("非数组源记告警", func(t *testing.T) {
		e := NewEvaluator()
		_, warnings, err := e.Evaluate(
			map[string]interface{}{"items": "not-array"},
			[]FieldMapping{{Source: "items", Target: "n", Transformation: TransformAggregation,
				Aggregation: "count", Active: true}},
			nil, nil, false)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, WarnTransformation, warnings[0].Kind)
	})
}

func TestEvaluateConditional(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]interface{}
		condition string
		written   bool
	}{
		{"等值命中", map[string]interface{}{"status": "vip"}, `status = 'vip'`, true},
		{"等值未命中", map[string]interface{}{"status": "normal"}, `status = 'vip'`, false},
		{"不等值", map[string]interface{}{"status": "normal"}, `status != 'vip'`, true},
		{"数值大于", map[string]interface{}{"age": 20}, `age > 18`, true},
		{"数值小于等于", map[string]interface{}{"age": 18}, `age <= 18`, true},
		{"IS NULL命中缺失字段", map[string]interface{}{}, `email IS NULL`, true},
		{"IS NOT NULL", map[string]interface{}{"email": "a@b.c"}, `email IS NOT NULL`, true},
		{"AND全部满足", map[string]interface{}{"age": 20, "status": "vip"}, `age >= 18 AND status = 'vip'`, true},
		{"AND部分不满足", map[string]interface{}{"age": 10, "status": "vip"}, `age >= 18 AND status = 'vip'`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := evalNoWarn(t, tt.input,
				[]FieldMapping{{Source: "status", Target: "flag", Transformation: TransformConditional,
					Condition: tt.condition, Value: true, Active: true}},
				nil)
			value, exists := output["flag"]
			assert.Equal(t, tt.written, exists)
			if tt.written {
				assert.Equal(t, true, value)
			}
		})
	}

	t.Run("未设置固定值时写入源值", func(t *testing.T) {
		output := evalNoWarn(t,
			map[string]interface{}{"score": 95},
			[]FieldMapping{{Source: "score", Target: "high_score", Transformation: TransformConditional,
				Condition: `score > 90`, Active: true}},
			nil)
		assert.Equal(t, 95, output["high_score"])
	})

	t.Run("无法解析的子句记告警", func(t *testing.T) {
		e := NewEvaluator()
		_, warnings, err := e.Evaluate(
			map[string]interface{}{"a": 1},
			[]FieldMapping{{Source: "a", Target: "t", Transformation: TransformConditional,
				Condition: `LIKE '%x%'`, Active: true}},
			nil, nil, false)
		require.NoError(t, err)
		assert.Len(t, warnings, 1)
	})
}

func TestEvaluateValidation(t *testing.T) {
	e := NewEvaluator()

	t.Run("目标为空报校验错误", func(t *testing.T) {
		_, _, err := e.Evaluate(map[string]interface{}{},
			[]FieldMapping{{Source: "a", Transformation: TransformDirect, Active: true}},
			nil, nil, false)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("源与常量同时为空报校验错误", func(t *testing.T) {
		_, _, err := e.Evaluate(map[string]interface{}{},
			[]FieldMapping{{Target: "t", Transformation: TransformDirect, Active: true}},
			nil, nil, false)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("模板转换允许源为空", func(t *testing.T) {
		_, _, err := e.Evaluate(map[string]interface{}{},
			[]FieldMapping{{Target: "t", Transformation: TransformTemplate, Template: "x", Active: true}},
			nil, nil, false)
		assert.NoError(t, err)
	})

	t.Run("未知转换类型", func(t *testing.T) {
		_, _, err := e.Evaluate(map[string]interface{}{"a": 1},
			[]FieldMapping{{Source: "a", Target: "t", Transformation: TransformationType("upper"), Active: true}},
			nil, nil, true)
		assert.Error(t, err)
	})
}

func TestEvaluateSystemFields(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewEvaluator()

	output, warnings, err := e.Evaluate(
		map[string]interface{}{"name": "张三"},
		[]FieldMapping{{Source: "name", Target: "name", Transformation: TransformDirect, Active: true}},
		nil,
		&SystemFields{ProcessingTime: &now, CorrelationID: "corr-1", EntityType: "customer"},
		false)
	require.NoError(t, err)
	require.Empty(t, warnings)

	assert.Equal(t, now, output["processed_at"])
	assert.Equal(t, "corr-1", output["correlation_id"])
	assert.Equal(t, "customer", output["entity_type"])
}
