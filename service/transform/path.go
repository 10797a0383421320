/*
 * @module service/transform/path
 * @description 嵌套JSON路径访问器，基于类型化分段解析实现读写，写入时按写时复制保证输入不被修改
 * @architecture 工具层 - 点分路径解析为对象键/数组下标分段序列
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 路径解析 -> 逐段遍历 -> 读取/写时复制写入
 * @rules 穿越nil或缺失节点读取返回未找到而非报错，写入缺失中间段时创建空对象
 * @refs evaluator.go, upsert_resolver.go
 */

package transform

import (
	"strconv"
	"strings"
)

// PathSegment 路径分段，数字样式段在遍历到数组时按下标解释，否则按对象键解释
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// ParsePath 将点分路径解析为类型化分段序列
func ParsePath(path string) []PathSegment {
	if path == "" {
		return nil
	}

	parts := strings.Split(path, ".")
	segments := make([]PathSegment, 0, len(parts))
	for _, part := range parts {
		seg := PathSegment{Key: part}
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 {
			seg.Index = idx
			seg.IsIndex = true
		}
		segments = append(segments, seg)
	}
	return segments
}

// GetPath 按路径读取嵌套结构中的值，第二返回值表示路径是否存在
func GetPath(record map[string]interface{}, path string) (interface{}, bool) {
	segments := ParsePath(path)
	if len(segments) == 0 {
		return nil, false
	}

	var current interface{} = record
	for _, seg := range segments {
		switch v := current.(type) {
		case map[string]interface{}:
			val, exists := v[seg.Key]
			if !exists {
				return nil, false
			}
			current = val
		case []interface{}:
			if !seg.IsIndex || seg.Index >= len(v) {
				return nil, false
			}
			current = v[seg.Index]
		default:
			// 标量或nil处遍历未结束，视为未找到
			return nil, false
		}
	}

	return current, true
}

// SetPath 按路径写入值并返回新记录，沿路径写时复制，缺失中间段创建空对象
func SetPath(record map[string]interface{}, path string, value interface{}) map[string]interface{} {
	segments := ParsePath(path)
	if len(segments) == 0 {
		return record
	}

	result := setSegments(record, segments, value)
	if m, ok := result.(map[string]interface{}); ok {
		return m
	}
	return record
}

// setSegments 递归写入，对途经的容器做浅拷贝
func setSegments(current interface{}, segments []PathSegment, value interface{}) interface{} {
	seg := segments[0]

	if arr, ok := current.([]interface{}); ok && seg.IsIndex && seg.Index < len(arr) {
		copied := make([]interface{}, len(arr))
		copy(copied, arr)
		if len(segments) == 1 {
			copied[seg.Index] = value
		} else {
			copied[seg.Index] = setSegments(arr[seg.Index], segments[1:], value)
		}
		return copied
	}

	obj, ok := current.(map[string]interface{})
	if !ok {
		// 中间段缺失或类型不匹配，以空对象替代
		obj = nil
	}

	copied := make(map[string]interface{}, len(obj)+1)
	for k, v := range obj {
		copied[k] = v
	}

	if len(segments) == 1 {
		copied[seg.Key] = value
		return copied
	}

	copied[seg.Key] = setSegments(obj[seg.Key], segments[1:], value)
	return copied
}
