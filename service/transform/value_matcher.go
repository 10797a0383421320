/*
 * @module service/transform/value_matcher
 * @description 值映射匹配器，支持精确、正则、区间、包含、前缀、后缀六种匹配策略
 * @architecture 策略模式 - 按映射表插入顺序匹配，首个命中生效
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 值字符串化 -> 按序匹配 -> 命中返回映射值/未命中返回默认值
 * @rules 插入顺序是契约的一部分，多键可同时结构性命中时以顺序裁决
 * @dependencies github.com/spf13/cast, golang.org/x/text/cases
 * @refs types.go, evaluator.go
 */

package transform

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
)

// ValueMatcher 值映射匹配器
type ValueMatcher struct {
	folder cases.Caser
}

// NewValueMatcher 创建值映射匹配器
func NewValueMatcher() *ValueMatcher {
	return &ValueMatcher{folder: cases.Fold()}
}

// Match 按值映射配置解析标量值，未命中任何键时返回默认值
func (vm *ValueMatcher) Match(value interface{}, mapping ValueMapping) interface{} {
	switch mapping.Type {
	case MatchExact:
		return vm.matchExact(value, mapping)
	case MatchRegex:
		return vm.matchRegex(value, mapping)
	case MatchRange:
		return vm.matchRange(value, mapping)
	case MatchContains, MatchPrefix, MatchSuffix:
		return vm.matchSubstring(value, mapping)
	default:
		slog.Warn("未知的值映射类型，返回默认值", "type", mapping.Type, "id", mapping.ID)
		return mapping.DefaultValue
	}
}

// matchExact 精确匹配，大小写不敏感时对两侧做Unicode大小写折叠
func (vm *ValueMatcher) matchExact(value interface{}, mapping ValueMapping) interface{} {
	lookup := cast.ToString(value)
	if !mapping.CaseSensitive {
		lookup = vm.folder.String(lookup)
	}

	for _, entry := range mapping.Mappings {
		key := entry.Key
		if !mapping.CaseSensitive {
			key = vm.folder.String(key)
		}
		if key == lookup {
			return entry.Value
		}
	}
	return mapping.DefaultValue
}

// matchRegex 正则匹配，按插入顺序编译测试，首个命中生效
func (vm *ValueMatcher) matchRegex(value interface{}, mapping ValueMapping) interface{} {
	str := cast.ToString(value)

	for _, entry := range mapping.Mappings {
		re, err := regexp.Compile(entry.Key)
		if err != nil {
			// 非法正则是配置问题，跳过该键继续匹配
			slog.Warn("值映射正则编译失败，跳过该键", "id", mapping.ID, "pattern", entry.Key, "error", err)
			continue
		}
		if re.MatchString(str) {
			return entry.Value
		}
	}
	return mapping.DefaultValue
}

// matchRange 区间匹配，键格式为"min-max"，闭区间，非数值输入直接返回默认值
func (vm *ValueMatcher) matchRange(value interface{}, mapping ValueMapping) interface{} {
	num, err := cast.ToFloat64E(value)
	if err != nil {
		return mapping.DefaultValue
	}

	for _, entry := range mapping.Mappings {
		min, max, ok := parseRangeKey(entry.Key)
		if !ok {
			slog.Warn("值映射区间键格式非法，跳过该键", "id", mapping.ID, "key", entry.Key)
			continue
		}
		if num >= min && num <= max {
			return entry.Value
		}
	}
	return mapping.DefaultValue
}

// matchSubstring 包含/前缀/后缀匹配
func (vm *ValueMatcher) matchSubstring(value interface{}, mapping ValueMapping) interface{} {
	str := cast.ToString(value)
	if !mapping.CaseSensitive {
		str = vm.folder.String(str)
	}

	for _, entry := range mapping.Mappings {
		key := entry.Key
		if !mapping.CaseSensitive {
			key = vm.folder.String(key)
		}

		var matched bool
		switch mapping.Type {
		case MatchContains:
			matched = strings.Contains(str, key)
		case MatchPrefix:
			matched = strings.HasPrefix(str, key)
		case MatchSuffix:
			matched = strings.HasSuffix(str, key)
		}
		if matched {
			return entry.Value
		}
	}
	return mapping.DefaultValue
}

// parseRangeKey 解析"min-max"区间键，分隔符为首个能让两侧都解析为数值的'-'
func parseRangeKey(key string) (float64, float64, bool) {
	for i := 1; i < len(key); i++ {
		if key[i] != '-' {
			continue
		}
		min, errMin := strconv.ParseFloat(strings.TrimSpace(key[:i]), 64)
		max, errMax := strconv.ParseFloat(strings.TrimSpace(key[i+1:]), 64)
		if errMin == nil && errMax == nil {
			return min, max, true
		}
	}
	return 0, 0, false
}
