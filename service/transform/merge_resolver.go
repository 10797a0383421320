/*
 * @module service/transform/merge_resolver
 * @description 子树合并解决器，提供浅合并与深合并两种策略，服务于子级映射和Upsert合并
 * @architecture 策略模式 - 合并策略与调用场景解耦
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 目标浅拷贝 -> 逐键覆盖/递归合并 -> 返回新对象
 * @rules 数组在两种策略下均按原子值处理，不做逐元素合并
 * @refs evaluator.go, upsert_resolver.go
 */

package transform

// MergeResolver 子树合并解决器
type MergeResolver struct{}

// NewMergeResolver 创建子树合并解决器
func NewMergeResolver() *MergeResolver {
	return &MergeResolver{}
}

// Merge 按策略将source合并进target并返回新对象，双方输入均不被修改
func (mr *MergeResolver) Merge(target, source map[string]interface{}, strategy MergeStrategy) map[string]interface{} {
	if strategy == MergeDeep {
		return mr.deepMerge(target, source)
	}
	return mr.shallowMerge(target, source)
}

// shallowMerge 浅合并：source的顶层键覆盖target同名键，仅target有的键保留
func (mr *MergeResolver) shallowMerge(target, source map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(target)+len(source))
	for k, v := range target {
		merged[k] = v
	}
	for k, v := range source {
		merged[k] = v
	}
	return merged
}

// deepMerge 深合并：两侧同键均为对象时递归合并，否则source胜出
func (mr *MergeResolver) deepMerge(target, source map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(target)+len(source))
	for k, v := range target {
		merged[k] = v
	}

	for k, sourceVal := range source {
		targetVal, exists := merged[k]
		if !exists {
			merged[k] = sourceVal
			continue
		}

		targetObj, targetIsObj := targetVal.(map[string]interface{})
		sourceObj, sourceIsObj := sourceVal.(map[string]interface{})
		if targetIsObj && sourceIsObj {
			merged[k] = mr.deepMerge(targetObj, sourceObj)
		} else {
			merged[k] = sourceVal
		}
	}

	return merged
}
