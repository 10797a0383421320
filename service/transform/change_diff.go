/*
 * @module service/transform/change_diff
 * @description 变更差分生成器，计算新旧记录的字段级差异并封装为变更事件
 * @architecture 纯函数计算 - 序列化等值比较，输出顺序按键名排序保证确定性
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 键并集计算 -> 逐键比较 -> 变更列表 -> 事件封装
 * @rules 默认顶层浅比较（嵌套对象按原子值比较），DeepDiff开启时递归到叶子路径
 * @dependencies github.com/google/uuid, encoding/json
 * @refs types.go, engine.go
 */

package transform

import (
	"encoding/json"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DiffGenerator 变更差分生成器
type DiffGenerator struct{}

// NewDiffGenerator 创建变更差分生成器
func NewDiffGenerator() *DiffGenerator {
	return &DiffGenerator{}
}

// Diff 比较新旧记录并生成变更事件，oldRecord为nil时视为空记录（全部为add）
func (dg *DiffGenerator) Diff(
	oldRecord, newRecord map[string]interface{},
	entityID string,
	config ChangeEventConfig,
	metadata *ChangeEventMetadata,
) (*ChangeEvent, error) {

	if newRecord == nil {
		return nil, &ValidationError{Field: "new_record", Message: "新记录不能为空"}
	}
	if oldRecord == nil {
		oldRecord = map[string]interface{}{}
	}

	var changes []FieldChange
	if config.DeepDiff {
		changes = dg.diffRecursive(oldRecord, newRecord, "")
	} else {
		changes = dg.diffShallow(oldRecord, newRecord)
	}

	event := &ChangeEvent{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		EventType: config.EventType,
		Timestamp: time.Now(),
		Data: ChangeEventData{
			New:     newRecord,
			Changes: changes,
		},
	}

	if config.IncludeOldValues && len(oldRecord) > 0 {
		event.Data.Old = oldRecord
	}
	if config.IncludeMetadata {
		event.Metadata = metadata
	}

	return event, nil
}

// diffShallow 顶层浅比较，嵌套对象/数组按原子值处理
func (dg *DiffGenerator) diffShallow(oldRecord, newRecord map[string]interface{}) []FieldChange {
	changes := make([]FieldChange, 0)

	for _, key := range unionKeys(oldRecord, newRecord) {
		oldValue, inOld := oldRecord[key]
		newValue, inNew := newRecord[key]

		switch {
		case !inOld:
			changes = append(changes, FieldChange{
				Field: key, NewValue: newValue, Operation: OperationAdd,
			})
		case !inNew:
			changes = append(changes, FieldChange{
				Field: key, OldValue: oldValue, Operation: OperationDelete,
			})
		case !serializedEqual(oldValue, newValue):
			changes = append(changes, FieldChange{
				Field: key, OldValue: oldValue, NewValue: newValue, Operation: OperationUpdate,
			})
		}
	}

	return changes
}

// diffRecursive 递归比较嵌套对象，变更字段以点分路径报告
func (dg *DiffGenerator) diffRecursive(oldRecord, newRecord map[string]interface{}, prefix string) []FieldChange {
	changes := make([]FieldChange, 0)

	for _, key := range unionKeys(oldRecord, newRecord) {
		field := key
		if prefix != "" {
			field = prefix + "." + key
		}
		oldValue, inOld := oldRecord[key]
		newValue, inNew := newRecord[key]

		switch {
		case !inOld:
			changes = append(changes, FieldChange{
				Field: field, NewValue: newValue, Operation: OperationAdd,
			})
		case !inNew:
			changes = append(changes, FieldChange{
				Field: field, OldValue: oldValue, Operation: OperationDelete,
			})
		default:
			oldObj, oldIsObj := oldValue.(map[string]interface{})
			newObj, newIsObj := newValue.(map[string]interface{})
			if oldIsObj && newIsObj {
				changes = append(changes, dg.diffRecursive(oldObj, newObj, field)...)
			} else if !serializedEqual(oldValue, newValue) {
				changes = append(changes, FieldChange{
					Field: field, OldValue: oldValue, NewValue: newValue, Operation: OperationUpdate,
				})
			}
		}
	}

	return changes
}

// unionKeys 新旧记录键的并集，排序后返回保证输出确定性
func unionKeys(oldRecord, newRecord map[string]interface{}) []string {
	seen := make(map[string]bool, len(oldRecord)+len(newRecord))
	for k := range oldRecord {
		seen[k] = true
	}
	for k := range newRecord {
		seen[k] = true
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// serializedEqual 序列化等值比较，无法序列化的值退回反射比较
func serializedEqual(a, b interface{}) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(aJSON) == string(bJSON)
}
