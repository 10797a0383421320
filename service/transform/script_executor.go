/*
 * @module service/transform/script_executor
 * @description 自定义函数脚本执行器，基于yaegi解释器，支持编译缓存与受限符号表
 * @architecture 解释器隔离执行 - 仅暴露白名单标准库符号，无os/网络/系统调用能力
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 脚本哈希查缓存 -> 未命中则编译 -> 调用Transform入口 -> 异常恢复
 * @rules 脚本必须实现固定签名的Transform函数，执行异常降级为TransformationError
 * @dependencies github.com/traefik/yaegi, crypto/sha1, sync
 * @refs evaluator.go
 */

package transform

import (
	"crypto/sha1"
	"fmt"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// allowedScriptPackages 脚本可见的标准库包白名单
var allowedScriptPackages = []string{
	"fmt/fmt",
	"strings/strings",
	"strconv/strconv",
	"math/math",
	"sort/sort",
	"time/time",
	"regexp/regexp",
	"unicode/unicode",
	"encoding/json/json",
}

// scriptWrapper 脚本包装模板，要求脚本体实现Transform入口
const scriptWrapper = `
package main

import (
	"fmt"
	"strings"
	"strconv"
	"math"
	"sort"
	"time"
	"regexp"
	"unicode"
	"encoding/json"
)

// 必须提供一个 Transform 函数作为入口
func Transform(value interface{}, record map[string]interface{}) (interface{}, error) {
	// 脚本内容
%s
}
`

// transformFunc 编译后的脚本入口签名
type transformFunc func(interface{}, map[string]interface{}) (interface{}, error)

// compiledScript 编译后的脚本及其缓存元信息
type compiledScript struct {
	fn       transformFunc
	compiled time.Time
	hash     string
}

// ScriptExecutor 脚本执行器，按脚本内容哈希缓存编译结果
type ScriptExecutor struct {
	mu    sync.RWMutex
	cache map[string]*compiledScript
}

// NewScriptExecutor 创建脚本执行器
func NewScriptExecutor() *ScriptExecutor {
	return &ScriptExecutor{
		cache: make(map[string]*compiledScript),
	}
}

// Execute 执行自定义转换脚本（带编译缓存和异常恢复）
func (se *ScriptExecutor) Execute(script string, value interface{}, record map[string]interface{}) (result interface{}, err error) {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))

	se.mu.RLock()
	compiled, ok := se.cache[hash]
	se.mu.RUnlock()

	if !ok {
		compiled, err = se.compile(script, hash)
		if err != nil {
			return nil, fmt.Errorf("脚本编译失败: %w", err)
		}

		se.mu.Lock()
		se.cache[hash] = compiled
		se.mu.Unlock()
	}

	// 脚本内的panic不允许击穿引擎
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("脚本执行panic: %v", r)
		}
	}()

	return compiled.fn(value, record)
}

// Validate 验证脚本语法（仅编译不执行）
func (se *ScriptExecutor) Validate(script string) error {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))
	_, err := se.compile(script, hash)
	return err
}

// ClearCache 清理编译缓存
func (se *ScriptExecutor) ClearCache() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.cache = make(map[string]*compiledScript)
}

// CacheSize 当前缓存的脚本数
func (se *ScriptExecutor) CacheSize() int {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return len(se.cache)
}

// compile 编译脚本为可执行函数，仅注入白名单符号表
func (se *ScriptExecutor) compile(script, hash string) (*compiledScript, error) {
	i := interp.New(interp.Options{})

	restricted := make(interp.Exports, len(allowedScriptPackages))
	for _, pkg := range allowedScriptPackages {
		if symbols, exists := stdlib.Symbols[pkg]; exists {
			restricted[pkg] = symbols
		}
	}
	if err := i.Use(restricted); err != nil {
		return nil, fmt.Errorf("加载受限符号表失败: %w", err)
	}

	wrapped := fmt.Sprintf(scriptWrapper, script)

	if _, err := i.Eval(wrapped); err != nil {
		return nil, fmt.Errorf("脚本编译失败: %w", err)
	}

	v, err := i.Eval("Transform")
	if err != nil {
		return nil, fmt.Errorf("脚本缺少 Transform 函数: %w", err)
	}

	fn, ok := v.Interface().(func(interface{}, map[string]interface{}) (interface{}, error))
	if !ok {
		return nil, fmt.Errorf("Transform 函数签名必须是 func(interface{}, map[string]interface{}) (interface{}, error)")
	}

	return &compiledScript{
		fn:       fn,
		compiled: time.Now(),
		hash:     hash,
	}, nil
}
