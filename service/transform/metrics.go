/*
 * @module service/transform/metrics
 * @description 转换引擎Prometheus指标，注册到默认Registry，由宿主进程的/metrics端点暴露
 * @architecture 可观测层 - promauto自动注册计数器与直方图
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 引擎调用 -> 指标记录 -> 宿主暴露
 * @dependencies github.com/prometheus/client_golang
 * @refs engine.go
 */

package transform

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transformTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_invocations_total",
		Help: "转换调用总数，按结果状态分类",
	}, []string{"status"})

	transformDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transform_duration_seconds",
		Help:    "单次转换调用耗时",
		Buckets: prometheus.DefBuckets,
	})

	transformWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_warnings_total",
		Help: "转换过程收集的告警总数，按类别分类",
	}, []string{"kind"})

	upsertActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_upsert_actions_total",
		Help: "Upsert解决动作总数，按动作分类",
	}, []string{"action"})

	changeEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transform_change_events_total",
		Help: "生成的变更事件总数",
	})
)
