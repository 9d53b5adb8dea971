// Package metrics 工作流运行指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMCalls 模型调用次数，按输出结构和结果区分
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepdive_llm_calls_total",
			Help: "Total number of model calls by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	// WorkflowRuns 工作流运行次数
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepdive_workflow_runs_total",
			Help: "Total number of workflow runs by workflow and outcome",
		},
		[]string{"workflow", "outcome"},
	)

	// SectionIterations 单个章节完成时的搜索轮数
	SectionIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepdive_section_search_iterations",
			Help:    "Search iterations used per researched section",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	// SearchFailures 搜索失败次数，按检索渠道区分
	SearchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepdive_search_failures_total",
			Help: "Total number of failed search queries by channel",
		},
		[]string{"channel"},
	)

	// NodeDuration 图节点耗时
	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepdive_node_duration_seconds",
			Help:    "Duration of graph node executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)
)
