package model

import (
	"github.com/cloudwego/eino/compose"
)

func init() {
	// checkpoint 序列化需要注册状态中出现的类型
	for name, register := range map[string]func(string) error{
		"DeepDiveReportInput":  compose.RegisterSerializableType[ReportInput],
		"DeepDiveReportState":  compose.RegisterSerializableType[ReportState],
		"DeepDivePlanFeedback": compose.RegisterSerializableType[PlanFeedback],
		"DeepDiveSection":      compose.RegisterSerializableType[Section],
		"DeepDiveCitation":     compose.RegisterSerializableType[Citation],
		"DeepDiveSourceRef":    compose.RegisterSerializableType[SourceRef],
	} {
		if err := register(name); err != nil {
			panic(err)
		}
	}
}

// ReportInput 报告工作流的输入
type ReportInput struct {
	Topic             string `json:"topic"`
	InternalDocuments string `json:"internal_documents"`
	UserID            string `json:"user_id"`
	ProjectID         string `json:"project_id"`
}

// ReportState 报告工作流的全局状态，由 checkpoint 持久化
type ReportState struct {
	// 输入
	Topic             string `json:"topic"`
	InternalDocuments string `json:"internal_documents"`
	UserID            string `json:"user_id"`
	ProjectID         string `json:"project_id"`

	// 大纲
	Description          string    `json:"description"`
	Sections             []Section `json:"sections"`
	PlanContext          string    `json:"plan_context"`
	FeedbackOnReportPlan string    `json:"feedback_on_report_plan"`

	// 只追加，由编排节点合并各章节任务的结果
	CompletedSections []Section `json:"completed_sections"`

	ReportSectionsFromResearch string `json:"report_sections_from_research"`
	FinalReport                string `json:"final_report"`

	// 子图共享变量
	Goto   string        `json:"goto,omitempty"`
	Resume *PlanFeedback `json:"resume,omitempty"` // 人工审核的恢复载荷，消费后清空
}

// Plan 返回当前大纲
func (s *ReportState) Plan() *ReportPlan {
	sections := make([]Section, len(s.Sections))
	copy(sections, s.Sections)
	return &ReportPlan{Description: s.Description, Sections: sections}
}

// Scope 返回内部检索范围
func (s *ReportState) Scope() Scope {
	return Scope{UserID: s.UserID, ProjectID: s.ProjectID}
}

// SectionInput 派发给单个章节研究子图的任务
type SectionInput struct {
	Topic             string
	Section           Section
	InternalDocuments string
	Scope             Scope
}

// SectionState 章节研究子图的局部状态，各章节之间不共享
type SectionState struct {
	Topic             string
	Section           Section
	InternalDocuments string
	Scope             Scope

	SearchIterations      int
	SearchQueries         []string
	InternalSearchQueries []string
	SearchResults         string
	InternalSearchResults string
	SearchSources         []SearchSource
	Degraded              bool

	Goto string
}

// PastStep 已执行的步骤及结果
type PastStep struct {
	Task   string `json:"task"`
	Result string `json:"result"`
}

// PlanExecuteState 计划-执行-重规划循环的状态
type PlanExecuteState struct {
	Input     string     `json:"input"`
	Plan      []string   `json:"plan"`
	PastSteps []PastStep `json:"past_steps"` // 只追加
	Response  string     `json:"response"`   // 非空即结束
}
