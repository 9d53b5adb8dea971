package llm

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/hildam/deep-dive-go/entity/conf"
	emodel "github.com/hildam/deep-dive-go/entity/model"
)

// 结构化输出名称
const (
	NameQueries       = "queries"
	NameHybridQueries = "hybrid_queries"
	NameSections      = "sections"
	NameSectionWriter = "section_writer"
	NameFeedback      = "feedback"
	NameFinalWriter   = "final_section_writer"
	NameStepPlan      = "plan"
	NameAct           = "act"
)

// Roles 各工作流节点使用的模型，每个结构化输出对应一个模型实例
type Roles struct {
	QueryWriter       Generator // Queries
	HybridQueryWriter Generator // HybridQueries
	Planner           Generator // Sections
	SectionWriter     Generator // SectionContent
	Grader            Generator // Feedback
	FinalWriter       Generator // 纯文本
	StepPlanner       Generator // StepPlan
	Replanner         Generator // Act

	Executor model.ToolCallingChatModel // 工具调用执行者

	Retries int // 传输失败重试次数
}

// pick 角色未配置模型时使用默认模型
func pick(m, fallback conf.Model) conf.Model {
	if m.ModelID == "" {
		return fallback
	}
	if m.BaseURL == "" {
		m.BaseURL = fallback.BaseURL
	}
	if m.APIKey == "" {
		m.APIKey = fallback.APIKey
	}
	return m
}

// NewRoles 根据配置创建全部模型
func NewRoles(ctx context.Context, cfg conf.ModelConfig) (*Roles, error) {
	planner := pick(cfg.PlannerModel, cfg.DefaultModel)
	writer := pick(cfg.WriterModel, cfg.DefaultModel)
	executor := pick(cfg.ExecutorModel, cfg.DefaultModel)

	r := &Roles{Retries: cfg.MaxRetries}
	schemas := []struct {
		dst    *Generator
		model  conf.Model
		name   string
		sample any
	}{
		{&r.QueryWriter, planner, NameQueries, &emodel.Queries{}},
		{&r.HybridQueryWriter, planner, NameHybridQueries, &emodel.HybridQueries{}},
		{&r.Planner, planner, NameSections, &emodel.Sections{}},
		{&r.SectionWriter, writer, NameSectionWriter, &emodel.SectionContent{}},
		{&r.Grader, planner, NameFeedback, &emodel.Feedback{}},
		{&r.StepPlanner, planner, NameStepPlan, &emodel.StepPlan{}},
		{&r.Replanner, planner, NameAct, &emodel.Act{}},
	}
	for _, s := range schemas {
		m, err := NewSchemaModel(ctx, s.model, s.name, s.sample)
		if err != nil {
			return nil, err
		}
		*s.dst = m
	}

	finalWriter, err := NewChatModel(ctx, writer)
	if err != nil {
		return nil, err
	}
	r.FinalWriter = finalWriter

	exec, err := NewChatModel(ctx, executor)
	if err != nil {
		return nil, err
	}
	r.Executor = exec
	return r, nil
}
