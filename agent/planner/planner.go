package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/template"
)

// Request 规划请求，重写时带上当前大纲、反馈和已有上下文
type Request struct {
	Topic             string
	InternalDocuments string
	Scope             model.Scope
	Sections          []model.Section
	Feedback          string
	PlanContext       string
}

// Result 规划结果
type Result struct {
	Description string
	Sections    []model.Section
	Context     string // 规划时收集的检索上下文
}

// plannerImpl 报告大纲规划者
type plannerImpl struct {
	deps *comm.Deps
}

// NewPlanner 创建实例
func NewPlanner(deps *comm.Deps) *plannerImpl {
	return &plannerImpl{deps: deps}
}

// NewGraphNode 创建任务图：load 将输入写入全局状态，plan 生成大纲
func (p *plannerImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[*model.ReportInput, string]()

	_ = graph.AddLambdaNode("load", compose.InvokableLambda(loadInput))
	_ = graph.AddLambdaNode("plan", compose.InvokableLambda(p.planNode))

	_ = graph.AddEdge(compose.START, "load")
	_ = graph.AddEdge("load", "plan")
	_ = graph.AddEdge("plan", compose.END)

	return consts.GeneratePlan, graph, compose.WithNodeName(consts.GeneratePlan)
}

// loadInput 将工作流输入写入状态，恢复运行时输入为空，保留已有状态
func loadInput(ctx context.Context, in *model.ReportInput) (string, error) {
	err := compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		if in == nil || in.Topic == "" {
			return nil
		}
		state.Topic = in.Topic
		state.InternalDocuments = in.InternalDocuments
		state.UserID = in.UserID
		state.ProjectID = in.ProjectID
		return nil
	})
	return consts.GeneratePlan, err
}

// planNode 生成大纲并写入状态，下一步进入人工审核
func (p *plannerImpl) planNode(ctx context.Context, _ string) (output string, err error) {
	var req Request
	if err := compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		req = Request{Topic: state.Topic, InternalDocuments: state.InternalDocuments, Scope: state.Scope()}
		return nil
	}); err != nil {
		return "", err
	}

	res, err := p.Generate(ctx, req)
	if err != nil {
		slog.Error("planNode failed, topic = %s, err = %+v", req.Topic, err)
		return "", err
	}

	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		state.Description = res.Description
		state.Sections = res.Sections
		state.PlanContext = res.Context
		state.Goto = consts.Human
		output = state.Goto
		return nil
	})
	return output, err
}

// Generate 生成报告大纲：生成查询、检索、再由规划模型输出章节
func (p *plannerImpl) Generate(ctx context.Context, req Request) (*Result, error) {
	internalQ, webQ, err := p.queries(ctx, req)
	if err != nil {
		return nil, err
	}
	planCtx, err := p.collect(ctx, req.Scope, internalQ, webQ)
	if err != nil {
		return nil, err
	}

	msgs, err := template.Format(ctx, template.ReportPlanner, map[string]any{
		"topic":               req.Topic,
		"report_organization": p.deps.Report.ReportStructure,
		"context":             planCtx,
		"hybrid":              p.deps.Hybrid(),
	}, "Generate the sections of the report. Your response must include a 'sections' field containing a list of sections.")
	if err != nil {
		return nil, err
	}
	sections, err := llm.Invoke[model.Sections](ctx, p.deps.Roles.Planner, llm.NameSections, p.deps.Roles.Retries, msgs)
	if err != nil {
		return nil, err
	}

	slog.Debug("Generate debug, topic = %s, sections = %d", req.Topic, len(sections.Sections))
	return &Result{
		Description: sections.Description,
		Sections:    p.gate(sections.Sections),
		Context:     planCtx,
	}, nil
}

// Rewrite 根据反馈重写大纲，新上下文追加在已有上下文之后，大纲整体替换
func (p *plannerImpl) Rewrite(ctx context.Context, req Request) (*Result, error) {
	internalQ, webQ, err := p.queries(ctx, req)
	if err != nil {
		return nil, err
	}
	newCtx, err := p.collect(ctx, req.Scope, internalQ, webQ)
	if err != nil {
		return nil, err
	}

	msgs, err := template.Format(ctx, template.RewriteReportPlan, map[string]any{
		"topic":               req.Topic,
		"report_organization": p.deps.Report.ReportStructure,
		"context":             req.PlanContext,
		"sections":            formatPlan(req.Sections),
		"feedback":            req.Feedback,
		"new_context":         newCtx,
		"hybrid":              p.deps.Hybrid(),
	}, "Rewrite the report plan according to the feedback.")
	if err != nil {
		return nil, err
	}
	sections, err := llm.Invoke[model.Sections](ctx, p.deps.Roles.Planner, llm.NameSections, p.deps.Roles.Retries, msgs)
	if err != nil {
		return nil, err
	}

	merged := req.PlanContext
	if newCtx != "" {
		merged = req.PlanContext + "\n\n" + newCtx
	}
	return &Result{
		Description: sections.Description,
		Sections:    p.gate(sections.Sections),
		Context:     merged,
	}, nil
}

// queries 生成规划查询，混合模式下分别返回内部和网络查询
func (p *plannerImpl) queries(ctx context.Context, req Request) (internal, web []string, err error) {
	vars := map[string]any{
		"topic":               req.Topic,
		"report_organization": p.deps.Report.ReportStructure,
		"number_of_queries":   p.deps.Report.NumberOfQueries,
		"hybrid":              p.deps.Hybrid(),
		"internal_documents":  req.InternalDocuments,
		"feedback":            req.Feedback,
		"sections":            formatPlan(req.Sections),
	}
	msgs, err := template.Format(ctx, template.ReportQueryWriter, vars,
		"Generate search queries that will help with planning the sections of the report.")
	if err != nil {
		return nil, nil, err
	}

	roles := p.deps.Roles
	if p.deps.Hybrid() {
		q, err := llm.Invoke[model.HybridQueries](ctx, roles.HybridQueryWriter, llm.NameHybridQueries, roles.Retries, msgs)
		if err != nil {
			return nil, nil, err
		}
		return model.QueryStrings(q.InternalSearchQueries), model.QueryStrings(q.WebSearchQueries), nil
	}
	q, err := llm.Invoke[model.Queries](ctx, roles.QueryWriter, llm.NameQueries, roles.Retries, msgs)
	if err != nil {
		return nil, nil, err
	}
	return nil, model.QueryStrings(q.Queries), nil
}

// collect 执行检索，混合模式下上下文为 内部 + 网络
func (p *plannerImpl) collect(ctx context.Context, scope model.Scope, internalQ, webQ []string) (string, error) {
	web, err := comm.WebEvidence(ctx, p.deps.Search, webQ)
	if err != nil {
		return "", err
	}
	if !p.deps.Hybrid() {
		return web.Text, nil
	}
	internal, err := comm.InternalEvidence(ctx, p.deps.Search, internalQ, scope)
	if err != nil {
		return "", err
	}
	if internal.Text == "" {
		return web.Text, nil
	}
	if web.Text == "" {
		return internal.Text, nil
	}
	return internal.Text + "\n\n" + web.Text, nil
}

// gate 非混合模式下章节不能要求内部检索
func (p *plannerImpl) gate(sections []model.Section) []model.Section {
	if p.deps.Hybrid() {
		return sections
	}
	for i := range sections {
		sections[i].InternalSearch = false
	}
	return sections
}

// formatPlan 大纲以 JSON 形式放入提示词
func formatPlan(sections []model.Section) string {
	if len(sections) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", sections)
	}
	return string(b)
}
