package planner

import (
	"context"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
)

// rewriterImpl 根据人工反馈重写大纲
type rewriterImpl struct {
	planner *plannerImpl
}

// NewRewriter 创建实例
func NewRewriter(p *plannerImpl) *rewriterImpl {
	return &rewriterImpl{planner: p}
}

// NewGraphNode 创建任务图
func (r *rewriterImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[string, string]()

	_ = graph.AddLambdaNode("rewrite", compose.InvokableLambda(r.rewriteNode))

	_ = graph.AddEdge(compose.START, "rewrite")
	_ = graph.AddEdge("rewrite", compose.END)

	return consts.RewritePlan, graph, compose.WithNodeName(consts.RewritePlan)
}

// rewriteNode 重写后回到人工审核
func (r *rewriterImpl) rewriteNode(ctx context.Context, _ string) (output string, err error) {
	var req Request
	if err := compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		req = Request{
			Topic:             state.Topic,
			InternalDocuments: state.InternalDocuments,
			Scope:             state.Scope(),
			Sections:          state.Plan().Sections,
			Feedback:          state.FeedbackOnReportPlan,
			PlanContext:       state.PlanContext,
		}
		return nil
	}); err != nil {
		return "", err
	}

	res, err := r.planner.Rewrite(ctx, req)
	if err != nil {
		slog.Error("rewriteNode failed, topic = %s, err = %+v", req.Topic, err)
		return "", err
	}

	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		state.Description = res.Description
		state.Sections = res.Sections
		state.PlanContext = res.Context
		state.FeedbackOnReportPlan = ""
		state.Goto = consts.Human
		output = state.Goto
		return nil
	})
	return output, err
}
