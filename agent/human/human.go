package human

import (
	"context"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
)

// humanImpl 人工审核大纲
type humanImpl struct{}

// NewHuman 创建实例
func NewHuman() *humanImpl {
	return &humanImpl{}
}

// NewGraphNode 创建任务图
func (h *humanImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建新的DAG图实例
	graph := compose.NewGraph[string, string]()

	// 构建线性工作流：开始 → 路由决策 → 结束
	_ = graph.AddLambdaNode("router", compose.InvokableLambda(router))
	_ = graph.AddEdge(compose.START, "router")
	_ = graph.AddEdge("router", compose.END)
	return consts.Human, graph, compose.WithNodeName(consts.Human)
}

// router 没有审核结果时中断等待，通过则派发研究，否则带着反馈去重写大纲
func router(ctx context.Context, _ string) (output string, err error) {
	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		if state.Resume == nil {
			slog.Info("human router info, waiting for plan feedback, topic = %s", state.Topic)
			return compose.InterruptAndRerun
		}

		// 恢复载荷只消费一次
		fb := state.Resume
		state.Resume = nil

		if fb.Approved {
			state.Goto = consts.BuildSections
		} else {
			state.FeedbackOnReportPlan = fb.Text
			state.Goto = consts.RewritePlan
		}
		output = state.Goto
		return nil
	})
	return output, err
}
