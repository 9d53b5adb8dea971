package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/agent/compiler"
	"github.com/hildam/deep-dive-go/agent/human"
	"github.com/hildam/deep-dive-go/agent/planner"
	"github.com/hildam/deep-dive-go/agent/researcher"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/callback"
	"github.com/hildam/deep-dive-go/repo/metrics"
	"github.com/hildam/deep-dive-go/repo/store"
)

// Agent 定义了一个代理接口，用于创建和管理代理实例
type Agent interface {
	// NewGraphNode 获取代理节点
	NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt)
}

// Outcome 一次运行的结果：等待审核的大纲，或者最终报告
type Outcome struct {
	Interrupted bool
	Plan        *model.ReportPlan // Interrupted 时有值
	Report      string
	Sections    []model.Section // 按大纲顺序的完成章节
}

// Orchestrator 报告工作流，状态按线程ID保存在 checkpoint 中
type Orchestrator struct {
	runnable compose.Runnable[*model.ReportInput, *model.ReportState]
	cp       compose.CheckPointStore
}

// NewOrchestrator 构建并编译报告工作流
func NewOrchestrator(ctx context.Context, deps *comm.Deps, cp compose.CheckPointStore) (*Orchestrator, error) {
	runnable, err := BuildAgentGraph(ctx, deps, cp)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{runnable: runnable, cp: cp}, nil
}

// BuildAgentGraph 用于构建报告工作流图
func BuildAgentGraph(ctx context.Context, deps *comm.Deps, cp compose.CheckPointStore) (compose.Runnable[*model.ReportInput, *model.ReportState], error) {
	// 初始化状态
	stateGenFunc := func(ctx context.Context) *model.ReportState {
		return &model.ReportState{Goto: consts.GeneratePlan}
	}

	// 创建 Agent 流程图
	graph := compose.NewGraph[*model.ReportInput, *model.ReportState](
		compose.WithGenLocalState(stateGenFunc),
	)

	team, err := researcher.NewResearcherTeam(ctx, deps)
	if err != nil {
		return nil, err
	}
	plan := planner.NewPlanner(deps)

	// 定义agent实例映射，确保节点名字与实例严格对应
	agentInstances := map[string]Agent{
		consts.GeneratePlan:       plan,
		consts.Human:              human.NewHuman(),
		consts.RewritePlan:        planner.NewRewriter(plan),
		consts.BuildSections:      team,
		consts.GatherSections:     compiler.NewGather(),
		consts.WriteFinalSections: compiler.NewFinalWriter(deps),
		consts.CompileReport:      compiler.NewReport(),
	}

	// 构造任务图 - 使用映射确保名字与实例对应
	for agentName, agentInstance := range agentInstances {
		key, node, nameOption := agentInstance.NewGraphNode(ctx)
		// 验证返回的key与预期的agentName一致
		if key != agentName {
			slog.Error("Agent key mismatch: expected %s, got %s", agentName, key)
			return nil, fmt.Errorf("agent key mismatch: expected %s, got %s", agentName, key)
		}
		if err := graph.AddGraphNode(key, node, nameOption); err != nil {
			return nil, fmt.Errorf("add node %s: %w", key, err)
		}
	}

	// 除最终报告外的节点都根据 Goto 路由
	for agentName := range agentInstances {
		if agentName == consts.CompileReport {
			continue
		}
		if err := graph.AddBranch(agentName, compose.NewGraphBranch(routeToNextAgent, getAgentGraphMap())); err != nil {
			return nil, fmt.Errorf("add branch %s: %w", agentName, err)
		}
	}

	// 构造起止边
	_ = graph.AddEdge(compose.START, consts.GeneratePlan)
	_ = graph.AddEdge(consts.CompileReport, compose.END)

	// 编译图
	runnable, err := graph.Compile(ctx,
		compose.WithGraphName(consts.ReportGraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithCheckPointStore(cp), // 全局状态存储点
	)
	if err != nil {
		slog.Error("BuildAgentGraph failed, err = %v", err)
		return nil, err
	}
	return runnable, nil
}

// routeToNextAgent 根据状态中的Goto字段路由到下一个代理节点
func routeToNextAgent(ctx context.Context, input string) (next string, err error) {
	defer func() {
		slog.Info("route_to_next_agent info, input = %s, next = %s", input, next)
	}()
	_ = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		next = state.Goto
		return nil
	})
	return next, nil
}

// getAgentGraphMap 返回路由可以到达的节点，生成大纲只作为入口
func getAgentGraphMap() map[string]bool {
	return map[string]bool{
		consts.Human:              true, // 人工审核大纲
		consts.RewritePlan:        true, // 根据反馈重写大纲
		consts.BuildSections:      true, // 并行研究章节
		consts.GatherSections:     true, // 汇总已完成章节
		consts.WriteFinalSections: true, // 撰写无需研究的章节
		consts.CompileReport:      true, // 拼接最终报告
	}
}

// Start 开始一次报告工作流，通常停在人工审核处
func (o *Orchestrator) Start(ctx context.Context, threadID string, in *model.ReportInput) (*Outcome, error) {
	if in == nil || in.Topic == "" {
		return nil, errors.New("report topic is empty")
	}
	return o.run(ctx, threadID, in)
}

// Resume 注入审核结果后从 checkpoint 恢复，线程没有 checkpoint 时返回 store.ErrNotFound
func (o *Orchestrator) Resume(ctx context.Context, threadID string, fb *model.PlanFeedback) (*Outcome, error) {
	if fb == nil || (!fb.Approved && fb.Text == "") {
		return nil, model.ErrInvalidFeedback
	}
	// 没有 checkpoint 时 eino 会以空输入重新开始，必须先确认线程存在
	_, ok, err := o.cp.Get(ctx, threadID)
	if err != nil {
		slog.Error("Resume failed, thread = %s, get checkpoint err = %+v", threadID, err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("report thread %s: %w", threadID, store.ErrNotFound)
	}
	modifier := compose.WithStateModifier(func(ctx context.Context, path compose.NodePath, state any) error {
		if s, ok := state.(*model.ReportState); ok {
			s.Resume = fb
		}
		return nil
	})
	return o.run(ctx, threadID, &model.ReportInput{}, modifier)
}

func (o *Orchestrator) run(ctx context.Context, threadID string, in *model.ReportInput, opts ...compose.Option) (*Outcome, error) {
	opts = append(opts,
		compose.WithCheckPointID(threadID),
		compose.WithCallbacks(callback.NewEventCallback(threadID)),
	)
	state, err := o.runnable.Invoke(ctx, in, opts...)
	if err != nil {
		if info, ok := compose.ExtractInterruptInfo(err); ok {
			plan, found := planFromInterrupt(info)
			if !found {
				metrics.WorkflowRuns.WithLabelValues("report", "error").Inc()
				return nil, fmt.Errorf("interrupted without report state: %w", err)
			}
			slog.Info("run info, thread = %s waiting for plan feedback, sections = %d", threadID, len(plan.Sections))
			metrics.WorkflowRuns.WithLabelValues("report", "interrupted").Inc()
			return &Outcome{Interrupted: true, Plan: plan}, nil
		}
		slog.Error("run failed, thread = %s, err = %+v", threadID, err)
		metrics.WorkflowRuns.WithLabelValues("report", "error").Inc()
		return nil, err
	}

	metrics.WorkflowRuns.WithLabelValues("report", "completed").Inc()
	return &Outcome{Report: state.FinalReport, Sections: state.Sections}, nil
}

// planFromInterrupt 从中断信息中取出大纲，中断可能发生在子图内
func planFromInterrupt(info *compose.InterruptInfo) (*model.ReportPlan, bool) {
	if info == nil {
		return nil, false
	}
	if s, ok := info.State.(*model.ReportState); ok {
		return s.Plan(), true
	}
	for _, sub := range info.SubGraphs {
		if plan, ok := planFromInterrupt(sub); ok {
			return plan, true
		}
	}
	return nil, false
}
