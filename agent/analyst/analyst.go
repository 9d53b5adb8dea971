// Package analyst 金融分析的计划-执行-重规划循环
package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/agent/executor"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/callback"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/metrics"
	"github.com/hildam/deep-dive-go/repo/template"
)

// ErrCycleLimit 执行步数达到上限仍未得到答复
var ErrCycleLimit = errors.New("analyst cycle limit reached")

// roughPlan 规划模型参考的草稿计划
var roughPlan = []string{
	"Analyze the company's 2024 financials using the tool:\n- `analyze_balance_sheet`",
	"Analyze the company's 2024 financials using the tool:\n- `analyze_cash_flow`",
	"Analyze the company's 2024 financials using the tool:\n- `analyze_income_stmt`",
	"Analyze the company's 2024 financials using the tool:\n- `analyze_segment_stmt`",
	"Analyze the company's 2024 financials using the tool:\n- `income_summarization`",
	"Use `get_competitors_analysis` to compare financial metrics between the requested companies. Only use data from the financial metrics table for competitor analysis. Remove duplicate or similar sentences elsewhere.",
	"Use `get_risk_assessment` to extract the top 3 risks identified in the company's 10-K report.",
	"Write three paragraphs (150-160 words each) for:\n- Business Overview\n- Market Position\n- Operating Results\nusing insights from the financial analysis steps.",
	"Write two paragraphs (500-600 words each) for:\n- Risk Assessment\n- Competitors Analysis (only using the financial metrics table)",
	"Generate a detailed report with markdown formatting using all the data collected and analyzed in the past steps with the sections:\n- Business Overview\n- Market Position\n- Operating Results",
}

// Analyst 计划-执行-重规划循环
type Analyst struct {
	deps     *comm.Deps
	exec     executor.Executor
	runnable compose.Runnable[string, string]
}

// New 构建并编译循环图
func New(ctx context.Context, deps *comm.Deps, exec executor.Executor) (*Analyst, error) {
	a := &Analyst{deps: deps, exec: exec}

	graph := compose.NewGraph[string, string](
		compose.WithGenLocalState(func(ctx context.Context) *model.PlanExecuteState {
			return &model.PlanExecuteState{}
		}),
	)

	_ = graph.AddLambdaNode(consts.AnalystPlanner, compose.InvokableLambda(a.planStep), compose.WithNodeName(consts.AnalystPlanner))
	_ = graph.AddLambdaNode(consts.AnalystAgent, compose.InvokableLambda(a.executeStep), compose.WithNodeName(consts.AnalystAgent))
	_ = graph.AddLambdaNode(consts.AnalystReplan, compose.InvokableLambda(a.replanStep), compose.WithNodeName(consts.AnalystReplan))

	_ = graph.AddEdge(compose.START, consts.AnalystPlanner)
	_ = graph.AddEdge(consts.AnalystPlanner, consts.AnalystAgent)
	_ = graph.AddEdge(consts.AnalystAgent, consts.AnalystReplan)
	_ = graph.AddBranch(consts.AnalystReplan, compose.NewGraphBranch(a.shouldEnd, map[string]bool{
		consts.AnalystAgent: true,
		compose.END:         true,
	}))

	// 每个循环两步，加上规划和首尾
	runnable, err := graph.Compile(ctx,
		compose.WithGraphName(consts.AnalystGraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(2*deps.Setting.MaxCycles+6),
	)
	if err != nil {
		slog.Error("New analyst failed, compile err = %+v", err)
		return nil, err
	}
	a.runnable = runnable
	return a, nil
}

// Run 执行分析任务，返回最终答复
func (a *Analyst) Run(ctx context.Context, objective string) (string, error) {
	out, err := a.runnable.Invoke(ctx, objective, compose.WithCallbacks(callback.NewEventCallback("")))
	if err != nil {
		metrics.WorkflowRuns.WithLabelValues("analyst", "error").Inc()
		return "", err
	}
	if out == "" {
		metrics.WorkflowRuns.WithLabelValues("analyst", "cycle_limit").Inc()
		return "", fmt.Errorf("%w: %d steps", ErrCycleLimit, a.deps.Setting.MaxCycles)
	}
	metrics.WorkflowRuns.WithLabelValues("analyst", "completed").Inc()
	return out, nil
}

// planStep 以草稿计划为参考生成步骤
func (a *Analyst) planStep(ctx context.Context, objective string) (string, error) {
	msgs, err := template.Format(ctx, template.AnalystPlanner, map[string]any{
		"objective": objective,
		"plan":      numbered(roughPlan),
	})
	if err != nil {
		return "", err
	}
	roles := a.deps.Roles
	plan, err := llm.Invoke[model.StepPlan](ctx, roles.StepPlanner, llm.NameStepPlan, roles.Retries, msgs)
	if err != nil {
		slog.Error("planStep failed, err = %+v", err)
		return "", err
	}
	slog.Debug("planStep debug, steps = %d", len(plan.Steps))

	err = compose.ProcessState[*model.PlanExecuteState](ctx, func(_ context.Context, state *model.PlanExecuteState) error {
		state.Input = objective
		state.Plan = plan.Steps
		return nil
	})
	return consts.AnalystAgent, err
}

// executeStep 总是执行计划的第一步，执行失败作为步骤结果继续
func (a *Analyst) executeStep(ctx context.Context, _ string) (string, error) {
	var (
		plan []string
		past []model.PastStep
	)
	if err := compose.ProcessState[*model.PlanExecuteState](ctx, func(_ context.Context, state *model.PlanExecuteState) error {
		plan = append(plan, state.Plan...)
		past = append(past, state.PastSteps...)
		return nil
	}); err != nil {
		return "", err
	}
	if len(plan) == 0 {
		return "", errors.New("execute step: plan is empty")
	}
	task := plan[0]

	event.Emit(ctx, model.Event{Event: consts.EventStatus, Status: consts.StatusWorking})
	result, err := a.exec.Execute(ctx, TaskPrompt(plan, past))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Error("executeStep failed, task = %s, err = %+v", task, err)
		result = fmt.Sprintf("Error during execution: %v", err)
	}
	event.Emit(ctx, model.Event{Event: consts.EventMessage, Type: consts.MessageExecutor, Task: task, Content: result})

	err = compose.ProcessState[*model.PlanExecuteState](ctx, func(_ context.Context, state *model.PlanExecuteState) error {
		state.PastSteps = append(state.PastSteps, model.PastStep{Task: task, Result: result})
		return nil
	})
	return consts.AnalystReplan, err
}

// replanStep 计划为空时给出答复，否则替换剩余计划
func (a *Analyst) replanStep(ctx context.Context, _ string) (string, error) {
	var st model.PlanExecuteState
	if err := compose.ProcessState[*model.PlanExecuteState](ctx, func(_ context.Context, state *model.PlanExecuteState) error {
		st = *state
		return nil
	}); err != nil {
		return "", err
	}

	event.Emit(ctx, model.Event{Event: consts.EventStatus, Status: consts.StatusReasoning})
	msgs, err := template.Format(ctx, template.AnalystReplanner, map[string]any{
		"input":      st.Input,
		"plan":       numbered(st.Plan),
		"past_steps": FormatPastSteps(st.PastSteps),
	})
	if err != nil {
		return "", err
	}
	roles := a.deps.Roles
	act, err := llm.Invoke[model.Act](ctx, roles.Replanner, llm.NameAct, roles.Retries, msgs)
	if err != nil {
		slog.Error("replanStep failed, err = %+v", err)
		return "", err
	}
	event.Emit(ctx, model.Event{Event: consts.EventMessage, Type: consts.MessageInstructor, Content: act.Update})

	var response string
	err = compose.ProcessState[*model.PlanExecuteState](ctx, func(_ context.Context, state *model.PlanExecuteState) error {
		if len(act.Plan) > 0 {
			state.Plan = act.Plan
			return nil
		}
		state.Response = act.Update
		if state.Response == "" && len(state.PastSteps) > 0 {
			state.Response = state.PastSteps[len(state.PastSteps)-1].Result
		}
		if state.Response == "" {
			state.Response = "Task complete"
		}
		response = state.Response
		return nil
	})
	return response, err
}

// shouldEnd 有答复或执行步数达到上限时结束，达到上限时输出为空
func (a *Analyst) shouldEnd(ctx context.Context, _ string) (next string, err error) {
	err = compose.ProcessState[*model.PlanExecuteState](ctx, func(_ context.Context, state *model.PlanExecuteState) error {
		switch {
		case state.Response != "":
			next = compose.END
		case len(state.PastSteps) >= a.deps.Setting.MaxCycles:
			slog.Error("shouldEnd info, cycle limit %d reached", a.deps.Setting.MaxCycles)
			next = compose.END
		default:
			next = consts.AnalystAgent
		}
		return nil
	})
	return next, err
}

// TaskPrompt 执行者的任务提示：编号计划、当前步骤和已执行步骤
func TaskPrompt(plan []string, past []model.PastStep) string {
	return fmt.Sprintf("For the following plan:\n%s\n\nYou are tasked with executing step 1, %s. "+
		"Refer the past actions to populate any required information for calling the tools.\n\n## PAST ACTIONS\n%s\n\n",
		numbered(plan), plan[0], FormatPastSteps(past))
}

// FormatPastSteps 已执行步骤，Step 与 Response 成对出现
func FormatPastSteps(past []model.PastStep) string {
	parts := make([]string, 0, len(past))
	for _, p := range past {
		parts = append(parts, fmt.Sprintf("Step: %s\nResponse: %s", p.Task, p.Result))
	}
	return strings.Join(parts, "\n\n")
}

func numbered(steps []string) string {
	lines := make([]string, 0, len(steps))
	for i, s := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
	}
	return strings.Join(lines, "\n")
}
