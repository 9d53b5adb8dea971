package researcher

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/callback"
)

// researcherTeamImpl 研究团队，为每个需要研究的章节派发独立的研究子图并等待全部完成
type researcherTeamImpl struct {
	deps    *comm.Deps
	section compose.Runnable[model.SectionInput, model.Section]
}

// NewResearcherTeam 创建实例
func NewResearcherTeam(ctx context.Context, deps *comm.Deps) (*researcherTeamImpl, error) {
	section, err := NewSectionGraph(ctx, deps)
	if err != nil {
		return nil, err
	}
	return &researcherTeamImpl{deps: deps, section: section}, nil
}

// NewGraphNode 创建任务图
func (r *researcherTeamImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[string, string]()

	_ = graph.AddLambdaNode("dispatch", compose.InvokableLambda(r.dispatch))
	_ = graph.AddEdge(compose.START, "dispatch")
	_ = graph.AddEdge("dispatch", compose.END)

	return consts.BuildSections, graph, compose.WithNodeName(consts.BuildSections)
}

// dispatch 并行研究章节，结果按大纲顺序追加到 CompletedSections
func (r *researcherTeamImpl) dispatch(ctx context.Context, _ string) (output string, err error) {
	var (
		inputs []model.SectionInput
		userID string
	)
	if err := compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		for _, s := range state.Sections {
			if !s.NeedsResearch() {
				continue
			}
			inputs = append(inputs, model.SectionInput{
				Topic:             state.Topic,
				Section:           s,
				InternalDocuments: state.InternalDocuments,
				Scope:             state.Scope(),
			})
		}
		userID = state.UserID
		return nil
	}); err != nil {
		return "", err
	}

	completed, err := r.Research(ctx, inputs)
	if err != nil {
		return "", err
	}
	slog.Info("dispatch info, user = %s, researched sections = %d", userID, len(completed))

	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		state.CompletedSections = append(state.CompletedSections, completed...)
		state.Goto = consts.GatherSections
		output = state.Goto
		return nil
	})
	return output, err
}

// Research 每个章节运行一次研究子图，任一章节失败则整体失败
func (r *researcherTeamImpl) Research(ctx context.Context, inputs []model.SectionInput) ([]model.Section, error) {
	out := make([]model.Section, len(inputs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(r.deps.Setting.MaxConcurrency, 1))
	for i, in := range inputs {
		eg.Go(func() error {
			sec, err := r.section.Invoke(egCtx, in, compose.WithCallbacks(callback.NewEventCallback("")))
			if err != nil {
				slog.Error("Research failed, section = %s, err = %+v", in.Section.Name, err)
				return fmt.Errorf("research section %q: %w", in.Section.Name, err)
			}
			out[i] = sec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
