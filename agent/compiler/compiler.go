// Package compiler 汇总已完成章节、撰写无需研究的章节并拼接最终报告
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/template"
)

var (
	// ErrSectionMissing 大纲中的章节没有对应的完成内容
	ErrSectionMissing = errors.New("section missing from completed sections")
	// ErrDuplicateSection 章节名重复
	ErrDuplicateSection = errors.New("duplicate section name")
)

// FormatSections 将章节格式化为撰写其余章节时的上下文
func FormatSections(sections []model.Section) string {
	sep := strings.Repeat("=", 60)
	var b strings.Builder
	for i, s := range sections {
		content := s.Content
		if content == "" {
			content = "[Not yet written]"
		}
		fmt.Fprintf(&b, "\n%s\nSection %d: %s\n%s\nDescription:\n%s\nRequires Research: \n%t\n\nContent:\n%s\n\n",
			sep, i+1, s.Name, sep, s.Description, s.Research, content)
	}
	return b.String()
}

// Compile 按大纲顺序拼接章节内容，章节名在大纲和完成列表中都必须唯一
func Compile(plan, completed []model.Section) (string, error) {
	names := make(map[string]bool, len(plan))
	for _, s := range plan {
		if names[s.Name] {
			return "", fmt.Errorf("%w: %q in plan", ErrDuplicateSection, s.Name)
		}
		names[s.Name] = true
	}
	byName := make(map[string]string, len(completed))
	for _, s := range completed {
		if _, ok := byName[s.Name]; ok {
			return "", fmt.Errorf("%w: %q in completed sections", ErrDuplicateSection, s.Name)
		}
		byName[s.Name] = s.Content
	}

	parts := make([]string, 0, len(plan))
	for _, s := range plan {
		content, ok := byName[s.Name]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrSectionMissing, s.Name)
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// gatherImpl 汇总研究完成的章节
type gatherImpl struct{}

// NewGather 创建实例
func NewGather() *gatherImpl {
	return &gatherImpl{}
}

// NewGraphNode 创建任务图
func (g *gatherImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[string, string]()
	_ = graph.AddLambdaNode("gather", compose.InvokableLambda(gather))
	_ = graph.AddEdge(compose.START, "gather")
	_ = graph.AddEdge("gather", compose.END)
	return consts.GatherSections, graph, compose.WithNodeName(consts.GatherSections)
}

func gather(ctx context.Context, _ string) (output string, err error) {
	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		state.ReportSectionsFromResearch = FormatSections(state.CompletedSections)
		state.Goto = consts.WriteFinalSections
		output = state.Goto
		return nil
	})
	return output, err
}

// finalWriterImpl 撰写无需研究的章节
type finalWriterImpl struct {
	deps *comm.Deps
}

// NewFinalWriter 创建实例
func NewFinalWriter(deps *comm.Deps) *finalWriterImpl {
	return &finalWriterImpl{deps: deps}
}

// NewGraphNode 创建任务图
func (w *finalWriterImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[string, string]()
	_ = graph.AddLambdaNode("write", compose.InvokableLambda(w.writeNode))
	_ = graph.AddEdge(compose.START, "write")
	_ = graph.AddEdge("write", compose.END)
	return consts.WriteFinalSections, graph, compose.WithNodeName(consts.WriteFinalSections)
}

func (w *finalWriterImpl) writeNode(ctx context.Context, _ string) (output string, err error) {
	var (
		topic, transcript string
		pending           []model.Section
	)
	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		topic = state.Topic
		transcript = state.ReportSectionsFromResearch
		for _, s := range state.Sections {
			if !s.NeedsResearch() {
				pending = append(pending, s)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("writeNode failed, read state err = %+v", err)
		return "", err
	}

	written, err := w.Write(ctx, topic, transcript, pending)
	if err != nil {
		return "", err
	}

	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		state.CompletedSections = append(state.CompletedSections, written...)
		state.Goto = consts.CompileReport
		output = state.Goto
		return nil
	})
	return output, err
}

// Write 并行撰写章节，结果保持输入顺序
func (w *finalWriterImpl) Write(ctx context.Context, topic, transcript string, sections []model.Section) ([]model.Section, error) {
	out := make([]model.Section, len(sections))
	roles := w.deps.Roles

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(w.deps.Setting.MaxConcurrency, 1))
	for i, s := range sections {
		eg.Go(func() error {
			msgs, err := template.Format(egCtx, template.FinalSectionWriter, map[string]any{
				"topic":               topic,
				"section_name":        s.Name,
				"section_description": s.Description,
				"context":             transcript,
			}, "Generate a report section based on the provided sources.")
			if err != nil {
				return err
			}
			content, err := llm.Complete(egCtx, roles.FinalWriter, llm.NameFinalWriter, roles.Retries, msgs)
			if err != nil {
				slog.Error("Write failed, section = %s, err = %+v", s.Name, err)
				return fmt.Errorf("write section %q: %w", s.Name, err)
			}
			s.Content = content
			out[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reportImpl 拼接最终报告
type reportImpl struct{}

// NewReport 创建实例
func NewReport() *reportImpl {
	return &reportImpl{}
}

// NewGraphNode 创建任务图，输出报告完成时的状态快照
func (r *reportImpl) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[string, *model.ReportState]()
	_ = graph.AddLambdaNode("compile", compose.InvokableLambda(compileReport))
	_ = graph.AddEdge(compose.START, "compile")
	_ = graph.AddEdge("compile", compose.END)
	return consts.CompileReport, graph, compose.WithNodeName(consts.CompileReport)
}

func compileReport(ctx context.Context, _ string) (out *model.ReportState, err error) {
	err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, state *model.ReportState) error {
		report, err := Compile(state.Sections, state.CompletedSections)
		if err != nil {
			slog.Error("compileReport failed, topic = %s, err = %+v", state.Topic, err)
			return err
		}
		state.FinalReport = report
		state.Goto = compose.END

		snapshot := *state
		snapshot.Sections = ordered(state.Sections, state.CompletedSections)
		snapshot.CompletedSections = append([]model.Section(nil), state.CompletedSections...)
		out = &snapshot
		return nil
	})
	return out, err
}

// ordered 按大纲顺序返回完成的章节
func ordered(plan, completed []model.Section) []model.Section {
	byName := make(map[string]model.Section, len(completed))
	for _, s := range completed {
		byName[s.Name] = s
	}
	out := make([]model.Section, 0, len(plan))
	for _, s := range plan {
		out = append(out, byName[s.Name])
	}
	return out
}
