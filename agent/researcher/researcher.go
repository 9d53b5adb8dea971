package researcher

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/metrics"
	"github.com/hildam/deep-dive-go/repo/template"
)

// sectionResearcher 单个章节的研究子图：生成查询、检索、撰写、评分，直到通过或轮数用尽
type sectionResearcher struct {
	deps *comm.Deps
}

// NewSectionGraph 编译章节研究子图，每次 Invoke 拥有独立的局部状态
func NewSectionGraph(ctx context.Context, deps *comm.Deps) (compose.Runnable[model.SectionInput, model.Section], error) {
	r := &sectionResearcher{deps: deps}

	graph := compose.NewGraph[model.SectionInput, model.Section](
		compose.WithGenLocalState(func(ctx context.Context) *model.SectionState {
			return &model.SectionState{}
		}),
	)

	_ = graph.AddLambdaNode(consts.SectionLoad, compose.InvokableLambda(loadSection), compose.WithNodeName(consts.SectionLoad))
	_ = graph.AddLambdaNode(consts.GenerateQueries, compose.InvokableLambda(r.generateQueries), compose.WithNodeName(consts.GenerateQueries))
	_ = graph.AddLambdaNode(consts.Research, compose.InvokableLambda(r.research), compose.WithNodeName(consts.Research))
	_ = graph.AddLambdaNode(consts.WriteSection, compose.InvokableLambda(r.writeSection), compose.WithNodeName(consts.WriteSection))
	_ = graph.AddLambdaNode(consts.GradeSection, compose.InvokableLambda(r.grade), compose.WithNodeName(consts.GradeSection))
	_ = graph.AddLambdaNode(consts.PublishSection, compose.InvokableLambda(publish), compose.WithNodeName(consts.PublishSection))

	_ = graph.AddEdge(compose.START, consts.SectionLoad)
	_ = graph.AddEdge(consts.SectionLoad, consts.GenerateQueries)
	_ = graph.AddEdge(consts.GenerateQueries, consts.Research)
	_ = graph.AddEdge(consts.Research, consts.WriteSection)
	_ = graph.AddEdge(consts.WriteSection, consts.GradeSection)
	_ = graph.AddBranch(consts.GradeSection, compose.NewGraphBranch(routeAfterGrade, map[string]bool{
		consts.Research:       true,
		consts.PublishSection: true,
	}))
	_ = graph.AddEdge(consts.PublishSection, compose.END)

	// 每轮 research → write → grade 三步，加上首尾节点
	maxSteps := 3*deps.Report.MaxSearchIterations + 8
	runnable, err := graph.Compile(ctx,
		compose.WithGraphName(consts.SectionGraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		slog.Error("NewSectionGraph failed, err = %+v", err)
		return nil, err
	}
	return runnable, nil
}

// loadSection 将派发的任务写入局部状态
func loadSection(ctx context.Context, in model.SectionInput) (string, error) {
	err := compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		state.Topic = in.Topic
		state.Section = in.Section
		state.InternalDocuments = in.InternalDocuments
		state.Scope = in.Scope
		return nil
	})
	return consts.GenerateQueries, err
}

// generateQueries 需要网络研究时生成网络查询，需要内部检索时生成内部查询，两者可同时生成
func (r *sectionResearcher) generateQueries(ctx context.Context, _ string) (string, error) {
	var st model.SectionState
	if err := compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		st = *state
		return nil
	}); err != nil {
		return "", err
	}

	vars := map[string]any{
		"topic":              st.Topic,
		"section_topic":      st.Section.Name,
		"number_of_queries":  r.deps.Report.NumberOfQueries,
		"internal_documents": st.InternalDocuments,
	}
	roles := r.deps.Roles

	var webQ, internalQ []string
	if st.Section.Research {
		msgs, err := template.Format(ctx, template.SectionQueryWeb, vars, "Generate search queries on the provided topic.")
		if err != nil {
			return "", err
		}
		q, err := llm.Invoke[model.Queries](ctx, roles.QueryWriter, llm.NameQueries, roles.Retries, msgs)
		if err != nil {
			return "", err
		}
		webQ = model.QueryStrings(q.Queries)
	}
	if st.Section.InternalSearch && r.deps.Hybrid() {
		msgs, err := template.Format(ctx, template.SectionQueryInternal, vars, "Generate internal knowledge base queries on the provided topic.")
		if err != nil {
			return "", err
		}
		q, err := llm.Invoke[model.Queries](ctx, roles.QueryWriter, llm.NameQueries, roles.Retries, msgs)
		if err != nil {
			return "", err
		}
		internalQ = model.QueryStrings(q.Queries)
	}

	slog.Debug("generateQueries debug, section = %s, web = %d, internal = %d", st.Section.Name, len(webQ), len(internalQ))
	err := compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		state.SearchQueries = webQ
		state.InternalSearchQueries = internalQ
		return nil
	})
	return consts.Research, err
}

// research 执行一轮检索，失败的渠道使用兜底文案，所有执行的渠道都失败时标记降级
func (r *sectionResearcher) research(ctx context.Context, _ string) (string, error) {
	var (
		webQ, internalQ []string
		scope           model.Scope
		name            string
	)
	if err := compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		webQ = append(webQ, state.SearchQueries...)
		internalQ = append(internalQ, state.InternalSearchQueries...)
		scope = state.Scope
		name = state.Section.Name
		return nil
	}); err != nil {
		return "", err
	}

	web, err := comm.WebEvidence(ctx, r.deps.Search, webQ)
	if err != nil {
		return "", err
	}
	internal, err := comm.InternalEvidence(ctx, r.deps.Search, internalQ, scope)
	if err != nil {
		return "", err
	}
	degraded := (web.Ran || internal.Ran) && (!web.Ran || web.Failed) && (!internal.Ran || internal.Failed)
	if degraded {
		slog.Error("research failed, section = %s, every search channel failed", name)
	}

	err = compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		state.SearchIterations++
		state.SearchResults = web.Text
		state.InternalSearchResults = internal.Text
		state.SearchSources = mergeSources(state.SearchSources, web.Sources)
		state.Degraded = degraded
		slog.Debug("research debug, section = %s, iteration = %d", name, state.SearchIterations)
		return nil
	})
	return consts.WriteSection, err
}

// writeSection 撰写章节并回填引用链接
func (r *sectionResearcher) writeSection(ctx context.Context, _ string) (string, error) {
	var st model.SectionState
	if err := compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		st = *state
		return nil
	}); err != nil {
		return "", err
	}

	inputs, err := template.GetPromptTemplate(ctx, template.SectionWriterInputs)
	if err != nil {
		return "", err
	}
	msgs, err := template.Format(ctx, template.SectionWriter, map[string]any{
		"max_words":        r.deps.Report.MaxSectionWords,
		"topic":            st.Topic,
		"section_name":     st.Section.Name,
		"section_topic":    st.Section.Description,
		"section_content":  st.Section.Content,
		"context":          st.SearchResults,
		"internal_context": st.InternalSearchResults,
	}, inputs)
	if err != nil {
		return "", err
	}

	roles := r.deps.Roles
	content, err := llm.Invoke[model.SectionContent](ctx, roles.SectionWriter, llm.NameSectionWriter, roles.Retries, msgs)
	if err != nil {
		slog.Error("writeSection failed, section = %s, err = %+v", st.Section.Name, err)
		return "", err
	}
	citations := backfillLinks(content.Sources, st.SearchSources)

	err = compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		state.Section.Content = content.Content
		state.Section.Sources = citations
		return nil
	})
	return consts.GradeSection, err
}

// grade 评分，通过或轮数用尽时发布；未通过且没有追加查询时同样发布
func (r *sectionResearcher) grade(ctx context.Context, _ string) (string, error) {
	var st model.SectionState
	if err := compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		st = *state
		return nil
	}); err != nil {
		return "", err
	}

	msgs, err := template.Format(ctx, template.SectionGrader, map[string]any{
		"topic":                       st.Topic,
		"section_topic":               st.Section.Description,
		"section":                     st.Section.Content,
		"number_of_follow_up_queries": r.deps.Report.MaxFollowUpQueries,
	}, "Grade the report and consider follow-up questions for missing information.")
	if err != nil {
		return "", err
	}
	roles := r.deps.Roles
	fb, err := llm.Invoke[model.Feedback](ctx, roles.Grader, llm.NameFeedback, roles.Retries, msgs)
	if err != nil {
		slog.Error("grade failed, section = %s, err = %+v", st.Section.Name, err)
		return "", err
	}

	followUps := model.QueryStrings(fb.FollowUpQueries)
	next := consts.Research
	switch {
	case fb.Grade == consts.GradePass:
		next = consts.PublishSection
	case st.SearchIterations >= r.deps.Report.MaxSearchIterations:
		next = consts.PublishSection
	case len(followUps) == 0:
		next = consts.PublishSection
	}
	slog.Debug("grade debug, section = %s, grade = %s, iteration = %d, next = %s", st.Section.Name, fb.Grade, st.SearchIterations, next)

	err = compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		if next == consts.Research {
			// 追加查询只替换网络查询，内部查询每轮重跑
			state.SearchQueries = followUps
		}
		state.Goto = next
		return nil
	})
	return next, err
}

func routeAfterGrade(ctx context.Context, next string) (string, error) {
	return next, nil
}

// publish 输出完成的章节，降级时追加说明
func publish(ctx context.Context, _ string) (section model.Section, err error) {
	err = compose.ProcessState[*model.SectionState](ctx, func(_ context.Context, state *model.SectionState) error {
		if state.Degraded {
			state.Section.Content += consts.DegradedResearchNote
		}
		section = state.Section
		metrics.SectionIterations.Observe(float64(state.SearchIterations))
		return nil
	})
	if err != nil {
		return model.Section{}, fmt.Errorf("publish section: %w", err)
	}
	return section, nil
}

// backfillLinks 引用标题与检索来源相同时补上链接
func backfillLinks(citations []model.Citation, sources []model.SearchSource) model.SourceList {
	links := make(map[string]string, len(sources))
	for _, s := range sources {
		if link := s.Link(); link != "" && s.Title != "" {
			links[s.Title] = link
		}
	}
	out := make(model.SourceList, len(citations))
	for i, c := range citations {
		refs := make([]model.SourceRef, len(c.Sources))
		for j, ref := range c.Sources {
			if ref.URL == "" {
				ref.URL = links[ref.Title]
			}
			refs[j] = ref
		}
		c.Sources = refs
		out[i] = c
	}
	return out
}

// mergeSources 按标题合并多轮检索的来源
func mergeSources(have, more []model.SearchSource) []model.SearchSource {
	seen := make(map[string]bool, len(have))
	for _, s := range have {
		seen[s.Title] = true
	}
	for _, s := range more {
		if seen[s.Title] {
			continue
		}
		seen[s.Title] = true
		have = append(have, s)
	}
	return have
}
