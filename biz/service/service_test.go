package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hildam/deep-dive-go/agent"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrchestrator 记录调用并返回预设结果
type fakeOrchestrator struct {
	started  *model.ReportInput
	threadID string
	resumed  []*model.PlanFeedback
	start    func() (*agent.Outcome, error)
	resume   func(fb *model.PlanFeedback) (*agent.Outcome, error)
}

func (f *fakeOrchestrator) Start(ctx context.Context, threadID string, in *model.ReportInput) (*agent.Outcome, error) {
	f.threadID, f.started = threadID, in
	return f.start()
}

func (f *fakeOrchestrator) Resume(ctx context.Context, threadID string, fb *model.PlanFeedback) (*agent.Outcome, error) {
	f.threadID = threadID
	f.resumed = append(f.resumed, fb)
	return f.resume(fb)
}

var plan = &model.ReportPlan{
	Description: "EV outlook",
	Sections: []model.Section{
		{Name: "Introduction"},
		{Name: "Market", Research: true},
	},
}

func newResearch(t *testing.T) (*ResearchService, *store.Memory, *fakeOrchestrator) {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.InsertDocument(context.Background(), &model.Document{
		ID: "d1", UserID: "u1", Name: "10-K", DocumentType: "filing", Domain: "finance", Description: "annual",
	}))
	orch := &fakeOrchestrator{
		start: func() (*agent.Outcome, error) { return &agent.Outcome{Interrupted: true, Plan: plan}, nil },
		resume: func(fb *model.PlanFeedback) (*agent.Outcome, error) {
			if !fb.Approved {
				revised := *plan
				revised.Description = "EV outlook v2"
				return &agent.Outcome{Interrupted: true, Plan: &revised}, nil
			}
			return &agent.Outcome{
				Report: "## Introduction\n\n## Market",
				Sections: []model.Section{
					{Name: "Introduction"},
					{Name: "Market", Sources: model.SourceList{{Sources: []model.SourceRef{
						{Title: "IEA", URL: "https://iea.example"}, {Title: "BNEF"},
					}}}},
				},
			}, nil
		},
	}
	return NewResearchService(st, st, orch), st, orch
}

func TestStartPlannerStoresPlan(t *testing.T) {
	ctx := context.Background()
	svc, st, orch := newResearch(t)
	rec := &event.Recorder{}

	res, err := svc.StartPlanner(event.WithSink(ctx, rec), "u1", "p1", " EV batteries ")
	require.NoError(t, err)
	assert.Equal(t, model.ResultPlan, res.Type)
	assert.Equal(t, "EV outlook", res.Description)
	assert.Len(t, res.Plan, 2)

	assert.Equal(t, res.ReportID, orch.threadID)
	assert.Equal(t, "EV batteries", orch.started.Topic)
	assert.Contains(t, orch.started.InternalDocuments, "Name: 10-K")
	assert.Equal(t, "p1", orch.started.ProjectID)

	saved, err := st.GetReport(ctx, "u1", res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, consts.StatusInPlanning, saved.Status)
	assert.Equal(t, consts.ResearchType, saved.Type)
	assert.Equal(t, plan.Sections, saved.Plan)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, consts.StatusInPlanning, events[0].Status)
}

func TestStartPlannerRejectsEmptyTopic(t *testing.T) {
	svc, _, _ := newResearch(t)
	_, err := svc.StartPlanner(context.Background(), "u1", "p1", "  ")
	assert.True(t, errors.Is(err, ErrEmptyTopic))
}

func TestContinueResearchFeedbackThenApproval(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newResearch(t)
	started, err := svc.StartPlanner(ctx, "u1", "p1", "EV batteries")
	require.NoError(t, err)

	res, err := svc.ContinueResearch(ctx, "u1", started.ReportID, &model.PlanFeedback{Text: "shorter"})
	require.NoError(t, err)
	assert.Equal(t, model.ResultPlan, res.Type)
	saved, err := st.GetReport(ctx, "u1", started.ReportID)
	require.NoError(t, err)
	assert.Equal(t, "EV outlook v2", saved.Description)
	assert.Equal(t, consts.StatusInPlanning, saved.Status)

	res, err = svc.ContinueResearch(ctx, "u1", started.ReportID, &model.PlanFeedback{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, model.ResultReport, res.Type)
	assert.Equal(t, "## Introduction\n\n## Market", res.Report)

	saved, err = st.GetReport(ctx, "u1", started.ReportID)
	require.NoError(t, err)
	assert.Equal(t, consts.StatusCompleted, saved.Status)
	assert.Equal(t, "## Introduction\n\n## Market", saved.Report)
	assert.Equal(t, []string{"https://iea.example", "BNEF"}, saved.Sources)
}

func TestContinueResearchErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, orch := newResearch(t)

	_, err := svc.ContinueResearch(ctx, "u1", "missing", &model.PlanFeedback{Approved: true})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = svc.ContinueResearch(ctx, "u1", "missing", &model.PlanFeedback{Text: " "})
	assert.True(t, errors.Is(err, model.ErrInvalidFeedback))
	assert.Empty(t, orch.resumed)

	started, err := svc.StartPlanner(ctx, "u1", "p1", "EV")
	require.NoError(t, err)
	_, err = svc.ContinueResearch(ctx, "someone-else", started.ReportID, &model.PlanFeedback{Approved: true})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestContinueResearchKeepsPlanWhenThreadIsGone(t *testing.T) {
	ctx := context.Background()
	svc, st, orch := newResearch(t)
	started, err := svc.StartPlanner(ctx, "u1", "p1", "EV batteries")
	require.NoError(t, err)

	orch.resume = func(*model.PlanFeedback) (*agent.Outcome, error) {
		return nil, fmt.Errorf("report thread %s: %w", started.ReportID, store.ErrNotFound)
	}
	_, err = svc.ContinueResearch(ctx, "u1", started.ReportID, &model.PlanFeedback{Approved: true})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	saved, err := st.GetReport(ctx, "u1", started.ReportID)
	require.NoError(t, err)
	assert.Equal(t, consts.StatusInPlanning, saved.Status)
	assert.Equal(t, "EV outlook", saved.Description)
	assert.Equal(t, plan.Sections, saved.Plan)
}

type fakeAnalyst struct {
	out string
	err error
}

func (f *fakeAnalyst) Run(ctx context.Context, objective string) (string, error) {
	event.Emit(ctx, model.Event{Event: consts.EventStatus, Status: consts.StatusWorking})
	event.Emit(ctx, model.Event{Event: consts.EventMessage, Type: consts.MessageExecutor, Task: "fetch", Content: "assets 10B"})
	event.Emit(ctx, model.Event{Event: consts.EventMessage, Type: consts.MessageInstructor, Content: "looks good"})
	return f.out, f.err
}

func TestWorkflowRunPersistsMessages(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewWorkflowService(st, &fakeAnalyst{out: "NVDA is healthy"})

	wf, created, err := svc.Prepare(ctx, RunRequest{UserID: "u1", Message: "Analyze NVDA"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "New Workflow", wf.Name)

	rec := &event.Recorder{}
	require.NoError(t, svc.Run(event.WithSink(ctx, rec), wf, "Analyze NVDA"))

	saved, err := st.GetWorkflow(ctx, "u1", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, consts.WorkflowCompleted, saved.Status)
	require.Len(t, saved.Messages, 4)
	assert.Equal(t, model.WorkflowMessage{Type: consts.MessageUser, Content: "Analyze NVDA"}, saved.Messages[0])
	assert.Equal(t, model.WorkflowMessage{Type: consts.MessageExecutor, Content: "assets 10B", Task: "fetch"}, saved.Messages[1])
	assert.Equal(t, consts.MessageInstructor, saved.Messages[2].Type)
	assert.Equal(t, model.WorkflowMessage{Type: consts.MessageCortex, Content: "NVDA is healthy"}, saved.Messages[3])

	events := rec.Events()
	require.Len(t, events, 4)
	last := events[len(events)-1]
	assert.Equal(t, consts.EventComplete, last.Event)
	assert.Equal(t, "NVDA is healthy", last.Content)
	assert.Equal(t, wf.ID, last.WorkflowID)

	// 继续已有工作流
	again, created, err := svc.Prepare(ctx, RunRequest{UserID: "u1", WorkflowID: wf.ID, Message: "and AMD?"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, again.Messages, 4)
}

func TestWorkflowRunFailureKeepsMessages(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewWorkflowService(st, &fakeAnalyst{err: errors.New("cycle limit")})

	wf, _, err := svc.Prepare(ctx, RunRequest{UserID: "u1", Message: "Analyze", Name: "NVDA review"})
	require.NoError(t, err)
	require.Error(t, svc.Run(ctx, wf, "Analyze"))

	saved, err := st.GetWorkflow(ctx, "u1", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "NVDA review", saved.Name)
	assert.Equal(t, consts.WorkflowInProgress, saved.Status)
	assert.Len(t, saved.Messages, 3)
}

func TestWorkflowPrepareErrors(t *testing.T) {
	svc := NewWorkflowService(store.NewMemory(), &fakeAnalyst{})
	_, _, err := svc.Prepare(context.Background(), RunRequest{UserID: "u1"})
	assert.True(t, errors.Is(err, ErrEmptyMessage))
	_, _, err = svc.Prepare(context.Background(), RunRequest{UserID: "u1", WorkflowID: "nope", Message: "hi"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
