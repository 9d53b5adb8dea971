package human

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runHuman 在带有全局状态的图中运行审核节点，返回路由结果和反馈
func runHuman(t *testing.T, resume *model.PlanFeedback) (*model.ReportState, error) {
	t.Helper()
	ctx := context.Background()

	graph := compose.NewGraph[string, *model.ReportState](
		compose.WithGenLocalState(func(ctx context.Context) *model.ReportState {
			return &model.ReportState{Topic: "EV", Resume: resume}
		}),
	)
	key, node, opt := NewHuman().NewGraphNode(ctx)
	require.Equal(t, consts.Human, key)
	require.NoError(t, graph.AddGraphNode(key, node, opt))
	require.NoError(t, graph.AddLambdaNode("peek", compose.InvokableLambda(func(ctx context.Context, _ string) (out *model.ReportState, err error) {
		err = compose.ProcessState[*model.ReportState](ctx, func(_ context.Context, s *model.ReportState) error {
			snapshot := *s
			out = &snapshot
			return nil
		})
		return out, err
	})))
	require.NoError(t, graph.AddEdge(compose.START, key))
	require.NoError(t, graph.AddEdge(key, "peek"))
	require.NoError(t, graph.AddEdge("peek", compose.END))

	r, err := graph.Compile(ctx, compose.WithCheckPointStore(checkpoint.NewMemory()))
	require.NoError(t, err)
	return r.Invoke(ctx, "", compose.WithCheckPointID("thread"))
}

func TestApprovedPlanGoesToResearch(t *testing.T) {
	s, err := runHuman(t, &model.PlanFeedback{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, consts.BuildSections, s.Goto)
	assert.Nil(t, s.Resume)
	assert.Empty(t, s.FeedbackOnReportPlan)
}

func TestFeedbackGoesToRewrite(t *testing.T) {
	s, err := runHuman(t, &model.PlanFeedback{Text: "merge the last two sections"})
	require.NoError(t, err)
	assert.Equal(t, consts.RewritePlan, s.Goto)
	assert.Equal(t, "merge the last two sections", s.FeedbackOnReportPlan)
	assert.Nil(t, s.Resume)
}

func TestMissingFeedbackInterrupts(t *testing.T) {
	_, err := runHuman(t, nil)
	require.Error(t, err)
	info, ok := compose.ExtractInterruptInfo(err)
	require.True(t, ok)
	require.NotNil(t, info)
}
