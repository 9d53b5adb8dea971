package planner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/llm/llmtest"
	"github.com/hildam/deep-dive-go/repo/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webFunc func(ctx context.Context, q string) (string, []model.SearchSource, error)

func (f webFunc) Search(ctx context.Context, q string) (string, []model.SearchSource, error) {
	return f(ctx, q)
}

type internalFunc func(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error

func (f internalFunc) Search(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error {
	return f(ctx, queries, scope, visit)
}

func queries(qs ...string) model.Queries {
	out := model.Queries{}
	for _, q := range qs {
		out.Queries = append(out.Queries, model.SearchQuery{SearchQuery: q})
	}
	return out
}

var plannedSections = model.Sections{
	Description: "EV battery outlook",
	Sections: []model.Section{
		{Name: "Introduction"},
		{Name: "Supply", Research: true, InternalSearch: true},
		{Name: "Conclusion"},
	},
}

func newDeps(mode string, roles *llm.Roles, g *search.Gateway) *comm.Deps {
	return &comm.Deps{
		Roles:  roles,
		Search: g,
		Report: conf.ReportConfig{
			ReportStructure: consts.DefaultReportStructure,
			NumberOfQueries: 2,
			Mode:            mode,
		},
	}
}

func TestGenerateWebModeGatesInternalSearch(t *testing.T) {
	var webCalls atomic.Int32
	g := search.NewGateway(webFunc(func(ctx context.Context, q string) (string, []model.SearchSource, error) {
		webCalls.Add(1)
		return "web about " + q, nil, nil
	}), nil, 2)
	roles := &llm.Roles{
		QueryWriter: llmtest.NewScript(llmtest.JSON(queries("lithium supply", "cathode prices"))),
		Planner:     llmtest.NewScript(llmtest.JSON(plannedSections)),
	}

	res, err := NewPlanner(newDeps(consts.ModeWebSearch, roles, g)).Generate(context.Background(), Request{Topic: "EV batteries"})
	require.NoError(t, err)

	assert.EqualValues(t, 2, webCalls.Load())
	assert.Equal(t, "EV battery outlook", res.Description)
	require.Len(t, res.Sections, 3)
	for _, s := range res.Sections {
		assert.False(t, s.InternalSearch, s.Name)
	}
	assert.True(t, res.Sections[1].Research)
	assert.Contains(t, res.Context, "web about lithium supply")
}

func TestGenerateHybridJoinsInternalThenWeb(t *testing.T) {
	g := search.NewGateway(
		webFunc(func(ctx context.Context, q string) (string, []model.SearchSource, error) {
			return "WEB", nil, nil
		}),
		internalFunc(func(ctx context.Context, qs []string, scope model.Scope, visit func(model.SearchRecord) error) error {
			assert.Equal(t, "u1", scope.UserID)
			return visit(model.SearchRecord{Type: consts.RecordTypeResponse, Query: qs[0], Response: "INTERNAL"})
		}), 1)
	hybrid := model.HybridQueries{
		InternalSearchQueries: []model.SearchQuery{{SearchQuery: "memo"}},
		WebSearchQueries:      []model.SearchQuery{{SearchQuery: "news"}},
	}
	roles := &llm.Roles{
		HybridQueryWriter: llmtest.NewScript(llmtest.JSON(hybrid)),
		Planner:           llmtest.NewScript(llmtest.JSON(plannedSections)),
	}

	res, err := NewPlanner(newDeps(consts.ModeHybridRAG, roles, g)).Generate(context.Background(),
		Request{Topic: "EV", Scope: model.Scope{UserID: "u1"}})
	require.NoError(t, err)

	assert.True(t, res.Sections[1].InternalSearch)
	internalAt := strings.Index(res.Context, "INTERNAL")
	webAt := strings.Index(res.Context, "WEB")
	require.GreaterOrEqual(t, internalAt, 0)
	assert.Less(t, internalAt, webAt)
}

func TestRewriteWithoutQueriesSkipsSearch(t *testing.T) {
	var webCalls atomic.Int32
	g := search.NewGateway(webFunc(func(ctx context.Context, q string) (string, []model.SearchSource, error) {
		webCalls.Add(1)
		return "web", nil, nil
	}), nil, 1)
	rewritten := model.Sections{Description: "v2", Sections: []model.Section{{Name: "Pricing", InternalSearch: true}}}
	planner := llmtest.NewScript(llmtest.JSON(rewritten))
	roles := &llm.Roles{
		QueryWriter: llmtest.NewScript(llmtest.JSON(queries())),
		Planner:     planner,
	}

	res, err := NewPlanner(newDeps(consts.ModeWebSearch, roles, g)).Rewrite(context.Background(), Request{
		Topic:       "EV",
		Sections:    plannedSections.Sections,
		Feedback:    "add a pricing section",
		PlanContext: "previous context",
	})
	require.NoError(t, err)

	assert.Zero(t, webCalls.Load())
	assert.Equal(t, "previous context", res.Context)
	require.Len(t, res.Sections, 1)
	assert.Equal(t, "Pricing", res.Sections[0].Name)
	assert.False(t, res.Sections[0].InternalSearch)

	// 反馈进入重写提示词
	inputs := planner.Inputs()
	require.Len(t, inputs, 1)
	assert.Contains(t, inputs[0][0].Content, "add a pricing section")
}

func TestGeneratePropagatesSchemaError(t *testing.T) {
	roles := &llm.Roles{
		QueryWriter: llmtest.NewScript(llmtest.JSON(queries())),
		Planner:     llmtest.NewScript(llmtest.JSON(model.Sections{})),
	}
	_, err := NewPlanner(newDeps(consts.ModeWebSearch, roles, nil)).Generate(context.Background(), Request{Topic: "EV"})
	require.Error(t, err)
	assert.True(t, llm.IsSchemaError(err))
	assert.False(t, errors.Is(err, llm.ErrTransport))
}

func TestGenerateRejectsDuplicateSectionNames(t *testing.T) {
	roles := &llm.Roles{
		QueryWriter: llmtest.NewScript(llmtest.JSON(queries())),
		Planner: llmtest.NewScript(llmtest.JSON(model.Sections{Sections: []model.Section{
			{Name: "Market", Research: true}, {Name: "Market"},
		}})),
	}
	_, err := NewPlanner(newDeps(consts.ModeWebSearch, roles, nil)).Generate(context.Background(), Request{Topic: "EV"})
	require.Error(t, err)
	assert.True(t, llm.IsSchemaError(err))
}
