package comm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
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

func TestModifyInputKeepsLatestContent(t *testing.T) {
	long := schema.UserMessage(strings.Repeat("a", 5) + strings.Repeat("b", 5))
	short := schema.UserMessage("ok")
	out := NewModifyInputFunc(5)(context.Background(), []*schema.Message{long, nil, short})

	require.Len(t, out, 2)
	assert.Equal(t, "bbbbb", out[0].Content)
	assert.Equal(t, "ok", out[1].Content)
	// 原消息不被修改
	assert.Len(t, long.Content, 10)

	same := NewModifyInputFunc(0)(context.Background(), []*schema.Message{long})
	assert.Equal(t, long, same[0])
}

func TestModifyInputTrimsOnRuneBoundary(t *testing.T) {
	// 每个汉字 3 字节，上限 7 字节时从第 2 个字节截断会切开字符
	msg := schema.UserMessage("电池市场")
	out := NewModifyInputFunc(7)(context.Background(), []*schema.Message{msg})

	require.Len(t, out, 1)
	assert.True(t, utf8.ValidString(out[0].Content))
	assert.Equal(t, "市场", out[0].Content)
}

func TestToolCallChecker(t *testing.T) {
	withCall := schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("thinking", nil),
		schema.AssistantMessage("", []schema.ToolCall{{Function: schema.FunctionCall{Name: "search"}}}),
	})
	ok, err := ToolCallChecker(context.Background(), withCall)
	require.NoError(t, err)
	assert.True(t, ok)

	plain := schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("done", nil)})
	ok, err = ToolCallChecker(context.Background(), plain)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWebEvidenceFallbacks(t *testing.T) {
	ctx := context.Background()

	ev, err := WebEvidence(ctx, nil, nil)
	require.NoError(t, err)
	assert.False(t, ev.Ran)

	ev, err = WebEvidence(ctx, nil, []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, consts.WebSearchUnavailable, ev.Text)
	assert.True(t, ev.Failed)

	failing := search.NewGateway(webFunc(func(ctx context.Context, q string) (string, []model.SearchSource, error) {
		return "", nil, errors.New("quota")
	}), nil, 2)
	ev, err = WebEvidence(ctx, failing, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, consts.WebSearchUnavailable, ev.Text)
	assert.True(t, ev.Failed)

	ok := search.NewGateway(webFunc(func(ctx context.Context, q string) (string, []model.SearchSource, error) {
		return "found " + q, []model.SearchSource{{Title: q, URL: "https://" + q}}, nil
	}), nil, 2)
	ev, err = WebEvidence(ctx, ok, []string{"a"})
	require.NoError(t, err)
	assert.False(t, ev.Failed)
	assert.Contains(t, ev.Text, "found a")
	assert.Len(t, ev.Sources, 1)
}

func TestWebEvidenceCancelled(t *testing.T) {
	g := search.NewGateway(webFunc(func(ctx context.Context, q string) (string, []model.SearchSource, error) {
		return "", nil, ctx.Err()
	}), nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WebEvidence(ctx, g, []string{"q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInternalEvidenceFallbacks(t *testing.T) {
	ctx := context.Background()

	ev, err := InternalEvidence(ctx, nil, []string{"q"}, model.Scope{})
	require.NoError(t, err)
	assert.Equal(t, consts.InternalSearchUnavailable, ev.Text)

	broken := search.NewGateway(nil, internalFunc(func(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error {
		return errors.New("down")
	}), 1)
	ev, err = InternalEvidence(ctx, broken, []string{"q"}, model.Scope{})
	require.NoError(t, err)
	assert.Equal(t, consts.InternalSearchFailed, ev.Text)
	assert.True(t, ev.Failed)

	empty := search.NewGateway(nil, internalFunc(func(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error {
		return visit(model.SearchRecord{Type: "status", Query: "q"})
	}), 1)
	ev, err = InternalEvidence(ctx, empty, []string{"q"}, model.Scope{})
	require.NoError(t, err)
	assert.Equal(t, consts.InternalSearchUnavailable, ev.Text)

	found := search.NewGateway(nil, internalFunc(func(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error {
		return visit(model.SearchRecord{Type: consts.RecordTypeResponse, Query: "q", Response: "memo says yes"})
	}), 1)
	ev, err = InternalEvidence(ctx, found, []string{"q"}, model.Scope{})
	require.NoError(t, err)
	assert.False(t, ev.Failed)
	assert.Contains(t, ev.Text, "memo says yes")
}

func TestHybrid(t *testing.T) {
	assert.True(t, (&Deps{Report: conf.ReportConfig{Mode: consts.ModeHybridRAG}}).Hybrid())
	assert.False(t, (&Deps{Report: conf.ReportConfig{Mode: consts.ModeWebSearch}}).Hybrid())
}
