package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	emodel "github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webFunc func(ctx context.Context, q string) (string, []emodel.SearchSource, error)

func (f webFunc) Search(ctx context.Context, q string) (string, []emodel.SearchSource, error) {
	return f(ctx, q)
}

// scriptedModel 按顺序返回预设消息的工具调用模型
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	inputs  [][]*schema.Message
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func searchCall(id, query string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: "internet_search", Arguments: `{"query":"` + query + `"}`},
	}})
}

func TestExecutorCallsEachToolOnce(t *testing.T) {
	var searches atomic.Int32
	g := search.NewGateway(webFunc(func(ctx context.Context, q string) (string, []emodel.SearchSource, error) {
		searches.Add(1)
		return "revenue grew 12%", nil, nil
	}), nil, 1)
	searchTool, err := NewSearchTool(g)
	require.NoError(t, err)

	m := &scriptedModel{replies: []*schema.Message{
		searchCall("call-1", "nvda revenue"),
		searchCall("call-2", "nvda revenue again"),
		schema.AssistantMessage("Revenue grew 12%.", nil),
	}}
	exec, err := New(context.Background(), Config{Model: m, Tools: []tool.BaseTool{searchTool}, MaxStep: 10})
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), "Find the revenue growth")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12%.", out)
	assert.EqualValues(t, 1, searches.Load())

	require.Len(t, m.inputs, 3)
	last := m.inputs[2]
	var toolReplies []string
	for _, msg := range last {
		if msg.Role == schema.Tool {
			toolReplies = append(toolReplies, msg.Content)
		}
	}
	require.Len(t, toolReplies, 2)
	assert.Contains(t, toolReplies[0], "revenue grew 12%")
	assert.True(t, strings.HasPrefix(toolReplies[1], "Tool internet_search has already been called"))

	// 新任务重新计数
	m.replies = []*schema.Message{searchCall("call-3", "amd revenue"), schema.AssistantMessage("ok", nil)}
	_, err = exec.Execute(context.Background(), "Find AMD revenue")
	require.NoError(t, err)
	assert.EqualValues(t, 2, searches.Load())
}

func TestSearchToolReportsErrorsAsText(t *testing.T) {
	st, err := NewSearchTool(search.NewGateway(nil, nil, 1))
	require.NoError(t, err)
	out, err := st.InvokableRun(context.Background(), `{"query":"nvda"}`)
	require.NoError(t, err)
	assert.Equal(t, "Error: "+search.ErrWebUnavailable.Error(), out)

	info, err := st.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "internet_search", info.Name)
}
