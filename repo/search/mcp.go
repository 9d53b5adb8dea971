package search

import (
	"context"
	"encoding/json"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/hildam/deep-dive-go/entity/model"
)

// MCPSearcher 使用 MCP 服务提供的搜索工具
type MCPSearcher struct {
	tool tool.InvokableTool
}

// NewMCPSearcher 包装一个 MCP 搜索工具
func NewMCPSearcher(t tool.InvokableTool) *MCPSearcher {
	return &MCPSearcher{tool: t}
}

// Search 实现 WebSearcher，MCP 工具不返回结构化来源
func (m *MCPSearcher) Search(ctx context.Context, query string) (string, []model.SearchSource, error) {
	args, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return "", nil, err
	}
	result, err := m.tool.InvokableRun(ctx, string(args))
	if err != nil {
		slog.Error("MCPSearcher Search failed, query = %s, err = %+v", query, err)
		return "", nil, err
	}
	return result, nil, nil
}
