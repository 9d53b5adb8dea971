package search

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/repo/mcp"
)

// 网络搜索提供方
const (
	ProviderSerper = "serper"
	ProviderMCP    = "mcp"
)

// NewFromConfig 根据配置组装搜索入口，未配置的渠道为空，由调用方走兜底文案
func NewFromConfig(ctx context.Context, cfg conf.SearchConfig, clients *mcp.Clients) (*Gateway, error) {
	var web WebSearcher
	switch cfg.Provider {
	case ProviderSerper:
		if cfg.Serper.APIKey == "" {
			slog.Info("NewFromConfig info, serper api key is empty, web search disabled")
			break
		}
		s, err := NewSerper(cfg.Serper)
		if err != nil {
			return nil, err
		}
		web = s
	case ProviderMCP:
		t, err := clients.FindTool(ctx, "search")
		if err != nil {
			return nil, fmt.Errorf("NewFromConfig failed, find mcp search tool err: %w", err)
		}
		web = NewMCPSearcher(t)
	case "":
		slog.Info("NewFromConfig info, no web search provider configured")
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}

	var internal InternalSearcher
	if cfg.Internal.Endpoint != "" {
		c, err := NewInternalClient(cfg.Internal)
		if err != nil {
			return nil, err
		}
		internal = c
	}
	return NewGateway(web, internal, cfg.MaxConcurrency), nil
}
