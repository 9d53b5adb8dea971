package comm

import (
	"context"
	"errors"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/search"
)

// Evidence 一个渠道的检索结果，失败时 Text 为兜底文案
type Evidence struct {
	Text    string
	Sources []model.SearchSource
	Ran     bool // 有查询执行
	Failed  bool // 执行了但没有拿到任何结果
}

// WebEvidence 执行网络查询，失败不返回错误，只有 ctx 取消时返回
func WebEvidence(ctx context.Context, g *search.Gateway, queries []string) (Evidence, error) {
	if len(queries) == 0 {
		return Evidence{}, nil
	}
	ev, err := g.Web(ctx, queries)
	switch {
	case ctx.Err() != nil:
		return Evidence{}, ctx.Err()
	case errors.Is(err, search.ErrWebUnavailable):
		slog.Info("WebEvidence info, web search unavailable, queries = %d", len(queries))
		return Evidence{Text: consts.WebSearchUnavailable, Ran: true, Failed: true}, nil
	case err != nil:
		slog.Error("WebEvidence failed, err = %+v", err)
		return Evidence{Text: consts.WebSearchFailed, Ran: true, Failed: true}, nil
	case ev.AllFailed():
		slog.Error("WebEvidence failed, all %d queries failed", ev.Queries)
		return Evidence{Text: consts.WebSearchUnavailable, Ran: true, Failed: true}, nil
	}
	return Evidence{Text: ev.Text, Sources: ev.Sources, Ran: true}, nil
}

// InternalEvidence 执行内部知识检索，空结果和错误都转为兜底文案
func InternalEvidence(ctx context.Context, g *search.Gateway, queries []string, scope model.Scope) (Evidence, error) {
	if len(queries) == 0 {
		return Evidence{}, nil
	}
	text, err := g.Internal(ctx, queries, scope)
	switch {
	case ctx.Err() != nil:
		return Evidence{}, ctx.Err()
	case errors.Is(err, search.ErrInternalUnavailable):
		slog.Info("InternalEvidence info, internal search unavailable, queries = %d", len(queries))
		return Evidence{Text: consts.InternalSearchUnavailable, Ran: true, Failed: true}, nil
	case err != nil:
		slog.Error("InternalEvidence failed, err = %+v", err)
		return Evidence{Text: consts.InternalSearchFailed, Ran: true, Failed: true}, nil
	case text == "":
		slog.Info("InternalEvidence info, no internal response for %d queries", len(queries))
		return Evidence{Text: consts.InternalSearchUnavailable, Ran: true, Failed: true}, nil
	}
	return Evidence{Text: text, Ran: true}, nil
}
