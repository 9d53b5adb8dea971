// Package search 网络搜索与内部知识检索的统一入口
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrWebUnavailable 未配置网络搜索
	ErrWebUnavailable = errors.New("web search is not configured")
	// ErrInternalUnavailable 未配置内部知识检索
	ErrInternalUnavailable = errors.New("internal search is not configured")
)

// WebSearcher 单条网络查询
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, []model.SearchSource, error)
}

// InternalSearcher 内部知识检索，结果以记录流的形式回调
type InternalSearcher interface {
	Search(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error
}

// 推理文本分隔符
const (
	webQueryHeader      = "---------------SUB-QUERY-ONLINE---------------"
	internalQueryHeader = "---------------SUB-QUERY---------------"
	responseHeader      = "---------------SUB-QUERY RESPONSE---------------"
)

// Gateway 组合网络搜索和内部检索，失败的单条查询写入推理文本而不是中断整批
type Gateway struct {
	web         WebSearcher
	internal    InternalSearcher
	concurrency int
}

// NewGateway 创建搜索入口，web 或 internal 可以为 nil
func NewGateway(web WebSearcher, internal InternalSearcher, concurrency int) *Gateway {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Gateway{web: web, internal: internal, concurrency: concurrency}
}

// Web 执行一批网络查询。重复查询只执行一次，推理文本按查询首次出现的顺序排列
func (g *Gateway) Web(ctx context.Context, queries []string) (model.WebEvidence, error) {
	if g == nil || g.web == nil {
		return model.WebEvidence{}, ErrWebUnavailable
	}
	queries = dedupe(queries)
	if len(queries) == 0 {
		return model.WebEvidence{}, nil
	}

	type result struct {
		text    string
		sources []model.SearchSource
		failed  bool
	}
	results := make([]result, len(queries))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, q := range queries {
		eg.Go(func() error {
			text, sources, err := g.web.Search(egCtx, q)
			if err != nil {
				slog.Error("Web failed, query = %s, err = %+v", q, err)
				metrics.SearchFailures.WithLabelValues("web").Inc()
				results[i] = result{text: fmt.Sprintf("%s %v", consts.SearchErrorPrefix, err), failed: true}
				return nil
			}
			results[i] = result{text: text, sources: sources, failed: IsErrorText(text)}
			if results[i].failed {
				metrics.SearchFailures.WithLabelValues("web").Inc()
			}
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return model.WebEvidence{}, err
	}

	ev := model.WebEvidence{Queries: len(queries)}
	var steps []string
	var all []model.SearchSource
	for i, q := range queries {
		steps = append(steps, webQueryHeader, q, responseHeader, results[i].text)
		all = append(all, results[i].sources...)
		if results[i].failed {
			ev.Failed++
		}
	}
	ev.Text = strings.Join(steps, "\n")
	ev.Sources = uniqueByTitle(all)
	return ev, nil
}

// Internal 执行内部检索，只有 response 类型的记录进入推理文本
func (g *Gateway) Internal(ctx context.Context, queries []string, scope model.Scope) (string, error) {
	if g == nil || g.internal == nil {
		return "", ErrInternalUnavailable
	}
	queries = dedupe(queries)
	if len(queries) == 0 {
		return "", nil
	}

	var steps []string
	err := g.internal.Search(ctx, queries, scope, func(rec model.SearchRecord) error {
		if rec.Type != consts.RecordTypeResponse {
			return nil
		}
		steps = append(steps, internalQueryHeader, rec.Query, responseHeader, rec.Response)
		return nil
	})
	if err != nil {
		metrics.SearchFailures.WithLabelValues("internal").Inc()
		slog.Error("Internal failed, queries = %+v, err = %+v", queries, err)
		return "", fmt.Errorf("internal search: %w", err)
	}
	return strings.Join(steps, "\n"), nil
}

// HasWeb 是否配置了网络搜索
func (g *Gateway) HasWeb() bool { return g != nil && g.web != nil }

// IsErrorText 搜索服务以文本形式返回的错误
func IsErrorText(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, consts.SearchErrorPrefix) || strings.HasPrefix(s, consts.SearchErrorAltPrefix)
}

func dedupe(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

// uniqueByTitle 按标题去重，没有标题的来源丢弃
func uniqueByTitle(sources []model.SearchSource) []model.SearchSource {
	seen := make(map[string]bool)
	var out []model.SearchSource
	for _, s := range sources {
		if s.Title == "" || seen[s.Title] {
			continue
		}
		seen[s.Title] = true
		out = append(out, s)
	}
	return out
}
