package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	hconsts "github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/entity/model"
	"golang.org/x/time/rate"
)

// Serper 基于 serper.dev 的网络搜索
type Serper struct {
	cli      *client.Client
	endpoint string
	apiKey   string
	results  int
	limiter  *rate.Limiter
}

// NewSerper 创建 serper 搜索，QPS 为 0 时不限速
func NewSerper(cfg conf.SerperConfig) (*Serper, error) {
	cli, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(60*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("NewSerper failed, create client err: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	return &Serper{
		cli:      cli,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		results:  cfg.Results,
		limiter:  limiter,
	}, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperOrganic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

type serperResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox,omitempty"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledgeGraph,omitempty"`
	Organic []serperOrganic `json:"organic"`
}

// Search 实现 WebSearcher
func (s *Serper) Search(ctx context.Context, query string) (string, []model.SearchSource, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", nil, err
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: s.results})
	if err != nil {
		return "", nil, err
	}

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()
	req.SetMethod(hconsts.MethodPost)
	req.SetRequestURI(s.endpoint)
	req.Header.SetContentTypeBytes([]byte(hconsts.MIMEApplicationJSON))
	req.Header.Set("X-API-KEY", s.apiKey)
	req.SetBody(body)

	if err := s.cli.Do(ctx, req, resp); err != nil {
		return "", nil, fmt.Errorf("serper request: %w", err)
	}
	if code := resp.StatusCode(); code != hconsts.StatusOK {
		return "", nil, fmt.Errorf("serper status %d: %s", code, truncate(string(resp.Body()), 200))
	}

	var out serperResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", nil, fmt.Errorf("serper decode: %w", err)
	}
	text, sources := out.render()
	slog.Debug("Serper Search debug, query = %s, results = %d", query, len(sources))
	return text, sources, nil
}

// render 将搜索结果渲染为推理文本
func (r *serperResponse) render() (string, []model.SearchSource) {
	var b strings.Builder
	if r.AnswerBox != nil {
		answer := r.AnswerBox.Answer
		if answer == "" {
			answer = r.AnswerBox.Snippet
		}
		if answer != "" {
			fmt.Fprintf(&b, "Answer: %s\n\n", answer)
		}
	}
	if r.KnowledgeGraph != nil && r.KnowledgeGraph.Description != "" {
		fmt.Fprintf(&b, "%s: %s\n\n", r.KnowledgeGraph.Title, r.KnowledgeGraph.Description)
	}

	sources := make([]model.SearchSource, 0, len(r.Organic))
	for i, o := range r.Organic {
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, o.Title, o.Snippet)
		if o.Date != "" {
			fmt.Fprintf(&b, "Date: %s\n", o.Date)
		}
		fmt.Fprintf(&b, "Source: %s\n\n", o.Link)
		sources = append(sources, model.SearchSource{Title: o.Title, URL: o.Link})
	}
	return strings.TrimSpace(b.String()), sources
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
