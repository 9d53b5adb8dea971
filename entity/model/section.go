package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hildam/deep-dive-go/entity/consts"
)

// Section 报告中的一个章节，Name 在同一份大纲内唯一
type Section struct {
	Name           string     `json:"name"`            // 章节名称
	Description    string     `json:"description"`     // 章节要点
	Research       bool       `json:"research"`        // 是否需要网络研究
	InternalSearch bool       `json:"internal_search"` // 是否需要内部知识检索
	Content        string     `json:"content"`         // 章节内容，撰写前为空
	Sources        SourceList `json:"sources"`         // 引用来源
}

// NeedsResearch 是否需要派发研究任务
func (s Section) NeedsResearch() bool {
	return s.Research || s.InternalSearch
}

// SourceRef 引用指向的来源
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Citation 一条引用
type Citation struct {
	Index            int         `json:"index"`
	SegmentText      string      `json:"segment_text"`
	ConfidenceScores []float64   `json:"confidence_scores"`
	Sources          []SourceRef `json:"sources"`
}

// SourceList 章节引用列表。持久化数据中可能是引用列表，也可能是普通字符串
type SourceList []Citation

// UnmarshalJSON 兼容列表和字符串两种格式，字符串按空列表处理
func (l *SourceList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '"' {
		*l = nil
		return nil
	}
	var list []Citation
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	*l = list
	return nil
}

// Titles 返回去重后的来源标题和链接，优先链接
func (l SourceList) Titles() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range l {
		for _, ref := range c.Sources {
			label := ref.URL
			if label == "" {
				label = ref.Title
			}
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

// ReportPlan 报告大纲
type ReportPlan struct {
	Description string    `json:"description"`
	Sections    []Section `json:"sections"`
}

// Sections 大纲模型的结构化输出
type Sections struct {
	Description string    `json:"description"`
	Sections    []Section `json:"sections"`
}

// Validate 校验大纲，章节名不能为空且不能重复
func (s *Sections) Validate() error {
	if len(s.Sections) == 0 {
		return fmt.Errorf("sections must not be empty")
	}
	seen := make(map[string]bool, len(s.Sections))
	for i, sec := range s.Sections {
		if strings.TrimSpace(sec.Name) == "" {
			return fmt.Errorf("section %d has empty name", i)
		}
		if seen[sec.Name] {
			return fmt.Errorf("section name %q appears more than once", sec.Name)
		}
		seen[sec.Name] = true
	}
	return nil
}

// SearchQuery 单条搜索查询
type SearchQuery struct {
	SearchQuery string `json:"search_query"`
}

// Queries 查询生成的结构化输出
type Queries struct {
	Queries []SearchQuery `json:"queries"`
}

// HybridQueries 混合模式下的查询，内部检索和网络搜索各一组
type HybridQueries struct {
	InternalSearchQueries []SearchQuery `json:"internal_search_queries"`
	WebSearchQueries      []SearchQuery `json:"web_search_queries"`
}

// QueryStrings 提取非空查询文本
func QueryStrings(queries []SearchQuery) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if s := strings.TrimSpace(q.SearchQuery); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Feedback 章节评分结果
type Feedback struct {
	Grade           string        `json:"grade"`
	FollowUpQueries []SearchQuery `json:"follow_up_queries"`
}

// Validate 评分只能是 pass 或 fail
func (f *Feedback) Validate() error {
	switch f.Grade {
	case consts.GradePass, consts.GradeFail:
		return nil
	default:
		return fmt.Errorf("grade must be %q or %q, got %q", consts.GradePass, consts.GradeFail, f.Grade)
	}
}

// SectionContent 章节撰写的结构化输出
type SectionContent struct {
	Content string     `json:"content"`
	Sources []Citation `json:"sources"`
}
