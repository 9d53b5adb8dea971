package model

// SearchSource 网络搜索返回的来源
type SearchSource struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// Link 返回来源链接，uri 优先
func (s SearchSource) Link() string {
	if s.URI != "" {
		return s.URI
	}
	return s.URL
}

// SearchRecord 内部检索服务的流式记录
type SearchRecord struct {
	Type     string `json:"type"`
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Scope 内部检索的范围
type Scope struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
}

// WebEvidence 一批网络查询的结果
type WebEvidence struct {
	Text    string         // 推理文本
	Sources []SearchSource // 按标题去重后的来源
	Queries int            // 执行的查询数
	Failed  int            // 失败的查询数
}

// AllFailed 所有查询都失败
func (e WebEvidence) AllFailed() bool {
	return e.Queries > 0 && e.Failed == e.Queries
}
