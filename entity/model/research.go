package model

import (
	"fmt"
	"strings"
	"time"
)

// DeepResearch 一次深度研究的持久化记录
type DeepResearch struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ProjectID   string    `json:"project_id" db:"project_id"`
	Topic       string    `json:"topic" db:"topic"`
	Description string    `json:"description" db:"description"`
	Plan        []Section `json:"plan"`
	Sources     []string  `json:"sources"`
	Status      string    `json:"status" db:"status"` // to_be_started → in_planning → in_progress → completed
	Report      string    `json:"report" db:"report"`
	Insights    []string  `json:"insights"`
	Type        string    `json:"type" db:"type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WorkflowMessage 工作流中的一条消息
type WorkflowMessage struct {
	Type    string `json:"type"` // user | instructor | executor | cortex
	Content string `json:"content"`
	Task    string `json:"task,omitempty"`
}

// Workflow 金融分析工作流记录
type Workflow struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"` // created | in_progress | completed
	Messages  []WorkflowMessage `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Document 用户上传到知识库的文档摘要
type Document struct {
	ID           string `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	Name         string `json:"name" db:"name"`
	DocumentType string `json:"document_type" db:"document_type"`
	Domain       string `json:"domain" db:"domain"`
	Description  string `json:"description" db:"description"`
}

// FormatDocuments 将文档列表格式化为规划时的内部知识描述
func FormatDocuments(docs []Document) string {
	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "########Document %d#########\n", i+1)
		fmt.Fprintf(&b, "Name: %s\n", d.Name)
		fmt.Fprintf(&b, "Type: %s\n", d.DocumentType)
		fmt.Fprintf(&b, "Domain: %s\n", d.Domain)
		fmt.Fprintf(&b, "Description: %s\n\n", d.Description)
		b.WriteString("#########################################\n\n")
	}
	return b.String()
}

// ResearchResult 深度研究接口的返回
type ResearchResult struct {
	ReportID    string    `json:"report_id"`
	Type        string    `json:"type"` // plan | report
	Topic       string    `json:"topic,omitempty"`
	Description string    `json:"description,omitempty"`
	Plan        []Section `json:"plan,omitempty"`
	Report      string    `json:"report,omitempty"`
}

// 结果类型
const (
	ResultPlan   = "plan"
	ResultReport = "report"
)
