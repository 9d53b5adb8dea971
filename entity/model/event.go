package model

// Event 工作流运行过程中推送给调用方的事件
// 调用方不能假设每次运行都会出现所有类型的事件
type Event struct {
	Event      string          `json:"event"` // status | message | complete | error | workflow_created
	Status     string          `json:"status,omitempty"`
	Type       string          `json:"type,omitempty"` // 消息来源：instructor | executor
	Node       string          `json:"node,omitempty"`
	Content    string          `json:"content,omitempty"`
	Task       string          `json:"task,omitempty"`
	ReportID   string          `json:"report_id,omitempty"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Result     *ResearchResult `json:"result,omitempty"`
	Message    string          `json:"message,omitempty"` // 错误信息
}
