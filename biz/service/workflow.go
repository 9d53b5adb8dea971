package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/google/uuid"

	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/store"
)

// ErrEmptyMessage 用户消息为空
var ErrEmptyMessage = errors.New("workflow message is empty")

// defaultWorkflowName 新建工作流的默认名称
const defaultWorkflowName = "New Workflow"

// Analyst 计划-执行-重规划循环
type Analyst interface {
	Run(ctx context.Context, objective string) (string, error)
}

// RunRequest 运行一次分析的请求，WorkflowID 为空时新建工作流
type RunRequest struct {
	WorkflowID string `json:"workflow_id"`
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	Name       string `json:"workflow_name"`
}

// WorkflowService 金融分析工作流：管理工作流记录并持久化运行中的消息
type WorkflowService struct {
	workflows store.WorkflowStore
	analyst   Analyst
}

// NewWorkflowService 创建实例
func NewWorkflowService(workflows store.WorkflowStore, analyst Analyst) *WorkflowService {
	return &WorkflowService{workflows: workflows, analyst: analyst}
}

// Prepare 校验请求并加载或创建工作流，created 表示新建
func (s *WorkflowService) Prepare(ctx context.Context, req RunRequest) (wf *model.Workflow, created bool, err error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, false, ErrEmptyMessage
	}
	if req.WorkflowID != "" {
		wf, err = s.workflows.GetWorkflow(ctx, req.UserID, req.WorkflowID)
		return wf, false, err
	}

	name := req.Name
	if name == "" {
		name = defaultWorkflowName
	}
	wf = &model.Workflow{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Name:   name,
		Status: consts.WorkflowCreated,
	}
	if err := s.workflows.InsertWorkflow(ctx, wf); err != nil {
		return nil, false, err
	}
	slog.Info("Prepare info, created workflow %s for user %s", wf.ID, wf.UserID)
	return wf, true, nil
}

// Run 运行分析循环，执行者和指挥者的消息写入工作流，成功时推送 complete 事件
func (s *WorkflowService) Run(ctx context.Context, wf *model.Workflow, message string) error {
	rec := &messageRecorder{wf: wf}
	rec.append(model.WorkflowMessage{Type: consts.MessageUser, Content: message})
	wf.Status = consts.WorkflowInProgress
	if err := s.workflows.UpdateWorkflow(ctx, wf); err != nil {
		return err
	}

	// 在外层接收方之前记录消息，推送失败不影响持久化
	sink := &recordingSink{rec: rec, next: event.From(ctx)}
	out, err := s.analyst.Run(event.WithSink(ctx, sink), message)
	if err != nil {
		slog.Error("Run failed, workflow = %s, err = %+v", wf.ID, err)
		if uerr := s.workflows.UpdateWorkflow(ctx, rec.snapshot()); uerr != nil {
			slog.Error("Run failed, save workflow %s err = %+v", wf.ID, uerr)
		}
		return err
	}

	rec.append(model.WorkflowMessage{Type: consts.MessageCortex, Content: out})
	done := rec.snapshot()
	done.Status = consts.WorkflowCompleted
	if err := s.workflows.UpdateWorkflow(ctx, done); err != nil {
		return err
	}
	event.Emit(ctx, model.Event{Event: consts.EventComplete, Content: out, WorkflowID: wf.ID})
	return nil
}

// messageRecorder 并发安全地追加工作流消息
type messageRecorder struct {
	mu sync.Mutex
	wf *model.Workflow
}

func (r *messageRecorder) append(m model.WorkflowMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wf.Messages = append(r.wf.Messages, m)
}

func (r *messageRecorder) snapshot() *model.Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.wf
	cp.Messages = append([]model.WorkflowMessage(nil), r.wf.Messages...)
	return &cp
}

// recordingSink 记录 message 事件并转发给外层接收方
type recordingSink struct {
	rec  *messageRecorder
	next event.Sink
}

func (s *recordingSink) Emit(ctx context.Context, e model.Event) error {
	if e.Event == consts.EventMessage && e.Type != "" {
		s.rec.append(model.WorkflowMessage{Type: e.Type, Content: e.Content, Task: e.Task})
	}
	if s.next == nil {
		return nil
	}
	return s.next.Emit(ctx, e)
}
