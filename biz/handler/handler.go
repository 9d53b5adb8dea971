// Package handler HTTP 接口：深度研究与金融分析工作流，流式接口以 SSE 推送事件
package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	hconsts "github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/sse"
	"github.com/google/uuid"

	"github.com/hildam/deep-dive-go/biz/service"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/store"
)

// streamBuffer 事件流缓冲
const streamBuffer = 64

// Handler HTTP 处理器
type Handler struct {
	research *service.ResearchService
	workflow *service.WorkflowService
}

// New 创建处理器
func New(research *service.ResearchService, workflow *service.WorkflowService) *Handler {
	return &Handler{research: research, workflow: workflow}
}

// DeepDiveRequest 创建深度研究的请求体，message 即研究主题
type DeepDiveRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// ContinueRequest 审核大纲的请求体，feedback 为 true 或修改意见
type ContinueRequest struct {
	Feedback any `json:"feedback"`
}

// Healthz 存活检查
func (h *Handler) Healthz(ctx context.Context, c *app.RequestContext) {
	c.JSON(hconsts.StatusOK, utils.H{"status": "ok"})
}

// CreateDeepDive 创建研究记录并生成大纲，推送状态事件，最后推送待审核的大纲
func (h *Handler) CreateDeepDive(ctx context.Context, c *app.RequestContext) {
	userID, projectID := c.Param("user"), c.Param("id")
	var req DeepDiveRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(c, hconsts.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		writeError(c, hconsts.StatusBadRequest, service.ErrEmptyTopic)
		return
	}

	h.stream(ctx, c, func(ctx context.Context) error {
		res, err := h.research.StartPlanner(ctx, userID, projectID, req.Message)
		if err != nil {
			return err
		}
		event.Emit(ctx, model.Event{Event: consts.EventComplete, ReportID: res.ReportID, Result: res})
		return nil
	})
}

// ContinueDeepDive 注入审核结果：通过时推送研究进度与最终报告，修改意见时推送新大纲
func (h *Handler) ContinueDeepDive(ctx context.Context, c *app.RequestContext) {
	userID, reportID := c.Param("user"), c.Param("id")
	var req ContinueRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(c, hconsts.StatusBadRequest, err)
		return
	}
	fb, err := model.ParseFeedback(req.Feedback)
	if err != nil {
		writeError(c, hconsts.StatusBadRequest, err)
		return
	}
	if _, err := h.research.GetReport(ctx, userID, reportID); err != nil {
		writeError(c, statusOf(err), err)
		return
	}

	h.stream(ctx, c, func(ctx context.Context) error {
		res, err := h.research.ContinueResearch(ctx, userID, reportID, fb)
		if err != nil {
			return err
		}
		event.Emit(ctx, model.Event{Event: consts.EventComplete, ReportID: res.ReportID, Result: res})
		return nil
	})
}

// GetReport 读取研究记录
func (h *Handler) GetReport(ctx context.Context, c *app.RequestContext) {
	rec, err := h.research.GetReport(ctx, c.Param("user"), c.Param("id"))
	if err != nil {
		writeError(c, statusOf(err), err)
		return
	}
	c.JSON(hconsts.StatusOK, rec)
}

// MaestroRun 运行金融分析工作流，新建时先推送 workflow_created
func (h *Handler) MaestroRun(ctx context.Context, c *app.RequestContext) {
	var req service.RunRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(c, hconsts.StatusBadRequest, err)
		return
	}
	wf, created, err := h.workflow.Prepare(ctx, req)
	if err != nil {
		writeError(c, statusOf(err), err)
		return
	}

	h.stream(ctx, c, func(ctx context.Context) error {
		if created {
			event.Emit(ctx, model.Event{Event: consts.EventWorkflowCreated, WorkflowID: wf.ID})
		}
		return h.workflow.Run(ctx, wf, req.Message)
	})
}

// stream 在后台运行 run，将其推送的事件写成 SSE；run 失败时追加一个 error 事件
// 客户端断开后继续消费，保证生产方不阻塞
func (h *Handler) stream(ctx context.Context, c *app.RequestContext, run func(ctx context.Context) error) {
	s := event.NewStream(streamBuffer)
	go func() {
		defer s.Close()
		runCtx := event.WithSink(context.WithoutCancel(ctx), s)
		if err := run(runCtx); err != nil {
			slog.Error("stream failed, path = %s, err = %+v", c.Path(), err)
			event.Emit(runCtx, model.Event{Event: consts.EventError, Message: err.Error()})
		}
	}()

	w := sse.NewWriter(c)
	defer w.Close()
	broken := false
	for e := range s.Events() {
		if broken {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			slog.Error("stream failed, marshal event err = %+v, event = %+v", err, e)
			continue
		}
		if err := w.WriteEvent(uuid.NewString(), e.Event, data); err != nil {
			slog.Error("stream failed, write event err = %+v", err)
			broken = true
		}
	}
}

// statusOf 错误对应的 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return hconsts.StatusNotFound
	case errors.Is(err, model.ErrInvalidFeedback),
		errors.Is(err, service.ErrEmptyTopic),
		errors.Is(err, service.ErrEmptyMessage):
		return hconsts.StatusBadRequest
	default:
		return hconsts.StatusInternalServerError
	}
}

func writeError(c *app.RequestContext, code int, err error) {
	c.JSON(code, utils.H{"error": err.Error()})
}
