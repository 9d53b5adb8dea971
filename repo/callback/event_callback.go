package callback

import (
	"context"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/metrics"
)

// EventCallback 节点回调：报告节点开始时推送 status 事件，并记录节点耗时
type EventCallback struct {
	callbacks.HandlerBuilder // 可以用 callbacks.HandlerBuilder 来辅助实现 callback

	ThreadID string // 线程ID，写入事件的 ReportID
}

// NewEventCallback 创建回调
func NewEventCallback(threadID string) *EventCallback {
	return &EventCallback{ThreadID: threadID}
}

// statusNodes 需要推送状态的节点
var statusNodes = func() map[string]bool {
	m := make(map[string]bool)
	for _, n := range consts.GetReportNodeList() {
		m[n] = true
	}
	return m
}()

// timedNodes 需要统计耗时的节点，限制指标的标签基数
var timedNodes = func() map[string]bool {
	m := map[string]bool{
		consts.ReportGraphName:  true,
		consts.SectionGraphName: true,
		consts.AnalystGraphName: true,
		consts.AnalystPlanner:   true,
		consts.AnalystAgent:     true,
		consts.AnalystReplan:    true,
		consts.GenerateQueries:  true,
		consts.Research:         true,
		consts.WriteSection:     true,
		consts.GradeSection:     true,
	}
	for n := range statusNodes {
		m[n] = true
	}
	return m
}()

type startKey struct{ name string }

// OnStart 节点开始执行
func (cb *EventCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if info == nil {
		return ctx
	}
	if statusNodes[info.Name] {
		slog.Debug("OnStart debug, thread = %s, node = %s", cb.ThreadID, info.Name)
		event.Emit(ctx, model.Event{
			Event:    consts.EventStatus,
			Status:   info.Name,
			Node:     info.Name,
			ReportID: cb.ThreadID,
		})
	}
	if timedNodes[info.Name] {
		ctx = context.WithValue(ctx, startKey{info.Name}, time.Now())
	}
	return ctx
}

// OnEnd 节点执行结束
func (cb *EventCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	cb.observe(ctx, info)
	return ctx
}

// OnError 节点执行出错，中断不算错误但同样会回调到这里
func (cb *EventCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	slog.Error("OnError, thread = %s, node = %s, err = %+v", cb.ThreadID, name, err)
	cb.observe(ctx, info)
	return ctx
}

// OnStartWithStreamInput 工作流不使用流式输入，直接关闭
func (cb *EventCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

// OnEndWithStreamOutput 关闭流，避免上游阻塞
func (cb *EventCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	cb.observe(ctx, info)
	return ctx
}

// observe 记录节点耗时
func (cb *EventCallback) observe(ctx context.Context, info *callbacks.RunInfo) {
	if info == nil || !timedNodes[info.Name] {
		return
	}
	start, ok := ctx.Value(startKey{info.Name}).(time.Time)
	if !ok {
		return
	}
	metrics.NodeDuration.WithLabelValues(info.Name).Observe(time.Since(start).Seconds())
}
