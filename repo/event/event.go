// Package event 工作流事件的推送与拉取
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/model"
)

// ErrClosed 事件流已关闭
var ErrClosed = errors.New("event stream closed")

// Sink 事件接收方
type Sink interface {
	Emit(ctx context.Context, e model.Event) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(ctx context.Context, e model.Event) error

// Emit 实现 Sink
func (f SinkFunc) Emit(ctx context.Context, e model.Event) error { return f(ctx, e) }

type sinkKey struct{}

// WithSink 将事件接收方挂到 ctx 上，图节点通过 Emit 推送事件
func WithSink(ctx context.Context, s Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// From 返回 ctx 上的接收方，没有时为 nil
func From(ctx context.Context) Sink {
	s, _ := ctx.Value(sinkKey{}).(Sink)
	return s
}

// Emit 推送事件，ctx 上没有接收方时忽略
func Emit(ctx context.Context, e model.Event) {
	s := From(ctx)
	if s == nil {
		return
	}
	if err := s.Emit(ctx, e); err != nil {
		slog.Error("Emit failed, event = %s, err = %+v", e.Event, err)
	}
}

// Stream 有界事件通道，生产方推送，消费方通过 Events 拉取
// Close 只能由生产方在运行结束后调用
type Stream struct {
	mu     sync.RWMutex
	ch     chan model.Event
	closed bool
}

// NewStream 创建事件流
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{ch: make(chan model.Event, buffer)}
}

// Emit 推送事件，通道满时阻塞直到消费或 ctx 结束
func (s *Stream) Emit(ctx context.Context, e model.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events 消费端通道，Close 后关闭
func (s *Stream) Events() <-chan model.Event {
	return s.ch
}

// Close 关闭事件流，可重复调用
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Recorder 记录全部事件，用于控制台输出和测试
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

// Emit 实现 Sink
func (r *Recorder) Emit(_ context.Context, e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events 已记录的事件
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}
