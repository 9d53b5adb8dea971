// Package llmtest 提供测试用的脚本化模型
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reply 一次模型回复
type Reply struct {
	Content string
	Err     error
}

// Text 纯文本回复
func Text(s string) Reply { return Reply{Content: s} }

// JSON 结构化回复
func JSON(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Content: string(b)}
}

// Fail 调用失败
func Fail(err error) Reply { return Reply{Err: err} }

// Script 按顺序返回预设回复，用完后重复最后一条；并发安全
type Script struct {
	mu      sync.Mutex
	replies []Reply
	inputs  [][]*schema.Message
}

// NewScript 创建脚本化模型
func NewScript(replies ...Reply) *Script {
	return &Script{replies: replies}
}

// Generate 实现 llm.Generator
func (s *Script) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	if len(s.replies) == 0 {
		return nil, errors.New("llmtest: no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return schema.AssistantMessage(r.Content, nil), nil
}

// Calls 调用次数
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

// Inputs 每次调用的输入
func (s *Script) Inputs() [][]*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]*schema.Message, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// Func 用函数实现模型，便于按输入返回不同结果
type Func func(ctx context.Context, input []*schema.Message) (*schema.Message, error)

// Generate 实现 llm.Generator
func (f Func) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return f(ctx, input)
}
