package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/repo/metrics"
)

// Generator 单次生成能力，eino 的 ChatModel 均满足
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ErrTransport 模型调用失败（网络、限流等），可重试
var ErrTransport = errors.New("llm transport failed")

// SchemaError 模型输出不符合约定结构，不重试
type SchemaError struct {
	Name string // 输出结构名称
	Raw  string // 模型原始输出
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm output does not match %s: %v", e.Name, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsSchemaError 判断是否为结构化输出错误
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

type validator interface {
	Validate() error
}

// retryBackoff 重试间隔基数，第 n 次重试等待 n*retryBackoff
var retryBackoff = 500 * time.Millisecond

// Invoke 调用模型并将输出解析为 T
func Invoke[T any](ctx context.Context, g Generator, name string, retries int, msgs []*schema.Message) (*T, error) {
	content, err := generate(ctx, g, name, retries, msgs)
	if err != nil {
		return nil, err
	}

	out := new(T)
	raw := stripCodeFence(content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Error("Invoke failed, unmarshal %s err = %+v, content = %s", name, err, content)
		metrics.LLMCalls.WithLabelValues(name, "schema_error").Inc()
		return nil, &SchemaError{Name: name, Raw: content, Err: err}
	}
	if v, ok := any(out).(validator); ok {
		if err := v.Validate(); err != nil {
			slog.Error("Invoke failed, validate %s err = %+v, content = %s", name, err, content)
			metrics.LLMCalls.WithLabelValues(name, "schema_error").Inc()
			return nil, &SchemaError{Name: name, Raw: content, Err: err}
		}
	}
	metrics.LLMCalls.WithLabelValues(name, "ok").Inc()
	return out, nil
}

// Complete 调用模型并返回纯文本
func Complete(ctx context.Context, g Generator, name string, retries int, msgs []*schema.Message) (string, error) {
	content, err := generate(ctx, g, name, retries, msgs)
	if err != nil {
		return "", err
	}
	metrics.LLMCalls.WithLabelValues(name, "ok").Inc()
	return content, nil
}

// generate 带重试的模型调用，仅传输错误会重试
func generate(ctx context.Context, g Generator, name string, retries int, msgs []*schema.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %s: %v", ErrTransport, name, ctx.Err())
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		msg, err := g.Generate(ctx, msgs)
		if err == nil {
			if msg == nil {
				return "", &SchemaError{Name: name, Err: errors.New("empty message")}
			}
			return msg.Content, nil
		}
		lastErr = err
		slog.Error("generate failed, name = %s, attempt = %d, err = %+v", name, attempt+1, err)
	}
	metrics.LLMCalls.WithLabelValues(name, "transport_error").Inc()
	return "", fmt.Errorf("%w: %s: %v", ErrTransport, name, lastErr)
}

// stripCodeFence 去掉模型输出中可能包裹的 markdown 代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
