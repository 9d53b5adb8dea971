// Package executor 计划步骤的工具调用执行者
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/repo/search"
	"github.com/hildam/deep-dive-go/repo/template"
)

// Executor 执行单个任务并返回文本结果
type Executor interface {
	Execute(ctx context.Context, task string) (string, error)
}

// reactExecutor 基于 ReAct agent 的执行者，同一个工具在一次任务中只能调用一次
type reactExecutor struct {
	agent *react.Agent
}

// Config 执行者配置
type Config struct {
	Model    model.ToolCallingChatModel
	Tools    []tool.BaseTool
	MaxStep  int
	MaxLimit int // 单条消息的长度上限
}

// New 创建执行者
func New(ctx context.Context, cfg Config) (Executor, error) {
	tools := make([]tool.BaseTool, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		it, ok := t.(tool.InvokableTool)
		if !ok {
			slog.Error("New executor info, skip non invokable tool %T", t)
			continue
		}
		tools = append(tools, &onceTool{inner: it})
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		MaxStep:               cfg.MaxStep,                           // 最大执行步骤数
		ToolCallingModel:      cfg.Model,                             // 工具调用模型
		ToolsConfig:           compose.ToolsNodeConfig{Tools: tools}, // 工具配置
		MessageModifier:       comm.NewModifyInputFunc(cfg.MaxLimit), // 消息长度限制处理器
		StreamToolCallChecker: comm.ToolCallChecker,                  // 流式工具调用检查器
	})
	if err != nil {
		slog.Error("New executor failed, create react agent err = %+v", err)
		return nil, err
	}
	return &reactExecutor{agent: agent}, nil
}

// Execute 执行任务
func (e *reactExecutor) Execute(ctx context.Context, task string) (string, error) {
	sysPrompt, err := template.GetPromptTemplate(ctx, template.Executor)
	if err != nil {
		return "", err
	}
	ctx = context.WithValue(ctx, callsKey{}, &calls{seen: make(map[string]bool)})

	msg, err := e.agent.Generate(ctx, []*schema.Message{
		schema.SystemMessage(sysPrompt),
		schema.UserMessage(task),
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

type callsKey struct{}

// calls 一次任务内已调用的工具
type calls struct {
	mu   sync.Mutex
	seen map[string]bool
}

// first 第一次调用返回 true
func (c *calls) first(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[name] {
		return false
	}
	c.seen[name] = true
	return true
}

// onceTool 重复调用时不执行，提示模型使用已有结果
type onceTool struct {
	inner tool.InvokableTool
}

func (t *onceTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *onceTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	info, err := t.inner.Info(ctx)
	if err != nil {
		return "", err
	}
	if c, ok := ctx.Value(callsKey{}).(*calls); ok && !c.first(info.Name) {
		slog.Info("onceTool info, tool %s already called in this task", info.Name)
		return fmt.Sprintf("Tool %s has already been called for this task. Use the previous result instead of calling it again.", info.Name), nil
	}
	return t.inner.InvokableRun(ctx, argumentsInJSON, opts...)
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=the search query"`
}

// NewSearchTool 基于搜索入口的 internet_search 工具
func NewSearchTool(g *search.Gateway) (tool.InvokableTool, error) {
	return utils.InferTool("internet_search", "Search the internet for current information about companies, markets and financial news.",
		func(ctx context.Context, in *searchArgs) (string, error) {
			ev, err := g.Web(ctx, []string{in.Query})
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			return ev.Text, nil
		})
}
