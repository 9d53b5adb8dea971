package cmd

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"

	"github.com/hildam/deep-dive-go/agent"
	"github.com/hildam/deep-dive-go/agent/analyst"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/agent/executor"
	"github.com/hildam/deep-dive-go/biz/service"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/repo/checkpoint"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/mcp"
	"github.com/hildam/deep-dive-go/repo/search"
	"github.com/hildam/deep-dive-go/repo/store"
)

// app 组装好的服务
type app struct {
	cfg      *conf.AppConfig
	research *service.ResearchService
	workflow *service.WorkflowService
	closers  []func()
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp 初始化配置并组装全部依赖
func newApp(ctx context.Context, cfgPath string) (a *app, err error) {
	if err := conf.Init(cfgPath); err != nil {
		return nil, err
	}
	cfg := conf.GetCfg()
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	roles, err := llm.NewRoles(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("create models: %w", err)
	}

	clients, err := mcp.Connect(ctx, cfg.MCP)
	if err != nil {
		return nil, fmt.Errorf("connect mcp servers: %w", err)
	}
	a.closers = append(a.closers, clients.Close)

	gateway, err := search.NewFromConfig(ctx, cfg.Search, clients)
	if err != nil {
		return nil, fmt.Errorf("create search gateway: %w", err)
	}

	cp, err := checkpoint.New(ctx, cfg.Storage.Redis)
	if err != nil {
		return nil, err
	}

	st, closeStore, err := store.Open(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := closeStore(); err != nil {
			slog.Error("Close store failed, err = %+v", err)
		}
	})

	deps := &comm.Deps{Roles: roles, Search: gateway, Report: cfg.Report, Setting: cfg.Setting}
	orch, err := agent.NewOrchestrator(ctx, deps, cp)
	if err != nil {
		return nil, err
	}

	tools, err := executorTools(ctx, clients, gateway)
	if err != nil {
		return nil, err
	}
	exec, err := executor.New(ctx, executor.Config{
		Model:    roles.Executor,
		Tools:    tools,
		MaxStep:  cfg.Setting.AgentMaxStep,
		MaxLimit: cfg.Setting.MaxLimitToken,
	})
	if err != nil {
		return nil, err
	}
	an, err := analyst.New(ctx, deps, exec)
	if err != nil {
		return nil, err
	}

	a.research = service.NewResearchService(st, st, orch)
	a.workflow = service.NewWorkflowService(st, an)
	return a, nil
}

// executorTools MCP 工具加上网络搜索工具
func executorTools(ctx context.Context, clients *mcp.Clients, gateway *search.Gateway) ([]tool.BaseTool, error) {
	tools, err := clients.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}
	if !gateway.HasWeb() {
		return tools, nil
	}
	st, err := executor.NewSearchTool(gateway)
	if err != nil {
		return nil, err
	}
	return append(tools, st), nil
}
