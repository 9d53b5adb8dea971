package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ErrToolNotFound 没有匹配的 MCP 工具
var ErrToolNotFound = errors.New("mcp tool not found")

// Clients 已初始化的 MCP 客户端集合
type Clients struct {
	clients map[string]client.MCPClient

	toolsOnce   sync.Once       // 确保工具只被加载一次
	cachedTools []tool.BaseTool // 缓存的MCP工具
	toolsErr    error
}

// Connect 按配置连接全部 MCP 服务，任一失败则关闭已建立的连接
func Connect(ctx context.Context, cfg conf.MCPConfig) (*Clients, error) {
	clients := make(map[string]client.MCPClient)
	closeAll := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}

	for name, server := range cfg.Servers {
		mcpClient, err := newClient(ctx, name, server)
		if err != nil {
			closeAll()
			slog.Error("Connect failed, name = %s, err = %+v", name, err)
			return nil, fmt.Errorf("failed to create MCP client for %s: %w", name, err)
		}

		if err := initialize(ctx, mcpClient); err != nil {
			_ = mcpClient.Close()
			closeAll()
			slog.Error("Connect failed, initialize name = %s, err = %+v", name, err)
			return nil, fmt.Errorf("failed to initialize MCP client for %s: %w", name, err)
		}
		clients[name] = mcpClient
	}
	return &Clients{clients: clients}, nil
}

// newClient 配置了 URL 时使用 SSE，否则启动 stdio 子进程
func newClient(ctx context.Context, name string, server conf.MCPServerConfig) (client.MCPClient, error) {
	if transportOf(server) == transportSSE {
		slog.Debug("newClient debug, load mcp sse client = %s, url = %s", name, server.URL)
		var options []transport.ClientOption
		if headers := parseHeaders(server.Headers); len(headers) > 0 {
			options = append(options, transport.WithHeaders(headers))
		}
		sseClient, err := client.NewSSEMCPClient(server.URL, options...)
		if err != nil {
			return nil, err
		}
		if err := sseClient.Start(ctx); err != nil {
			_ = sseClient.Close()
			return nil, err
		}
		return sseClient, nil
	}

	var env []string
	for k, v := range server.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	slog.Debug("newClient debug, load mcp stdio client = %s, command = %s, args = %+v", name, server.Command, server.Args)
	return client.NewStdioMCPClient(server.Command, env, server.Args...)
}

// initialize 完成 MCP 握手
func initialize(ctx context.Context, c client.MCPClient) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initRequest := mcpgo.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcpgo.Implementation{
		Name:    "deep-dive-go",
		Version: "0.1.0",
	}
	initRequest.Params.Capabilities = mcpgo.ClientCapabilities{}
	_, err := c.Initialize(ctx, initRequest)
	return err
}

// parseHeaders 解析 "Key: Value" 形式的请求头
func parseHeaders(raw []string) map[string]string {
	headers := make(map[string]string)
	for _, header := range raw {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}

// Tools 获取所有MCP工具，结果缓存
func (c *Clients) Tools(ctx context.Context) ([]tool.BaseTool, error) {
	if c == nil {
		return nil, nil
	}
	c.toolsOnce.Do(func() {
		c.cachedTools, c.toolsErr = c.loadTools(ctx)
	})
	return c.cachedTools, c.toolsErr
}

// FindTool 返回第一个名称以 suffix 结尾的可调用工具
func (c *Clients) FindTool(ctx context.Context, suffix string) (tool.InvokableTool, error) {
	tools, err := c.Tools(ctx)
	if err != nil {
		return nil, err
	}
	return FindTool(ctx, tools, suffix)
}

// Close 关闭所有连接
func (c *Clients) Close() {
	if c == nil {
		return
	}
	for name, cli := range c.clients {
		if err := cli.Close(); err != nil {
			slog.Error("Close failed, mcp client = %s, err = %+v", name, err)
		}
	}
}

// loadTools 遍历所有MCP服务器加载工具，单个服务失败时跳过
func (c *Clients) loadTools(ctx context.Context) ([]tool.BaseTool, error) {
	var allTools []tool.BaseTool
	for serverName, mcpClient := range c.clients {
		toolsResp, err := mcpClient.ListTools(ctx, mcpgo.ListToolsRequest{})
		if err != nil {
			slog.Error("loadTools failed, list tools from %s, err = %+v", serverName, err)
			continue
		}
		slog.Debug("loadTools debug, found %d tools from %s", len(toolsResp.Tools), serverName)

		for _, mcpTool := range toolsResp.Tools {
			allTools = append(allTools, &MCPTool{
				cli:         mcpClient,
				toolName:    mcpTool.Name,
				toolDesc:    mcpTool.Description,
				inputSchema: mcpTool.InputSchema,
			})
		}
	}
	slog.Debug("loadTools debug, total tools loaded: %d", len(allTools))
	return allTools, nil
}

// FindTool 在工具列表中查找名称以 suffix 结尾的可调用工具
func FindTool(ctx context.Context, tools []tool.BaseTool, suffix string) (tool.InvokableTool, error) {
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			slog.Error("FindTool failed, get tool info err = %+v", err)
			continue
		}
		if !strings.HasSuffix(info.Name, suffix) {
			continue
		}
		if it, ok := t.(tool.InvokableTool); ok {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: suffix %q", ErrToolNotFound, suffix)
}

// convertMCPSchemaToEinoParams 将MCP的InputSchema转换为eino的ParamsOneOf
func convertMCPSchemaToEinoParams(inputSchema mcpgo.ToolInputSchema) (*schema.ParamsOneOf, error) {
	schemaBytes, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema: %w", err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}

	// 既没有type也没有anyOf时默认为object
	if _, hasType := schemaMap["type"]; !hasType {
		if _, hasAnyOf := schemaMap["anyOf"]; !hasAnyOf {
			schemaMap["type"] = "object"
		}
	}

	// 缺少type的属性按string处理
	if properties, ok := schemaMap["properties"].(map[string]any); ok {
		for _, propValue := range properties {
			if propMap, ok := propValue.(map[string]any); ok {
				if _, hasType := propMap["type"]; !hasType {
					if _, hasAnyOf := propMap["anyOf"]; !hasAnyOf {
						propMap["type"] = "string"
					}
				}
			}
		}
	}

	fixedSchemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fixed schema: %w", err)
	}

	var openAPISchema openapi3.Schema
	if err := json.Unmarshal(fixedSchemaBytes, &openAPISchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to OpenAPI schema: %w", err)
	}
	return schema.NewParamsOneOfByOpenAPIV3(&openAPISchema), nil
}
