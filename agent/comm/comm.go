package comm

import (
	"context"
	"io"
	"unicode/utf8"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/search"
)

// Deps 工作流节点共享的依赖，由调用方构造后注入
type Deps struct {
	Roles   *llm.Roles
	Search  *search.Gateway
	Report  conf.ReportConfig
	Setting conf.SettingConfig
}

// Hybrid 是否启用内部知识检索
func (d *Deps) Hybrid() bool {
	return d.Report.Mode == consts.ModeHybridRAG
}

// NewModifyInputFunc 返回输入消息修改函数，超过 maxLimit 的消息只保留后半段的最新信息
func NewModifyInputFunc(maxLimit int) react.MessageModifier {
	return func(ctx context.Context, inputList []*schema.Message) []*schema.Message {
		if maxLimit <= 0 {
			return inputList
		}
		sum := 0
		out := make([]*schema.Message, 0, len(inputList))
		for _, input := range inputList {
			if input == nil {
				slog.Debug("ModifyInputFunc debug, input is nil")
				continue
			}

			length := len(input.Content)
			if length >= maxLimit {
				slog.Debug("ModifyInputFunc debug, input content length is %d, max limit token is %d", length, maxLimit)
				cp := *input
				cp.Content = tailOnRuneBoundary(input.Content, maxLimit)
				input = &cp
			}

			sum += len(input.Content)
			out = append(out, input)
		}

		slog.Debug("ModifyInputFunc debug, input content sum length is %d", sum)
		return out
	}
}

// tailOnRuneBoundary 保留末尾不超过 limit 字节的内容，起点落在字符边界上
func tailOnRuneBoundary(s string, limit int) string {
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// ToolCallChecker 工具调用检查函数
func ToolCallChecker(ctx context.Context, sr *schema.StreamReader[*schema.Message]) (bool, error) {
	defer sr.Close()

	// 遍历流式响应中的所有消息
	for {
		msg, err := sr.Recv()
		if err == io.EOF {
			// 流结束，未发现工具调用
			slog.Debug("toolCallChecker debug, stream message eof")
			return false, nil
		}
		if err != nil {
			slog.Error("toolCallChecker failed, recv stream message failed, err = %+v", err)
			return false, err
		}

		// 检查当前消息是否包含工具调用
		if len(msg.ToolCalls) > 0 {
			return true, nil
		}
	}
}
