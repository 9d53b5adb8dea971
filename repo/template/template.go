package template

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 提示词模板名称
const (
	ReportQueryWriter    = "report_query_writer"
	ReportPlanner        = "report_planner"
	RewriteReportPlan    = "rewrite_report_plan"
	SectionQueryWeb      = "section_query_web"
	SectionQueryInternal = "section_query_internal"
	SectionWriter        = "section_writer"
	SectionWriterInputs  = "section_writer_inputs"
	SectionGrader        = "section_grader"
	FinalSectionWriter   = "final_section_writer"
	AnalystPlanner       = "analyst_planner"
	AnalystReplanner     = "analyst_replanner"
	Executor             = "executor"
)

//go:embed prompts/*.md
var embedded embed.FS

// GetPromptTemplate 加载并返回一个提示模板，工作目录下 prompts/ 中的同名文件优先
func GetPromptTemplate(ctx context.Context, promptName string) (string, error) {
	file := fmt.Sprintf("%s.md", promptName)

	// 获取当前路径
	if dir, err := os.Getwd(); err == nil {
		content, err := os.ReadFile(filepath.Join(dir, "prompts", file))
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			msg := fmt.Errorf("GetPromptTemplate failed, read template file, err: %w", err)
			slog.Error(msg.Error())
			return "", msg
		}
	}

	// 使用内置模板
	content, err := embedded.ReadFile("prompts/" + file)
	if err != nil {
		msg := fmt.Errorf("GetPromptTemplate failed, template %s not found, err: %w", promptName, err)
		slog.Error(msg.Error())
		return "", msg
	}
	return string(content), nil
}

// Format 以模板为系统消息渲染提示词，user 中的内容作为用户消息并使用同一组变量渲染
func Format(ctx context.Context, promptName string, variables map[string]any, user ...string) ([]*schema.Message, error) {
	sysPrompt, err := GetPromptTemplate(ctx, promptName)
	if err != nil {
		return nil, err
	}

	msgs := []schema.MessagesTemplate{schema.SystemMessage(sysPrompt)}
	for _, u := range user {
		msgs = append(msgs, schema.UserMessage(u))
	}
	promptTemp := prompt.FromMessages(schema.Jinja2, msgs...)

	output, err := promptTemp.Format(ctx, variables)
	if err != nil {
		slog.Error("Format failed, template = %s, err = %+v", promptName, err)
		return nil, fmt.Errorf("format prompt %s: %w", promptName, err)
	}
	return output, nil
}
