package llm

import (
	"context"
	"fmt"

	openai3 "github.com/cloudwego/eino-ext/libs/acl/openai"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/hildam/deep-dive-go/entity/conf"
)

// NewChatModel 创建Chat模型
func NewChatModel(ctx context.Context, m conf.Model) (*openai.ChatModel, error) {
	llm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   m.ModelID,
		BaseURL: m.BaseURL,
		APIKey:  m.APIKey,
	})
	if err != nil {
		slog.Error("NewChatModel failed, model = %s, err: %v", m.ModelID, err)
		return nil, err
	}
	return llm, nil
}

// NewSchemaModel 创建结构化输出模型，响应格式由 sample 的 JSON Schema 约束
func NewSchemaModel(ctx context.Context, m conf.Model, name string, sample any) (*openai.ChatModel, error) {
	// 定义返回结构
	ref, err := openapi3gen.NewSchemaRefForValue(sample, nil)
	if err != nil {
		return nil, fmt.Errorf("NewSchemaModel failed, generate schema %s err: %w", name, err)
	}

	// 创建 LLM
	llm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   m.ModelID,
		BaseURL: m.BaseURL,
		APIKey:  m.APIKey,
		ResponseFormat: &openai3.ChatCompletionResponseFormat{
			Type: openai3.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai3.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Strict: false,
				Schema: ref.Value,
			},
		},
	})
	if err != nil {
		slog.Error("NewSchemaModel failed, name = %s, err: %v", name, err)
		return nil, err
	}
	return llm, nil
}
