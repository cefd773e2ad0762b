package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"
)

var _ einomodel.ToolCallingChatModel = (*ToolModel)(nil)

// ToolModel is a chat model on the OpenAI SDK that always requests
// sequential tool calls (parallel_tool_calls=false).
type ToolModel struct {
	client      *openaisdk.Client
	model       string
	temperature float32
	maxTokens   *int
	tools       []openaisdk.ChatCompletionToolParam
}

// NewToolModel builds a ToolModel from cfg. It fails without an API key or model.
func NewToolModel(cfg Config) (*ToolModel, error) {
	client, err := newSDKClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ToolModel{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionToken,
	}, nil
}

func (m *ToolModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	params := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		p, err := toolParam(info)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	clone := *m
	clone.tools = params
	return &clone, nil
}

func (m *ToolModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	msgs, err := toMessageParams(input)
	if err != nil {
		return nil, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(m.model),
		Messages:    msgs,
		Temperature: openaisdk.Float(float64(m.temperature)),
	}
	if m.maxTokens != nil && *m.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(*m.maxTokens))
	}
	if len(m.tools) > 0 {
		params.Tools = m.tools
		params.ParallelToolCalls = openaisdk.Bool(false)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter: chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out, nil
}

func (m *ToolModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("openrouter: tool model does not stream")
}

func toolParam(info *schema.ToolInfo) (openaisdk.ChatCompletionToolParam, error) {
	fn := openaisdk.FunctionDefinitionParam{Name: info.Name}
	if desc := strings.TrimSpace(info.Desc); desc != "" {
		fn.Description = openaisdk.String(desc)
	}
	if info.ParamsOneOf != nil {
		s, err := info.ParamsOneOf.ToOpenAPIV3()
		if err != nil {
			return openaisdk.ChatCompletionToolParam{}, fmt.Errorf("openrouter: tool %s schema: %w", info.Name, err)
		}
		if s != nil {
			raw, err := json.Marshal(s)
			if err != nil {
				return openaisdk.ChatCompletionToolParam{}, fmt.Errorf("openrouter: tool %s schema: %w", info.Name, err)
			}
			var params openaisdk.FunctionParameters
			if err := json.Unmarshal(raw, &params); err != nil {
				return openaisdk.ChatCompletionToolParam{}, fmt.Errorf("openrouter: tool %s schema: %w", info.Name, err)
			}
			fn.Parameters = params
		}
	}
	return openaisdk.ChatCompletionToolParam{Function: fn}, nil
}

func toMessageParams(input []*schema.Message) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case schema.User:
			out = append(out, openaisdk.UserMessage(msg.Content))
		case schema.Tool:
			out = append(out, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		case schema.Assistant:
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openaisdk.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			return nil, fmt.Errorf("openrouter: unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}
