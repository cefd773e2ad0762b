package planner

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

// compilePlanGraph wires prompt -> model -> text. The prompt is sent as a
// single user message with the variables record, tools, scenario and
// business_logic.
func compilePlanGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	plannerPrompt string,
) (compose.Runnable[map[string]any, string], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.UserMessage(plannerPrompt),
	)

	graph := compose.NewGraph[map[string]any, string]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add plan prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add plan model node: %w", err)
	}
	if err := graph.AddLambdaNode("plan_text",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (string, error) {
			if msg == nil {
				return "", fmt.Errorf("%w: planner returned no message", contractx.ErrSchemaViolation)
			}
			return strings.TrimSpace(msg.Content), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add plan text node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add plan edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add plan edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "plan_text"); err != nil {
		return nil, fmt.Errorf("add plan edge model->text: %w", err)
	}
	if err := graph.AddEdge("plan_text", compose.END); err != nil {
		return nil, fmt.Errorf("add plan edge text->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("planner.plan_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile plan graph: %w", err)
	}
	return runner, nil
}
