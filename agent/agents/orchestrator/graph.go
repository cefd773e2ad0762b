package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	nodex "github.com/tanpawarit/account-opening-agents/agent/nodes"
)

func (o *Orchestrator) compileRunGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(guarded("validate_request", func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		})),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_record",
		compose.InvokableLambda(guarded("load_record", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadRecord(ctx, in, o.store)
		})),
	); err != nil {
		return nil, fmt.Errorf("add node load_record: %w", err)
	}

	if err := graph.AddLambdaNode("generate_plan",
		compose.InvokableLambda(guarded("generate_plan", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.GeneratePlan(ctx, in, o.planner)
		})),
	); err != nil {
		return nil, fmt.Errorf("add node generate_plan: %w", err)
	}

	if err := graph.AddLambdaNode("execute_plan",
		compose.InvokableLambda(guarded("execute_plan", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecutePlan(ctx, in, o.executor)
		})),
	); err != nil {
		return nil, fmt.Errorf("add node execute_plan: %w", err)
	}

	if err := graph.AddLambdaNode("reload_record",
		compose.InvokableLambda(guarded("reload_record", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ReloadRecord(ctx, in, o.store)
		})),
	); err != nil {
		return nil, fmt.Errorf("add node reload_record: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(guarded("finalize", func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.Finalize(in)
		})),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_record"},
		{"load_record", "generate_plan"},
		{"generate_plan", "execute_plan"},
		{"execute_plan", "reload_record"},
		{"reload_record", "finalize"},
		{"finalize", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.run_workflow"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

// guarded turns a panic inside a node into an ErrStepExecution error.
func guarded[I, O any](node string, fn func(context.Context, I) (O, error)) func(context.Context, I) (O, error) {
	return func(ctx context.Context, in I) (out O, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: node %s panicked: %v", contractx.ErrStepExecution, node, r)
			}
		}()
		return fn(ctx, in)
	}
}
