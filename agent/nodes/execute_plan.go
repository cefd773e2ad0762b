package nodes

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

func ExecutePlan(ctx context.Context, in *GraphState, executor contractx.Executor) (*GraphState, error) {
	if in == nil || strings.TrimSpace(in.Plan.Text) == "" {
		return nil, fmt.Errorf("%w: plan is required before execution", contractx.ErrValidation)
	}

	res, err := executor.Execute(ctx, in.Plan)
	if err != nil {
		return nil, err
	}
	in.Execution = res
	return in, nil
}
