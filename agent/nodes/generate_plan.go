package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

func GeneratePlan(ctx context.Context, in *GraphState, planner contractx.Planner) (*GraphState, error) {
	if in == nil || in.Record == nil {
		return nil, fmt.Errorf("%w: record is required before planning", contractx.ErrValidation)
	}

	plan, err := planner.Plan(ctx, contractx.PlanRequest{
		Record:   in.Record,
		Scenario: in.Scenario,
	})
	if err != nil {
		return nil, err
	}
	in.Plan = plan

	log.Ctx(ctx).Info().
		Str("status", in.Record.Status).
		Strs("functions", plan.References).
		Msg("plan ready")
	return in, nil
}
