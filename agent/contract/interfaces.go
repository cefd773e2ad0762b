package contract

import (
	"context"

	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Plan, error)
}

type Executor interface {
	Execute(ctx context.Context, plan Plan) (ExecutionResult, error)
}

// ScreeningProvider checks a name against watch lists.
type ScreeningProvider interface {
	Screen(ctx context.Context, rec *prospectx.Record) (prospectx.ScreeningResult, error)
}

// RiskScorer turns a screening outcome and nationality into a numeric score.
type RiskScorer interface {
	Score(ctx context.Context, screening prospectx.ScreeningResult, nationality string) (int, error)
}

type DocumentExtractor interface {
	Extract(ctx context.Context, documents []string) (map[string]any, error)
}

// WorkflowRunner runs the planning and execution agents for one prospect.
type WorkflowRunner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}
