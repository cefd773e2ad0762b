package nodes

import (
	"time"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

type GraphInput struct {
	RunID   string
	Request contractx.RunRequest
}

type GraphOutput = contractx.RunResult

// GraphState is passed node to node through one workflow run.
type GraphState struct {
	RunID     string
	ClientID  string
	Snapshot  map[string]any
	Scenario  string
	StartedAt time.Time

	Record    *prospectx.Record
	Plan      contractx.Plan
	Execution contractx.ExecutionResult
}
