package nodes

import (
	"fmt"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

func Finalize(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Record == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return GraphOutput{
		RunID:     in.RunID,
		Record:    in.Record,
		Plan:      in.Plan.Text,
		Narrative: in.Execution.Narrative(),
		Turns:     in.Execution.Turns,
		Completed: in.Execution.Completed,
	}, nil
}
