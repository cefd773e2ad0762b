package nodes

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	clientID := strings.TrimSpace(in.Request.ClientID)
	snapshotID, _ := in.Request.Snapshot["clientID"].(string)
	snapshotID = strings.TrimSpace(snapshotID)

	switch {
	case clientID == "" && snapshotID == "":
		return nil, fmt.Errorf("%w: clientID is required", contractx.ErrValidation)
	case clientID == "":
		clientID = snapshotID
	case snapshotID != "" && snapshotID != clientID:
		return nil, fmt.Errorf("%w: snapshot clientID %q does not match %q", contractx.ErrValidation, snapshotID, clientID)
	}

	return &GraphState{
		RunID:     in.RunID,
		ClientID:  clientID,
		Snapshot:  in.Request.Snapshot,
		Scenario:  strings.TrimSpace(in.Request.Scenario),
		StartedAt: nowFn().UTC(),
	}, nil
}
