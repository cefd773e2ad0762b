package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

// LoadRecord resolves the record the plan is written for. A caller snapshot
// is overlaid on the stored record; without a stored record the snapshot
// alone is used.
func LoadRecord(ctx context.Context, in *GraphState, store prospectx.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	stored, err := store.GetByID(ctx, in.ClientID)
	if err != nil && !errors.Is(err, prospectx.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: load record %s: %v", contractx.ErrStepExecution, in.ClientID, err)
	}

	if len(in.Snapshot) == 0 {
		if stored == nil {
			return nil, fmt.Errorf("%w: %s", contractx.ErrRecordNotFound, in.ClientID)
		}
		in.Record = stored
		return in, nil
	}

	snapshot := make(map[string]any, len(in.Snapshot)+1)
	for k, v := range in.Snapshot {
		snapshot[k] = v
	}
	snapshot["clientID"] = in.ClientID

	if stored == nil {
		log.Ctx(ctx).Warn().Msg("no stored record, planning from snapshot")
		rec, err := prospectx.FromMap(snapshot)
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot: %v", contractx.ErrValidation, err)
		}
		in.Record = rec
		return in, nil
	}

	rec, err := prospectx.Merge(stored, snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", contractx.ErrValidation, err)
	}
	in.Record = rec
	return in, nil
}
