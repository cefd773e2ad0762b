package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

// ReloadRecord reads back what the steps persisted. If the read fails the
// planned record is returned as is.
func ReloadRecord(ctx context.Context, in *GraphState, store prospectx.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	rec, err := store.GetByID(ctx, in.ClientID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("reload record failed, returning planned record")
		return in, nil
	}
	in.Record = rec
	return in, nil
}
