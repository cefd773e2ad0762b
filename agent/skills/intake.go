package skills

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

const prospectIDPrefix = "PROSP"

type NewProspect struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"dob"`
	Nationality    string `json:"nationality"`
	ReferralSource string `json:"referral_source"`
}

// RandomProspectID returns "PROSP" followed by four random digits.
func RandomProspectID() string {
	return fmt.Sprintf("%s%d", prospectIDPrefix, 1000+rand.Intn(9000))
}

// CreateRecord stores a fresh intake record. Id collisions are retried with a
// new id a bounded number of times.
func (s *Steps) CreateRecord(ctx context.Context, in NewProspect) (*prospectx.Record, error) {
	if strings.TrimSpace(in.FirstName) == "" && strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("%w: create_record: %w: a first or last name is required", contractx.ErrStepExecution, contractx.ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < s.maxIDAttempts; attempt++ {
		rec := prospectx.NewRecord(s.newID(), in.FirstName, in.LastName, in.DateOfBirth, in.Nationality, in.ReferralSource)
		created, err := s.store.Create(ctx, rec)
		if err == nil {
			log.Ctx(ctx).Info().Str("client_id", created.ClientID).Msg("prospect created")
			return created, nil
		}
		if !errors.Is(err, prospectx.ErrRecordExists) {
			return nil, fmt.Errorf("%w: create_record: %v", contractx.ErrStepExecution, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: create_record: no free id after %d attempts: %v", contractx.ErrStepExecution, s.maxIDAttempts, lastErr)
}

func (s *Steps) FetchByName(ctx context.Context, fullName string) (*prospectx.Record, error) {
	rec, err := s.store.GetByName(ctx, fullName)
	return fetched("fetch_by_name", fullName, rec, err)
}

func (s *Steps) FetchByID(ctx context.Context, clientID string) (*prospectx.Record, error) {
	rec, err := s.store.GetByID(ctx, clientID)
	return fetched("fetch_by_id", clientID, rec, err)
}

func fetched(step, key string, rec *prospectx.Record, err error) (*prospectx.Record, error) {
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, prospectx.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: %s %q", contractx.ErrRecordNotFound, step, key)
	case errors.Is(err, prospectx.ErrEmptyClientID):
		return nil, fmt.Errorf("%w: %s: %w: %v", contractx.ErrStepExecution, step, contractx.ErrValidation, err)
	default:
		return nil, fmt.Errorf("%w: %s: %v", contractx.ErrStepExecution, step, err)
	}
}
