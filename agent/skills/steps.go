package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

const defaultMaxIDAttempts = 5

// Steps is the account-opening step catalogue. Each mutating step overwrites
// the record's status, appends at most one audit entry and persists the whole
// record before returning.
type Steps struct {
	store     prospectx.Store
	screening contractx.ScreeningProvider
	scorer    contractx.RiskScorer
	extractor contractx.DocumentExtractor

	now           func() time.Time
	newID         func() string
	maxIDAttempts int
}

type Option func(*Steps)

func WithScreeningProvider(p contractx.ScreeningProvider) Option {
	return func(s *Steps) {
		if p != nil {
			s.screening = p
		}
	}
}

func WithRiskScorer(r contractx.RiskScorer) Option {
	return func(s *Steps) {
		if r != nil {
			s.scorer = r
		}
	}
}

func WithDocumentExtractor(e contractx.DocumentExtractor) Option {
	return func(s *Steps) {
		if e != nil {
			s.extractor = e
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Steps) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the random PROSPnnnn generator used by CreateRecord.
func WithIDGenerator(fn func() string) Option {
	return func(s *Steps) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(store prospectx.Store, opts ...Option) (*Steps, error) {
	if store == nil {
		return nil, errors.New("prospect store is required")
	}
	s := &Steps{
		store:         store,
		screening:     NewRandomScreening(),
		scorer:        NewRandomRiskScorer(),
		extractor:     NewMockDocumentExtractor(),
		now:           time.Now,
		newID:         RandomProspectID,
		maxIDAttempts: defaultMaxIDAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Steps) Store() prospectx.Store {
	return s.store
}

// begin validates the record a step is about to mutate.
func (s *Steps) begin(step string, rec *prospectx.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: %s: %w: record is nil", contractx.ErrStepExecution, step, contractx.ErrValidation)
	}
	if strings.TrimSpace(rec.ClientID) == "" {
		return fmt.Errorf("%w: %s: %w: clientID is required", contractx.ErrStepExecution, step, contractx.ErrValidation)
	}
	return nil
}

// persist writes rec back under its client id. Failures are logged and
// swallowed; the caller still gets the in-memory mutation.
func (s *Steps) persist(ctx context.Context, step string, rec *prospectx.Record) {
	if _, err := s.store.Update(ctx, rec.ClientID, rec); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("step", step).
			Str("client_id", rec.ClientID).
			Msg("persist record failed")
	}
}

func (s *Steps) audit(rec *prospectx.Record, action string) {
	rec.AppendOnboarding(s.now(), rec.Status, action)
}
