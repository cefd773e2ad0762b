package skills

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

type ScreeningOutcome struct {
	NameScreeningResult prospectx.ScreeningResult `json:"name_screening_result"`
	Status              string                    `json:"status"`
}

type RiskResult struct {
	RiskScore int                 `json:"risk_score"`
	RiskLevel prospectx.RiskLevel `json:"risk_level"`
	Status    string              `json:"status"`
}

type ComplianceResult struct {
	OverallStatus string   `json:"overall_status"`
	FlaggedIssues []string `json:"flagged_issues"`
}

func (s *Steps) ScreenName(ctx context.Context, rec *prospectx.Record) (ScreeningOutcome, error) {
	if err := s.begin("screen_name", rec); err != nil {
		return ScreeningOutcome{}, err
	}

	outcome, err := s.screening.Screen(ctx, rec)
	if err != nil {
		return ScreeningOutcome{}, fmt.Errorf("%w: screen_name: %v", contractx.ErrStepExecution, err)
	}
	if !outcome.Valid() || outcome == prospectx.ScreeningNone {
		return ScreeningOutcome{}, fmt.Errorf("%w: screen_name: provider returned %q", contractx.ErrStepExecution, outcome)
	}

	rec.NameScreeningResult = outcome
	rec.SetStatus(prospectx.ScreeningStatus(outcome))
	s.audit(rec, fmt.Sprintf("%s: Screening outcome: %s", rec.Status, outcome))
	s.persist(ctx, "screen_name", rec)

	return ScreeningOutcome{NameScreeningResult: outcome, Status: rec.Status}, nil
}

// EvaluateRisk scores the client from a screening outcome and nationality.
// An empty screening argument falls back to the record's stored result.
// It writes no audit entry.
func (s *Steps) EvaluateRisk(ctx context.Context, rec *prospectx.Record, screening string) (RiskResult, error) {
	if err := s.begin("evaluate_risk", rec); err != nil {
		return RiskResult{}, err
	}

	outcome, err := parseScreening(screening, rec.NameScreeningResult)
	if err != nil {
		return RiskResult{}, fmt.Errorf("%w: evaluate_risk: %w: %v", contractx.ErrStepExecution, contractx.ErrValidation, err)
	}

	score, err := s.scorer.Score(ctx, outcome, rec.Nationality)
	if err != nil {
		return RiskResult{}, fmt.Errorf("%w: evaluate_risk: %v", contractx.ErrStepExecution, err)
	}
	if score < 0 {
		score = 0
	}

	rec.RiskScore = score
	rec.RiskLevel = prospectx.RiskLevelFor(score)
	rec.SetStatus(prospectx.StatusRiskAssessed)
	s.persist(ctx, "evaluate_risk", rec)

	return RiskResult{RiskScore: rec.RiskScore, RiskLevel: rec.RiskLevel, Status: rec.Status}, nil
}

// AssessCompliance escalates when the risk level is High or the name is on a
// sanctions list.
func (s *Steps) AssessCompliance(ctx context.Context, rec *prospectx.Record) (ComplianceResult, error) {
	if err := s.begin("assess_compliance", rec); err != nil {
		return ComplianceResult{}, err
	}

	flagged := []string{}
	status, outcome := prospectx.StatusCompliancePassed, "passed"
	if rec.RiskLevel == prospectx.RiskHigh || rec.NameScreeningResult == prospectx.ScreeningSanctionsMatch {
		status, outcome = prospectx.StatusComplianceEscalated, "escalated for enhanced due diligence"
		flagged = append(flagged, status)
	}

	rec.ComplianceFlags = flagged
	rec.SetStatus(status)
	s.audit(rec, fmt.Sprintf("%s: Compliance assessment %s", status, outcome))
	s.persist(ctx, "assess_compliance", rec)

	return ComplianceResult{OverallStatus: status, FlaggedIssues: append([]string(nil), flagged...)}, nil
}

func (s *Steps) AssignFirstLine(ctx context.Context, rec *prospectx.Record) (StatusResult, error) {
	if err := s.begin("assign_first_line", rec); err != nil {
		return StatusResult{}, err
	}

	rec.SetStatus(prospectx.StatusFirstLineReview)
	s.audit(rec, fmt.Sprintf("%s: %s", rec.Status, prospectx.StatusFirstLineReviewAction))
	s.persist(ctx, "assign_first_line", rec)

	return StatusResult{Status: rec.Status}, nil
}

func parseScreening(raw string, fallback prospectx.ScreeningResult) (prospectx.ScreeningResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback == "" {
			return prospectx.ScreeningNone, nil
		}
		return fallback, nil
	}
	for _, known := range []prospectx.ScreeningResult{
		prospectx.ScreeningNone,
		prospectx.ScreeningNoMatch,
		prospectx.ScreeningPotentialMatch,
		prospectx.ScreeningSanctionsMatch,
	} {
		if strings.EqualFold(raw, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown screening result %q", raw)
}
