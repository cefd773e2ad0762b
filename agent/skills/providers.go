package skills

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

var (
	_ contractx.ScreeningProvider = RandomScreening{}
	_ contractx.RiskScorer        = RandomRiskScorer{}
	_ contractx.DocumentExtractor = MockDocumentExtractor{}
)

// HighRiskNationalities add a fixed bonus to the risk score.
var HighRiskNationalities = map[string]struct{}{
	"IR": {}, "RU": {}, "KP": {}, "SY": {},
}

const (
	highRiskNationalityBonus = 5
	maxRandomRiskBonus       = 3
)

// RandomScreening draws No match 80%, Potential match 15%, Sanctions list match 5%.
type RandomScreening struct {
	roll func() float64
}

func NewRandomScreening() RandomScreening {
	return RandomScreening{roll: rand.Float64}
}

func (r RandomScreening) Screen(_ context.Context, _ *prospectx.Record) (prospectx.ScreeningResult, error) {
	draw := rand.Float64
	if r.roll != nil {
		draw = r.roll
	}
	switch x := draw(); {
	case x < 0.80:
		return prospectx.ScreeningNoMatch, nil
	case x < 0.95:
		return prospectx.ScreeningPotentialMatch, nil
	default:
		return prospectx.ScreeningSanctionsMatch, nil
	}
}

// RandomRiskScorer adds a uniform 0..3 bonus to the deterministic base score.
type RandomRiskScorer struct {
	intN func(int) int
}

func NewRandomRiskScorer() RandomRiskScorer {
	return RandomRiskScorer{intN: rand.Intn}
}

func (r RandomRiskScorer) Score(_ context.Context, screening prospectx.ScreeningResult, nationality string) (int, error) {
	intN := rand.Intn
	if r.intN != nil {
		intN = r.intN
	}
	return BaseRiskScore(screening, nationality) + intN(maxRandomRiskBonus+1), nil
}

// BaseRiskScore is the score before the random bonus.
func BaseRiskScore(screening prospectx.ScreeningResult, nationality string) int {
	score := 0
	switch screening {
	case prospectx.ScreeningPotentialMatch:
		score += 3
	case prospectx.ScreeningSanctionsMatch:
		score += 10
	}
	if _, ok := HighRiskNationalities[strings.ToUpper(strings.TrimSpace(nationality))]; ok {
		score += highRiskNationalityBonus
	}
	return score
}

// MockDocumentExtractor synthesizes fields for known document tags.
type MockDocumentExtractor struct {
	intN func(int) int
}

func NewMockDocumentExtractor() MockDocumentExtractor {
	return MockDocumentExtractor{intN: rand.Intn}
}

func (m MockDocumentExtractor) Extract(_ context.Context, documents []string) (map[string]any, error) {
	intN := rand.Intn
	if m.intN != nil {
		intN = m.intN
	}
	out := map[string]any{}
	for _, doc := range documents {
		switch doc {
		case "passport":
			out["passport_number"] = fmt.Sprintf("P-%d", 100000+intN(900000))
			out["passport_issue_date"] = "2020-01-01"
			out["passport_expiry_date"] = "2030-01-01"
		case "proof_of_address":
			out["address_verified"] = true
		case "corporate_doc":
			out["corporation_name"] = "N/A"
			out["incorporation_year"] = "N/A"
		}
	}
	return out, nil
}
