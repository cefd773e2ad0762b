package skills

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

// RequiredDocuments is the minimal document set a prospect has to provide.
var RequiredDocuments = []string{"passport", "proof_of_address"}

type StatusResult struct {
	Status     string                      `json:"status"`
	Onboarding []prospectx.OnboardingEntry `json:"onboarding,omitempty"`
}

type ExtractionResult struct {
	ExtractedFields  map[string]any `json:"extracted_fields"`
	MissingDocuments []string       `json:"missing_documents"`
	Status           string         `json:"status"`
}

func (s *Steps) CollectKYC(ctx context.Context, rec *prospectx.Record) (StatusResult, error) {
	if err := s.begin("collect_kyc", rec); err != nil {
		return StatusResult{}, err
	}

	missing := rec.MissingKYCFields()
	action := "Client KYC data successfully verified and collected."
	rec.SetStatus(prospectx.StatusKYCCollected)
	if len(missing) > 0 {
		rec.SetStatus(prospectx.KYCIncompleteStatus(missing))
		action = fmt.Sprintf("Client KYC data is incomplete. Missing: %s.", strings.Join(missing, ", "))
	}
	s.audit(rec, action)
	s.persist(ctx, "collect_kyc", rec)

	return StatusResult{Status: rec.Status, Onboarding: slices.Clone(rec.Onboarding)}, nil
}

func (s *Steps) CollectSOW(ctx context.Context, rec *prospectx.Record) (StatusResult, error) {
	if err := s.begin("collect_sow", rec); err != nil {
		return StatusResult{}, err
	}

	rec.SetStatus(prospectx.StatusSOWCaptured)
	s.audit(rec, "SOW information captured: "+rec.DeclaredSourceOfWealth.String())
	s.persist(ctx, "collect_sow", rec)

	return StatusResult{Status: rec.Status, Onboarding: slices.Clone(rec.Onboarding)}, nil
}

// ExtractDocuments runs the document extractor over documents_provided and
// reports which required documents are still missing.
func (s *Steps) ExtractDocuments(ctx context.Context, rec *prospectx.Record) (ExtractionResult, error) {
	if err := s.begin("extract_documents", rec); err != nil {
		return ExtractionResult{}, err
	}

	fields, err := s.extractor.Extract(ctx, rec.DocumentsProvided)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("%w: extract_documents: %v", contractx.ErrStepExecution, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}

	missing := []string{}
	for _, doc := range RequiredDocuments {
		if !slices.Contains(rec.DocumentsProvided, doc) {
			missing = append(missing, doc)
		}
	}
	if len(missing) > 0 {
		log.Ctx(ctx).Debug().Str("client_id", rec.ClientID).Strs("missing_documents", missing).Msg("required documents missing")
	}

	rec.SetStatus(prospectx.StatusDocumentsExtracted)
	s.audit(rec, prospectx.StatusDocumentsExtracted)
	s.persist(ctx, "extract_documents", rec)

	return ExtractionResult{
		ExtractedFields:  fields,
		MissingDocuments: missing,
		Status:           rec.Status,
	}, nil
}
