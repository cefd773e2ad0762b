package prospect

import (
	"fmt"
	"strings"
)

// Status labels written by the workflow steps. Each step overwrites Record.Status
// with exactly one of these (or a formatted KYC-incomplete label).
const (
	StatusNew                   = "new"
	StatusKYCCollected          = "KYC data collected successfully"
	StatusKYCIncompletePrefix   = "KYC incomplete. Missing fields: "
	StatusSOWCaptured           = "SOW information captured"
	StatusDocumentsExtracted    = "Documents AI extraction completed"
	StatusScreeningCleared      = "Name screening: Cleared"
	StatusScreeningReview       = "Name screening: Further review required"
	StatusScreeningSanctions    = "Name appears on sanctions list! High alert."
	StatusRiskAssessed          = "Client risk profile assessed"
	StatusComplianceEscalated   = "High-risk client. Further Enhanced Due Diligence required."
	StatusCompliancePassed      = "First KYC checks passed."
	StatusFirstLineReview       = "Assigned to human review (first line of defence)"
	StatusFirstLineReviewAction = "Waiting for first compliance approval"
)

func KYCIncompleteStatus(missing []string) string {
	return StatusKYCIncompletePrefix + strings.Join(missing, ", ")
}

// ScreeningStatus derives the status label for a screening outcome.
func ScreeningStatus(result ScreeningResult) string {
	switch result {
	case ScreeningNoMatch:
		return StatusScreeningCleared
	case ScreeningPotentialMatch:
		return StatusScreeningReview
	case ScreeningSanctionsMatch:
		return StatusScreeningSanctions
	default:
		return fmt.Sprintf("Name screening: %s", result)
	}
}

// Phases is the dashboard's ordered view of the workflow. Phases after
// "First Line of Defence" are driven by humans outside this service.
var Phases = []string{
	"KYC Information",
	"Source of Wealth",
	"Documents AI Extraction",
	"Name Screening",
	"Risk Profile",
	"Compliance & Risk Assessment",
	"First Line of Defence",
	"Check Documents",
	"Compliance Report",
	"Second line of defence",
	"Account opening",
}

const (
	PhaseKYC = iota
	PhaseSourceOfWealth
	PhaseDocuments
	PhaseNameScreening
	PhaseRiskProfile
	PhaseCompliance
	PhaseFirstLine
	PhaseCheckDocuments
	PhaseComplianceReport
	PhaseSecondLine
	PhaseAccountOpening
)

// PhaseFor maps a status onto the index of the phase it belongs to.
// Unknown labels (including "new") map to the first phase.
func PhaseFor(status string) int {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case s == "" || s == StatusNew:
		return PhaseKYC
	case strings.Contains(s, "first line of defence"):
		return PhaseFirstLine
	case strings.Contains(s, "second line of defence"):
		return PhaseSecondLine
	case strings.HasPrefix(s, "kyc"):
		return PhaseKYC
	case strings.HasPrefix(s, "sow"):
		return PhaseSourceOfWealth
	case strings.HasPrefix(s, "documents"):
		return PhaseDocuments
	case strings.HasPrefix(s, "name screening"), strings.Contains(s, "sanctions list"):
		return PhaseNameScreening
	case s == strings.ToLower(StatusRiskAssessed):
		return PhaseRiskProfile
	case s == strings.ToLower(StatusComplianceEscalated), s == strings.ToLower(StatusCompliancePassed):
		return PhaseCompliance
	}

	for idx, phase := range Phases {
		if strings.Contains(s, strings.ToLower(phase)) {
			return idx
		}
	}
	return PhaseKYC
}
