package prospect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is the persisted account-opening profile for one prospective client.
// - Identity: ClientID (immutable, storage key) mirrored into ID
// - Workflow: Status + risk/screening/compliance attributes
// - Audit: Onboarding (append-only)
type Record struct {
	ID       string `json:"id"`
	ClientID string `json:"clientID"`

	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	FullName       string         `json:"fullName"`
	DateOfBirth    string         `json:"dateOfBirth"`
	Nationality    string         `json:"nationality"`
	ReferralSource string         `json:"referral_source"`
	ContactDetails ContactDetails `json:"contactDetails"`

	Status                 string            `json:"status"`
	Onboarding             []OnboardingEntry `json:"onboarding"`
	KYCReviews             []map[string]any  `json:"kyc_reviews"`
	PEPStatus              bool              `json:"pep_status"`
	RiskLevel              RiskLevel         `json:"risk_level"`
	RiskScore              int               `json:"risk_score"`
	DocumentsProvided      []string          `json:"documents_provided"`
	NameScreeningResult    ScreeningResult   `json:"name_screening_result"`
	ComplianceFlags        []string          `json:"compliance_flags"`
	DeclaredSourceOfWealth SourceOfWealth    `json:"declared_source_of_wealth"`

	InvestmentProfile InvestmentProfile `json:"investmentProfile"`
}

type ContactDetails struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type InvestmentProfile struct {
	RiskProfile          string `json:"riskProfile"`
	InvestmentObjectives string `json:"investmentObjectives"`
	InvestmentHorizon    string `json:"investmentHorizon"`
}

type OnboardingEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Action    string    `json:"action"`
}

type RiskLevel string

const (
	RiskUnset  RiskLevel = ""
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskLevelFor maps a score onto its band: Low <= 3 < Medium <= 7 < High.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score <= 3:
		return RiskLow
	case score <= 7:
		return RiskMedium
	default:
		return RiskHigh
	}
}

type ScreeningResult string

const (
	ScreeningNone           ScreeningResult = "None"
	ScreeningNoMatch        ScreeningResult = "No match"
	ScreeningPotentialMatch ScreeningResult = "Potential match"
	ScreeningSanctionsMatch ScreeningResult = "Sanctions list match"
)

func (s ScreeningResult) Valid() bool {
	switch s {
	case ScreeningNone, ScreeningNoMatch, ScreeningPotentialMatch, ScreeningSanctionsMatch:
		return true
	default:
		return false
	}
}

// SourceOfWealth accepts either a single string or a list of strings on decode.
// A single source is encoded back as a plain string.
type SourceOfWealth []string

func (s SourceOfWealth) MarshalJSON() ([]byte, error) {
	switch len(s) {
	case 0:
		return []byte(`""`), nil
	case 1:
		return json.Marshal(s[0])
	default:
		return json.Marshal([]string(s))
	}
}

func (s *SourceOfWealth) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if strings.TrimSpace(single) == "" {
			*s = nil
			return nil
		}
		*s = SourceOfWealth{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("declared_source_of_wealth must be a string or list of strings: %w", err)
	}
	*s = SourceOfWealth(list)
	return nil
}

func (s SourceOfWealth) String() string {
	return strings.Join(s, ", ")
}

/* ----------------------------- Record helpers ---------------------------- */

var (
	ErrNilRecord      = errors.New("record is nil")
	ErrEmptyClientID  = errors.New("client id is empty")
	ErrClientIDChange = errors.New("client id is immutable")
)

// NewRecord returns an intake record with every workflow attribute at its zero value.
func NewRecord(clientID, firstName, lastName, dob, nationality, referralSource string) *Record {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	return &Record{
		ID:                  clientID,
		ClientID:            clientID,
		FirstName:           firstName,
		LastName:            lastName,
		FullName:            strings.TrimSpace(firstName + " " + lastName),
		DateOfBirth:         strings.TrimSpace(dob),
		Nationality:         strings.ToUpper(strings.TrimSpace(nationality)),
		ReferralSource:      strings.TrimSpace(referralSource),
		Status:              StatusNew,
		Onboarding:          []OnboardingEntry{},
		KYCReviews:          []map[string]any{},
		DocumentsProvided:   []string{},
		NameScreeningResult: ScreeningNone,
		ComplianceFlags:     []string{},
	}
}

// Validate checks the presence of fields every persisted record needs.
func (r *Record) Validate() error {
	if r == nil {
		return ErrNilRecord
	}
	if strings.TrimSpace(r.ClientID) == "" {
		return ErrEmptyClientID
	}
	return nil
}

// AppendOnboarding adds one audit entry; entries are never rewritten.
func (r *Record) AppendOnboarding(now time.Time, step, action string) OnboardingEntry {
	entry := OnboardingEntry{
		Timestamp: now.UTC(),
		Step:      step,
		Action:    action,
	}
	r.Onboarding = append(r.Onboarding, entry)
	return entry
}

// SetStatus overwrites the status wholesale. History lives in Onboarding.
func (r *Record) SetStatus(status string) {
	r.Status = status
}

// MissingKYCFields reports which mandatory identity fields are blank, in canonical order.
func (r *Record) MissingKYCFields() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"dateOfBirth", r.DateOfBirth},
		{"nationality", r.Nationality},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Clone returns a deep copy so that callers never share mutable slices.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Onboarding = cloneSlice(r.Onboarding)
	out.DocumentsProvided = cloneSlice(r.DocumentsProvided)
	out.ComplianceFlags = cloneSlice(r.ComplianceFlags)
	if r.DeclaredSourceOfWealth != nil {
		out.DeclaredSourceOfWealth = SourceOfWealth(cloneSlice([]string(r.DeclaredSourceOfWealth)))
	}
	if r.KYCReviews != nil {
		out.KYCReviews = make([]map[string]any, len(r.KYCReviews))
		for i, review := range r.KYCReviews {
			out.KYCReviews[i] = cloneMap(review)
		}
	}
	return &out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the map and slice shapes produced by encoding/json.
func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return v
	}
}

// stepOwnedFields are written only by workflow steps.
var stepOwnedFields = []string{
	"status",
	"onboarding",
	"risk_level",
	"risk_score",
	"name_screening_result",
	"compliance_flags",
}

// WithoutStepOwned returns a copy of patch without the fields that only
// workflow steps may write.
func WithoutStepOwned(patch map[string]any) map[string]any {
	out := make(map[string]any, len(patch))
	for k, v := range patch {
		out[k] = v
	}
	for _, k := range stepOwnedFields {
		delete(out, k)
	}
	return out
}

// Merge overlays a field patch (keyed by JSON name) onto a copy of base.
// Keys absent from patch keep their stored value. The client id cannot change
// and the audit trail is always taken from base; it only grows via AppendOnboarding.
func Merge(base *Record, patch map[string]any) (*Record, error) {
	if base == nil {
		return nil, ErrNilRecord
	}
	if len(patch) == 0 {
		return base.Clone(), nil
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal base record: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal base record: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := FromMap(fields)
	if err != nil {
		return nil, err
	}
	if merged.ClientID != base.ClientID {
		return nil, fmt.Errorf("%w: %s -> %s", ErrClientIDChange, base.ClientID, merged.ClientID)
	}
	merged.ID = base.ClientID
	merged.Onboarding = cloneSlice(base.Onboarding)
	merged.FullName = deriveFullName(merged, patch)
	return merged, nil
}

// FromMap decodes a loosely-typed field map into a Record.
func FromMap(fields map[string]any) (*Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record fields: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	if rec.ID == "" {
		rec.ID = rec.ClientID
	}
	return &rec, nil
}

func deriveFullName(rec *Record, patch map[string]any) string {
	if _, explicit := patch["fullName"]; explicit {
		return rec.FullName
	}
	_, first := patch["firstName"]
	_, last := patch["lastName"]
	if first || last {
		return strings.TrimSpace(rec.FirstName + " " + rec.LastName)
	}
	return rec.FullName
}
