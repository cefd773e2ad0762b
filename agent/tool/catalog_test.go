package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	skillsx "github.com/tanpawarit/account-opening-agents/agent/skills"
)

type fixedScreening prospectx.ScreeningResult

func (f fixedScreening) Screen(context.Context, *prospectx.Record) (prospectx.ScreeningResult, error) {
	return prospectx.ScreeningResult(f), nil
}

type fixedScorer int

func (f fixedScorer) Score(context.Context, prospectx.ScreeningResult, string) (int, error) {
	return int(f), nil
}

func newTestCatalog(t *testing.T, seed ...*prospectx.Record) (*Registry, *prospectx.MemoryStore) {
	t.Helper()

	store := prospectx.NewMemoryStore(seed...)
	steps, err := skillsx.New(store,
		skillsx.WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }),
		skillsx.WithScreeningProvider(fixedScreening(prospectx.ScreeningNoMatch)),
		skillsx.WithRiskScorer(fixedScorer(2)),
	)
	if err != nil {
		t.Fatalf("skills.New() error = %v", err)
	}
	reg, err := Catalog(steps)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	return reg, store
}

func TestCatalogRegistersAllFunctions(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	want := []string{
		FuncCreateProspect,
		FuncFetchProspectDetails,
		FuncFetchProspectByID,
		FuncCollectKYC,
		FuncCollectSOW,
		FuncExtractDocuments,
		FuncNameScreening,
		FuncCreateClientProfile,
		FuncComplianceAssessment,
		FuncAssignFirstLine,
		FuncInstructionsComplete,
	}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if reg.CompletionName() != FuncInstructionsComplete || !reg.IsCompletion(FuncInstructionsComplete) {
		t.Fatalf("completion = %q", reg.CompletionName())
	}
	if len(reg.ToolInfos()) != len(want) {
		t.Fatalf("ToolInfos() len = %d", len(reg.ToolInfos()))
	}
}

func TestSchemasShape(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	for _, s := range reg.Schemas() {
		if s.Name == FuncInstructionsComplete {
			if s.Parameters != nil {
				t.Fatalf("completion schema has parameters: %#v", s.Parameters)
			}
			continue
		}
		if s.Parameters["type"] != "object" {
			t.Fatalf("%s parameters type = %v", s.Name, s.Parameters["type"])
		}
		if _, ok := s.Parameters["properties"].(map[string]any); !ok {
			t.Fatalf("%s has no properties", s.Name)
		}
		if _, ok := s.Parameters["required"].([]string); !ok {
			t.Fatalf("%s has no required list", s.Name)
		}
	}

	raw, err := reg.SchemasJSON()
	if err != nil {
		t.Fatalf("SchemasJSON() error = %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("schemas are not valid json: %v", err)
	}
	for _, entry := range decoded {
		if entry["name"] != FuncInstructionsComplete {
			continue
		}
		if _, ok := entry["parameters"]; ok {
			t.Fatal("completion schema must omit parameters")
		}
	}
}

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, json.RawMessage) (any, error) { return nil, nil }

	if _, err := NewRegistry(Function{Name: "a", Handler: noop}); err == nil {
		t.Fatal("expected error without completion function")
	}
	if _, err := NewRegistry(
		Function{Name: "a", Handler: noop},
		Function{Name: "a", Handler: noop},
		Function{Name: "done", Handler: noop, Completion: true},
	); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if _, err := NewRegistry(
		Function{Name: "done", Handler: noop, Completion: true},
		Function{Name: "end", Handler: noop, Completion: true},
	); err == nil {
		t.Fatal("expected error for two completion functions")
	}
}

func TestDispatchUnknownFunction(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	_, err := reg.Dispatch(context.Background(), "open_account", `{}`)
	if !errors.Is(err, contractx.ErrUnknownFunction) {
		t.Fatalf("Dispatch() error = %v, want ErrUnknownFunction", err)
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	tests := []string{
		`{"prospect_data":`,
		`{"prospect_data":"PROSP1"}`,
		`{}`,
	}
	for _, args := range tests {
		_, err := reg.Dispatch(context.Background(), FuncCollectKYC, args)
		if !errors.Is(err, contractx.ErrArgumentParse) {
			t.Fatalf("Dispatch(%s) error = %v, want ErrArgumentParse", args, err)
		}
	}
}

func TestDispatchMergesStoredRecord(t *testing.T) {
	t.Parallel()

	seed := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "website")
	seed.DocumentsProvided = []string{"passport"}
	reg, store := newTestCatalog(t, seed)

	// The payload only carries the id; the rest comes from the store.
	out, err := reg.Dispatch(context.Background(), FuncCollectKYC, `{"prospect_data":{"clientID":"PROSP1234"}}`)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	var result skillsx.StatusResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != prospectx.StatusKYCCollected {
		t.Fatalf("status = %q", result.Status)
	}

	stored, err := store.GetByID(context.Background(), "PROSP1234")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.FirstName != "John" || len(stored.Onboarding) != 1 || len(stored.DocumentsProvided) != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestDispatchCreateClientProfileUsesArgument(t *testing.T) {
	t.Parallel()

	seed := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "")
	reg, store := newTestCatalog(t, seed)

	out, err := reg.Dispatch(context.Background(), FuncCreateClientProfile,
		`{"prospect_data":{"clientID":"PROSP1234","nationality":"US","risk_level":"","risk_score":0},"name_screening_result":"Potential match"}`)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	var result skillsx.RiskResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RiskScore != 2 || result.RiskLevel != prospectx.RiskLow {
		t.Fatalf("result = %+v", result)
	}
	stored, _ := store.GetByID(context.Background(), "PROSP1234")
	if stored.RiskLevel != prospectx.RiskLow || stored.Status != prospectx.StatusRiskAssessed {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestDispatchKeepsStepOwnedFieldsFromStore(t *testing.T) {
	t.Parallel()

	seed := prospectx.NewRecord("PROSP1234", "Ivan", "Petrov", "1975-03-03", "RU", "")
	seed.RiskLevel = prospectx.RiskHigh
	seed.RiskScore = 15
	seed.NameScreeningResult = prospectx.ScreeningSanctionsMatch
	seed.Status = prospectx.StatusRiskAssessed
	reg, store := newTestCatalog(t, seed)

	out, err := reg.Dispatch(context.Background(), FuncComplianceAssessment,
		`{"prospect_data":{"clientID":"PROSP1234","risk_level":"Low","risk_score":1,"name_screening_result":"No match","status":"First KYC checks passed.","nationality":"US"}}`)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	var result skillsx.ComplianceResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OverallStatus != prospectx.StatusComplianceEscalated {
		t.Fatalf("overall status = %q, want escalation", result.OverallStatus)
	}

	stored, err := store.GetByID(context.Background(), "PROSP1234")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.RiskLevel != prospectx.RiskHigh || stored.RiskScore != 15 {
		t.Fatalf("risk = %s/%d, want High/15", stored.RiskLevel, stored.RiskScore)
	}
	if stored.NameScreeningResult != prospectx.ScreeningSanctionsMatch {
		t.Fatalf("screening = %q", stored.NameScreeningResult)
	}
	// Identity fields still overlay.
	if stored.Nationality != "US" {
		t.Fatalf("nationality = %q, want payload value", stored.Nationality)
	}
}

func TestDispatchFallsBackToPayloadWhenLoadFails(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	out, err := reg.Dispatch(context.Background(), FuncCollectKYC,
		`{"prospect_data":{"clientID":"PROSP9999","firstName":"Ann","lastName":"Lee","dateOfBirth":"1970-07-07","nationality":"SG"}}`)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(out, prospectx.StatusKYCCollected) {
		t.Fatalf("out = %s", out)
	}
}

func TestDispatchCreateAndFetch(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	out, err := reg.Dispatch(context.Background(), FuncCreateProspect,
		`{"first_name":"Maria","last_name":"Rossi","dob":"1985-05-05","nationality":"IT","referral_source":"branch"}`)
	if err != nil {
		t.Fatalf("create Dispatch() error = %v", err)
	}
	var created prospectx.Record
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if !strings.HasPrefix(created.ClientID, "PROSP") || created.Status != prospectx.StatusNew {
		t.Fatalf("created = %+v", created)
	}

	byName, err := reg.Dispatch(context.Background(), FuncFetchProspectDetails, `{"full_name":"maria rossi"}`)
	if err != nil {
		t.Fatalf("fetch Dispatch() error = %v", err)
	}
	if !strings.Contains(byName, created.ClientID) {
		t.Fatalf("fetch by name = %s", byName)
	}

	_, err = reg.Dispatch(context.Background(), FuncFetchProspectByID, `{"clientID":"PROSP0000"}`)
	if !errors.Is(err, contractx.ErrRecordNotFound) {
		t.Fatalf("fetch by id error = %v, want ErrRecordNotFound", err)
	}
}

func TestDispatchCompletion(t *testing.T) {
	t.Parallel()

	reg, _ := newTestCatalog(t)
	out, err := reg.Dispatch(context.Background(), FuncInstructionsComplete, "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != "{}" {
		t.Fatalf("out = %q, want {}", out)
	}
}
