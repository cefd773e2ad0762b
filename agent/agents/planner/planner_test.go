package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	promptx "github.com/tanpawarit/account-opening-agents/agent/prompt"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	skillsx "github.com/tanpawarit/account-opening-agents/agent/skills"
	toolx "github.com/tanpawarit/account-opening-agents/agent/tool"
)

type fakeChatModel struct {
	mu    sync.Mutex
	reply string
	err   error
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChatModel) lastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

const validPlan = "A. KYC information\n" +
	"    A.1 Call the `collect_kyc_info` function with prospect_data {\"clientID\": \"PROSP1234\"}.\n" +
	"B. Source of wealth\n" +
	"    B.1 Call the `collect_sow_info` function with the same prospect_data.\n" +
	"C. Summary\n" +
	"    C.1 Summarize the actions taken.\n" +
	"D. Completion\n" +
	"    D.1 Call the `instructions_complete` function.\n"

func newTestPlanner(t *testing.T, m *fakeChatModel) *Planner {
	t.Helper()

	steps, err := skillsx.New(prospectx.NewMemoryStore())
	if err != nil {
		t.Fatalf("skills.New() error = %v", err)
	}
	reg, err := toolx.Catalog(steps)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	p, err := New(context.Background(), m, reg, promptx.LoadPromptSet())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestPlanRendersPromptAndValidates(t *testing.T) {
	t.Parallel()

	m := &fakeChatModel{reply: "\n" + validPlan + "\n"}
	p := newTestPlanner(t, m)

	rec := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "website")
	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Record: rec})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Text != strings.TrimSpace(validPlan) {
		t.Fatalf("plan text = %q", plan.Text)
	}
	want := []string{toolx.FuncCollectKYC, toolx.FuncCollectSOW, toolx.FuncInstructionsComplete}
	if strings.Join(plan.References, ",") != strings.Join(want, ",") {
		t.Fatalf("references = %v, want %v", plan.References, want)
	}

	input := m.lastInput()
	if len(input) != 1 || input[0].Role != schema.User {
		t.Fatalf("prompt messages = %+v", input)
	}
	prompt := input[0].Content
	for _, want := range []string{
		`"clientID": "PROSP1234"`,
		`"name": "perform_name_screening"`,
		"A. KYC information",
		noScenario,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "{record}") || strings.Contains(prompt, "{tools}") {
		t.Fatal("prompt variables not substituted")
	}
}

func TestPlanRejectsInvalidPlans(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty":            "   ",
		"unknown function": "A. Call the `open_account` function.\nB. Call the `instructions_complete` function.",
		"no completion":    "A. Call the `collect_kyc_info` function.",
		"call after completion": "A. Call the `instructions_complete` function.\n" +
			"B. Call the `collect_kyc_info` function.",
	}
	for name, reply := range tests {
		reply := reply
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := newTestPlanner(t, &fakeChatModel{reply: reply})
			rec := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "")
			_, err := p.Plan(context.Background(), contractx.PlanRequest{Record: rec})
			if !errors.Is(err, contractx.ErrSchemaViolation) {
				t.Fatalf("Plan() error = %v, want ErrSchemaViolation", err)
			}
		})
	}
}

func TestPlanModelFailure(t *testing.T) {
	t.Parallel()

	p := newTestPlanner(t, &fakeChatModel{err: errors.New("upstream down")})
	rec := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "")
	_, err := p.Plan(context.Background(), contractx.PlanRequest{Record: rec})
	if !errors.Is(err, contractx.ErrCollaborator) {
		t.Fatalf("Plan() error = %v, want ErrCollaborator", err)
	}
}

func TestPlanRequiresRecord(t *testing.T) {
	t.Parallel()

	p := newTestPlanner(t, &fakeChatModel{reply: validPlan})
	if _, err := p.Plan(context.Background(), contractx.PlanRequest{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Plan() error = %v, want ErrValidation", err)
	}
}

func TestReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"Call `a_b` function, then calling the `c` function; calls `e`", "a_b,c,e"},
		{"I.1 Call the instructions_complete function.", "instructions_complete"},
		{"    - `call the instructions_complete function`", "instructions_complete"},
		{"A.1 Call the Collect_KYC_Info function.", "collect_kyc_info"},
		{"Do not call any business function. Then call this function again.", ""},
	}
	for _, tt := range tests {
		if got := strings.Join(References(tt.text), ","); got != tt.want {
			t.Fatalf("References(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestPlanAcceptsUnquotedDirectives(t *testing.T) {
	t.Parallel()

	reply := "A. KYC information\n" +
		"    A.1 If the status is \"new\", then call the collect_kyc_info function with prospect_data {\"clientID\": \"PROSP1234\"}.\n" +
		"B. Summary\n" +
		"    B.1 Summarize the actions taken.\n" +
		"C. Completion\n" +
		"    C.1 `call the instructions_complete function`\n"
	p := newTestPlanner(t, &fakeChatModel{reply: reply})

	rec := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "")
	plan, err := p.Plan(context.Background(), contractx.PlanRequest{Record: rec})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := []string{toolx.FuncCollectKYC, toolx.FuncInstructionsComplete}
	if strings.Join(plan.References, ",") != strings.Join(want, ",") {
		t.Fatalf("references = %v, want %v", plan.References, want)
	}
}

// The ruleset is copied into plans nearly verbatim, so its own directives
// must validate.
func TestRulesetDirectivesValidate(t *testing.T) {
	t.Parallel()

	prompts := promptx.LoadPromptSet()
	p := newTestPlanner(t, &fakeChatModel{})
	refs, err := p.validate(prompts.BusinessLogic)
	if err != nil {
		t.Fatalf("validate(ruleset) error = %v", err)
	}
	if len(refs) != 8 || refs[len(refs)-1] != toolx.FuncInstructionsComplete {
		t.Fatalf("ruleset references = %v", refs)
	}
}
