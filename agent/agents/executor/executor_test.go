package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	promptx "github.com/tanpawarit/account-opening-agents/agent/prompt"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	skillsx "github.com/tanpawarit/account-opening-agents/agent/skills"
	toolx "github.com/tanpawarit/account-opening-agents/agent/tool"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	// repeat is returned once responses run out; nil means fail.
	repeat *schema.Message
	err    error
	idx    int
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, append([]*schema.Message(nil), input...))
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		if f.repeat != nil {
			return f.repeat, nil
		}
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, []string) (map[string]any, error) {
	return nil, errors.New("ocr backend down")
}

type fixedScreening prospectx.ScreeningResult

func (f fixedScreening) Screen(context.Context, *prospectx.Record) (prospectx.ScreeningResult, error) {
	return prospectx.ScreeningResult(f), nil
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func assistant(content string, calls ...schema.ToolCall) *schema.Message {
	return schema.AssistantMessage(content, calls)
}

const prospectArgs = `{"prospect_data":{"clientID":"PROSP1234"}}`

var testPlan = contractx.Plan{Text: "A. Call the `collect_kyc_info` function.\nB. Call the `instructions_complete` function."}

func newTestExecutor(t *testing.T, m *fakeToolCallingModel, cfg Config, opts ...skillsx.Option) (*Executor, *prospectx.MemoryStore) {
	t.Helper()

	rec := prospectx.NewRecord("PROSP1234", "John", "Doe", "1980-01-01", "US", "website")
	rec.DocumentsProvided = []string{"passport"}
	store := prospectx.NewMemoryStore(rec)

	base := []skillsx.Option{skillsx.WithScreeningProvider(fixedScreening(prospectx.ScreeningNoMatch))}
	steps, err := skillsx.New(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("skills.New() error = %v", err)
	}
	reg, err := toolx.Catalog(steps)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	e, err := New(m, reg, promptx.LoadPromptSet(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e, store
}

func TestExecuteRunsPlanUntilCompletion(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{responses: []*schema.Message{
		assistant("Collecting KYC data.", toolCall("call_1", toolx.FuncCollectKYC, prospectArgs)),
		assistant("Capturing source of wealth.", toolCall("call_2", toolx.FuncCollectSOW, prospectArgs)),
		assistant("Summary: KYC collected and SOW captured.", toolCall("call_3", toolx.FuncInstructionsComplete, "")),
	}}
	e, store := newTestExecutor(t, m, Config{})

	res, err := e.Execute(context.Background(), testPlan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Completed || res.Turns != 3 {
		t.Fatalf("completed=%v turns=%d", res.Completed, res.Turns)
	}
	if len(m.tools) != 11 {
		t.Fatalf("bound tools = %d", len(m.tools))
	}

	// system, a1, tool1, a2, tool2, a3
	if len(res.Messages) != 6 {
		t.Fatalf("messages = %d", len(res.Messages))
	}
	if res.Messages[0].Role != schema.System || res.Messages[2].Role != schema.Tool || res.Messages[2].ToolCallID != "call_1" {
		t.Fatalf("unexpected message layout: %+v", res.Messages)
	}
	if len(res.Dispatches) != 2 || res.Dispatches[0].Failed() || res.Dispatches[1].Function != toolx.FuncCollectSOW {
		t.Fatalf("dispatches = %+v", res.Dispatches)
	}
	if got := res.Narrative(); len(got) != 3 || got[2] != "Summary: KYC collected and SOW captured." {
		t.Fatalf("Narrative() = %v", got)
	}

	stored, err := store.GetByID(context.Background(), "PROSP1234")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != prospectx.StatusSOWCaptured || len(stored.Onboarding) != 2 {
		t.Fatalf("stored status=%q onboarding=%d", stored.Status, len(stored.Onboarding))
	}
}

func TestExecuteCompletionShortCircuitsTurn(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{responses: []*schema.Message{
		assistant("",
			toolCall("call_1", toolx.FuncCollectKYC, prospectArgs),
			toolCall("call_2", toolx.FuncInstructionsComplete, ""),
			toolCall("call_3", toolx.FuncCollectSOW, prospectArgs),
		),
	}}
	e, store := newTestExecutor(t, m, Config{})

	res, err := e.Execute(context.Background(), testPlan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Completed || len(res.Dispatches) != 1 || res.Dispatches[0].Function != toolx.FuncCollectKYC {
		t.Fatalf("result = %+v", res)
	}
	stored, _ := store.GetByID(context.Background(), "PROSP1234")
	if stored.Status != prospectx.StatusKYCCollected {
		t.Fatalf("call after completion was executed: status=%q", stored.Status)
	}
}

func TestExecuteRetriesTurnsWithoutToolCalls(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{responses: []*schema.Message{
		assistant("Thinking about the plan."),
		assistant("Still thinking."),
		assistant("", toolCall("call_1", toolx.FuncInstructionsComplete, "")),
	}}
	e, _ := newTestExecutor(t, m, Config{})

	res, err := e.Execute(context.Background(), testPlan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Turns != 3 || len(res.Dispatches) != 0 {
		t.Fatalf("turns=%d dispatches=%d", res.Turns, len(res.Dispatches))
	}
}

func TestExecuteFailingExtractionAddsNoToolMessage(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{responses: []*schema.Message{
		assistant("Extracting documents.", toolCall("call_1", toolx.FuncExtractDocuments, prospectArgs)),
		assistant("", toolCall("call_2", toolx.FuncInstructionsComplete, "")),
	}}
	e, store := newTestExecutor(t, m, Config{}, skillsx.WithDocumentExtractor(failingExtractor{}))

	res, err := e.Execute(context.Background(), testPlan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Turns != 2 {
		t.Fatalf("turns = %d, want another model turn after the failure", res.Turns)
	}
	for _, msg := range res.Messages {
		if msg.Role == schema.Tool {
			t.Fatalf("unexpected tool message: %+v", msg)
		}
	}
	// The second request carries system + first assistant message only.
	if len(m.inputs) != 2 || len(m.inputs[1]) != 2 {
		t.Fatalf("second turn input = %d messages", len(m.inputs[1]))
	}
	if len(res.Dispatches) != 1 || !res.Dispatches[0].Failed() {
		t.Fatalf("dispatches = %+v", res.Dispatches)
	}
	if !strings.Contains(res.Dispatches[0].Error, contractx.ErrStepExecution.Error()) {
		t.Fatalf("dispatch error = %q", res.Dispatches[0].Error)
	}

	stored, _ := store.GetByID(context.Background(), "PROSP1234")
	if len(stored.Onboarding) != 0 || stored.Status != prospectx.StatusNew {
		t.Fatalf("failed step mutated the record: %+v", stored)
	}
}

func TestExecuteReportsToolErrorsWhenEnabled(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{responses: []*schema.Message{
		assistant("", toolCall("call_1", "open_account", `{}`)),
		assistant("", toolCall("call_2", toolx.FuncInstructionsComplete, "")),
	}}
	e, _ := newTestExecutor(t, m, Config{ReportToolErrors: true})

	res, err := e.Execute(context.Background(), testPlan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var tool *schema.Message
	for _, msg := range res.Messages {
		if msg.Role == schema.Tool {
			tool = msg
		}
	}
	if tool == nil || tool.ToolCallID != "call_1" {
		t.Fatalf("expected error tool message, got %+v", res.Messages)
	}
	if !containsAll(tool.Content, `"error"`, contractx.ErrUnknownFunction.Error()) {
		t.Fatalf("tool content = %q", tool.Content)
	}
}

func TestExecuteBoundedByMaxTurns(t *testing.T) {
	t.Parallel()

	// The stub never calls the completion function.
	m := &fakeToolCallingModel{repeat: assistant("I will keep going.")}
	e, _ := newTestExecutor(t, m, Config{MaxTurns: 5})

	res, err := e.Execute(context.Background(), testPlan)
	if !errors.Is(err, contractx.ErrTurnLimit) {
		t.Fatalf("Execute() error = %v, want ErrTurnLimit", err)
	}
	if res.Completed || res.Turns != 5 || len(m.inputs) != 5 {
		t.Fatalf("completed=%v turns=%d calls=%d", res.Completed, res.Turns, len(m.inputs))
	}
}

func TestExecuteModelFailure(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{err: errors.New("upstream down")}
	e, _ := newTestExecutor(t, m, Config{})

	_, err := e.Execute(context.Background(), testPlan)
	if !errors.Is(err, contractx.ErrCollaborator) {
		t.Fatalf("Execute() error = %v, want ErrCollaborator", err)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{repeat: assistant("loop")}
	e, _ := newTestExecutor(t, m, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Execute(ctx, testPlan)
	if !errors.Is(err, contractx.ErrCollaborator) {
		t.Fatalf("Execute() error = %v, want ErrCollaborator", err)
	}
	if len(m.inputs) != 0 {
		t.Fatalf("model called %d times after cancel", len(m.inputs))
	}
}

func TestExecuteSeedsPlanIntoSystemPrompt(t *testing.T) {
	t.Parallel()

	m := &fakeToolCallingModel{responses: []*schema.Message{
		assistant("", toolCall("call_1", toolx.FuncInstructionsComplete, "")),
	}}
	e, _ := newTestExecutor(t, m, Config{})

	if _, err := e.Execute(context.Background(), testPlan); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	sys := m.inputs[0][0]
	if sys.Role != schema.System || !containsAll(sys.Content, "PLAN TO EXECUTE:", "collect_kyc_info") {
		t.Fatalf("system prompt = %q", sys.Content)
	}
}

func TestExecuteRequiresPlan(t *testing.T) {
	t.Parallel()

	e, _ := newTestExecutor(t, &fakeToolCallingModel{}, Config{})
	if _, err := e.Execute(context.Background(), contractx.Plan{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Execute() error = %v, want ErrValidation", err)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
