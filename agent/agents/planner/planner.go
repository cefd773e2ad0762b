package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	promptx "github.com/tanpawarit/account-opening-agents/agent/prompt"
	toolx "github.com/tanpawarit/account-opening-agents/agent/tool"
	metricsx "github.com/tanpawarit/account-opening-agents/pkg/metrics"
)

var _ contractx.Planner = (*Planner)(nil)

// functionCall matches directives such as "call the `collect_kyc_info` function"
// and "call the collect_kyc_info function". Without backticks the name must
// be snake case and followed by "function".
var functionCall = regexp.MustCompile("(?i)\\bcall(?:ing|s)?\\s+(?:the\\s+)?(?:`([a-z_][a-z0-9_]*)`|([a-z][a-z0-9]*_[a-z0-9_]*)\\s+function\\b)")

const noScenario = "No additional context."

// Planner writes the markdown plan for the next workflow steps with one model call.
type Planner struct {
	runner        compose.Runnable[map[string]any, string]
	registry      *toolx.Registry
	toolsJSON     string
	businessLogic string
	metrics       *metricsx.Metrics
}

type Option func(*Planner)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

func New(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	registry *toolx.Registry,
	prompts promptx.PromptSet,
	opts ...Option,
) (*Planner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: planner chat model is required", contractx.ErrValidation)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: function registry is required", contractx.ErrValidation)
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	toolsJSON, err := registry.SchemasJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: encode function schemas: %v", contractx.ErrValidation, err)
	}
	runner, err := compilePlanGraph(ctx, chatModel, prompts.Planner)
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrCollaborator, err)
	}

	p := &Planner{
		runner:        runner,
		registry:      registry,
		toolsJSON:     toolsJSON,
		businessLogic: prompts.BusinessLogic,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Planner) Plan(ctx context.Context, req contractx.PlanRequest) (contractx.Plan, error) {
	if req.Record == nil {
		return contractx.Plan{}, fmt.Errorf("%w: record is required", contractx.ErrValidation)
	}
	record, err := json.MarshalIndent(req.Record, "", "  ")
	if err != nil {
		return contractx.Plan{}, fmt.Errorf("%w: marshal record: %v", contractx.ErrValidation, err)
	}
	scenario := strings.TrimSpace(req.Scenario)
	if scenario == "" {
		scenario = noScenario
	}

	start := time.Now()
	text, err := p.runner.Invoke(ctx, map[string]any{
		"record":         string(record),
		"tools":          p.toolsJSON,
		"scenario":       scenario,
		"business_logic": p.businessLogic,
	})
	p.metrics.ObservePlan(time.Since(start), err)
	if err != nil {
		return contractx.Plan{}, fmt.Errorf("%w: planner invoke: %v", contractx.ErrCollaborator, err)
	}

	refs, err := p.validate(text)
	if err != nil {
		return contractx.Plan{}, err
	}

	log.Ctx(ctx).Debug().
		Str("client_id", req.Record.ClientID).
		Strs("functions", refs).
		Msg("plan generated")

	return contractx.Plan{Text: text, References: refs}, nil
}

// validate checks that the plan only calls registered functions and that
// the completion function is the last one called.
func (p *Planner) validate(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty plan", contractx.ErrSchemaViolation)
	}

	refs := References(text)
	for _, name := range refs {
		if _, err := p.registry.Resolve(name); err != nil {
			return nil, fmt.Errorf("%w: plan calls %v", contractx.ErrSchemaViolation, err)
		}
	}
	if len(refs) == 0 || !p.registry.IsCompletion(refs[len(refs)-1]) {
		return nil, fmt.Errorf("%w: plan must end by calling %s", contractx.ErrSchemaViolation, p.registry.CompletionName())
	}
	return refs, nil
}

// References lists the function names called in plan, in order of appearance.
func References(plan string) []string {
	matches := functionCall.FindAllStringSubmatch(plan, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		out = append(out, strings.ToLower(name))
	}
	return out
}
