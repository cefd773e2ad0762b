package executor

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	promptx "github.com/tanpawarit/account-opening-agents/agent/prompt"
	toolx "github.com/tanpawarit/account-opening-agents/agent/tool"
	metricsx "github.com/tanpawarit/account-opening-agents/pkg/metrics"
)

var _ contractx.Executor = (*Executor)(nil)

// Config holds the loop knobs. MaxTurns <= 0 means unbounded.
type Config struct {
	MaxTurns         int  `envconfig:"MAX_TURNS" split_words:"true" default:"40"`
	ReportToolErrors bool `envconfig:"REPORT_TOOL_ERRORS" split_words:"true" default:"false"`
}

// Executor runs a plan by letting the model call registry functions one at a time.
type Executor struct {
	model    einomodel.ToolCallingChatModel
	registry *toolx.Registry
	prompts  promptx.PromptSet
	cfg      Config
	metrics  *metricsx.Metrics
}

type Option func(*Executor)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(
	chatModel einomodel.ToolCallingChatModel,
	registry *toolx.Registry,
	prompts promptx.PromptSet,
	cfg Config,
	opts ...Option,
) (*Executor, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: executor chat model is required", contractx.ErrValidation)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: function registry is required", contractx.ErrValidation)
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	toolModel, err := chatModel.WithTools(registry.ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrCollaborator, err)
	}

	e := &Executor{
		model:    toolModel,
		registry: registry,
		prompts:  prompts,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute loops model turn -> sequential dispatch until the model calls the
// completion function. Turns without tool calls are requested again. A
// failed dispatch adds no tool message unless ReportToolErrors is set.
func (e *Executor) Execute(ctx context.Context, plan contractx.Plan) (contractx.ExecutionResult, error) {
	if strings.TrimSpace(plan.Text) == "" {
		return contractx.ExecutionResult{}, fmt.Errorf("%w: plan text is required", contractx.ErrValidation)
	}

	res := contractx.ExecutionResult{
		Messages: []*schema.Message{schema.SystemMessage(e.prompts.ExecutorPrompt(plan.Text))},
	}
	defer func() { e.metrics.ObserveTurns(res.Turns) }()

	logger := log.Ctx(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w: executor stopped after %d turns: %v", contractx.ErrCollaborator, res.Turns, err)
		}
		if e.cfg.MaxTurns > 0 && res.Turns >= e.cfg.MaxTurns {
			return res, fmt.Errorf("%w: %d turns without %s", contractx.ErrTurnLimit, res.Turns, e.registry.CompletionName())
		}

		res.Turns++
		reply, err := e.model.Generate(ctx, res.Messages)
		if err != nil {
			return res, fmt.Errorf("%w: executor turn %d: %v", contractx.ErrCollaborator, res.Turns, err)
		}
		if reply == nil {
			logger.Warn().Int("turn", res.Turns).Msg("executor model returned no message")
			continue
		}
		if reply.ResponseMeta != nil && reply.ResponseMeta.Usage != nil {
			e.metrics.AddTokens(reply.ResponseMeta.Usage.PromptTokens, reply.ResponseMeta.Usage.CompletionTokens)
		}
		res.Messages = append(res.Messages, reply)

		if len(reply.ToolCalls) == 0 {
			logger.Debug().Int("turn", res.Turns).Msg("no tool calls, requesting another turn")
			continue
		}

		for _, call := range reply.ToolCalls {
			name := strings.TrimSpace(call.Function.Name)
			if e.registry.IsCompletion(name) {
				res.Completed = true
				logger.Info().Int("turns", res.Turns).Int("dispatches", len(res.Dispatches)).Msg("plan execution complete")
				return res, nil
			}
			e.dispatch(ctx, &res, call)
		}
	}
}

func (e *Executor) dispatch(ctx context.Context, res *contractx.ExecutionResult, call schema.ToolCall) {
	name := strings.TrimSpace(call.Function.Name)
	d := contractx.Dispatch{
		Turn:       res.Turns,
		ToolCallID: call.ID,
		Function:   name,
		Arguments:  call.Function.Arguments,
	}

	out, err := e.registry.Dispatch(ctx, name, call.Function.Arguments)
	e.metrics.ObserveToolCall(name, err)
	if err != nil {
		d.Error = err.Error()
		res.Dispatches = append(res.Dispatches, d)
		log.Ctx(ctx).Error().
			Err(err).
			Str("function", name).
			Str("tool_call_id", call.ID).
			Msg("function dispatch failed")
		if e.cfg.ReportToolErrors {
			res.Messages = append(res.Messages, schema.ToolMessage(contractx.ToolError(err), call.ID))
		}
		return
	}

	d.Output = out
	res.Dispatches = append(res.Dispatches, d)
	res.Messages = append(res.Messages, schema.ToolMessage(out, call.ID))
	log.Ctx(ctx).Debug().Str("function", name).Str("tool_call_id", call.ID).Msg("function executed")
}
