package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	nodex "github.com/tanpawarit/account-opening-agents/agent/nodes"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	metricsx "github.com/tanpawarit/account-opening-agents/pkg/metrics"
)

var _ contractx.WorkflowRunner = (*Orchestrator)(nil)

// Orchestrator runs plan -> execute -> reload for one prospect per call.
// It owns no state besides the compiled graph.
type Orchestrator struct {
	store    prospectx.Store
	planner  contractx.Planner
	executor contractx.Executor
	metrics  *metricsx.Metrics

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now   func() time.Time
	newID func() string
}

type Option func(*Orchestrator)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

func New(
	store prospectx.Store,
	planner contractx.Planner,
	executor contractx.Executor,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: record store is required", contractx.ErrValidation)
	}
	if planner == nil {
		return nil, fmt.Errorf("%w: planner is required", contractx.ErrValidation)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: executor is required", contractx.ErrValidation)
	}

	o := &Orchestrator{
		store:    store,
		planner:  planner,
		executor: executor,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	graphRunner, err := o.compileRunGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Run executes one workflow pass. Panics inside the graph are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, req contractx.RunRequest) (out contractx.RunResult, err error) {
	runID := o.newID()
	logger := log.Ctx(ctx).With().
		Str("run_id", runID).
		Str("client_id", req.ClientID).
		Logger()
	ctx = logger.WithContext(ctx)

	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: workflow panic: %v", contractx.ErrStepExecution, r)
			logger.Error().Interface("panic", r).Msg("workflow run panicked")
		}
		o.metrics.ObserveRun(o.now().Sub(start), err)
	}()

	logger.Info().Msg("workflow run started")
	out, err = o.graphRunner.Invoke(ctx, nodex.GraphInput{RunID: runID, Request: req})
	if err != nil {
		logger.Error().Err(err).Msg("workflow run failed")
		return contractx.RunResult{RunID: runID}, err
	}

	logger.Info().
		Str("status", out.Record.Status).
		Int("turns", out.Turns).
		Bool("completed", out.Completed).
		Msg("workflow run finished")
	return out, nil
}
