package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/account-opening-agents/agent/agents/executor"
	"github.com/tanpawarit/account-opening-agents/agent/agents/orchestrator"
	"github.com/tanpawarit/account-opening-agents/agent/agents/planner"
	"github.com/tanpawarit/account-opening-agents/agent/llm"
	promptx "github.com/tanpawarit/account-opening-agents/agent/prompt"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	skillsx "github.com/tanpawarit/account-opening-agents/agent/skills"
	toolx "github.com/tanpawarit/account-opening-agents/agent/tool"
	"github.com/tanpawarit/account-opening-agents/api"
	configx "github.com/tanpawarit/account-opening-agents/pkg/config"
	_ "github.com/tanpawarit/account-opening-agents/pkg/logger/autoload"
	metricsx "github.com/tanpawarit/account-opening-agents/pkg/metrics"
	openrouterx "github.com/tanpawarit/account-opening-agents/pkg/openrouter"
	qstashx "github.com/tanpawarit/account-opening-agents/pkg/qstash"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeUpstash  = "upstash"
)

type AppConfig struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	Debug           bool          `envconfig:"DEBUG" default:"false"`
	StoreDriver     string        `envconfig:"STORE_DRIVER" default:"memory"`
	StoreKeyPrefix  string        `envconfig:"STORE_KEY_PREFIX" default:"prospect:"`
	ProspectPrefix  string        `envconfig:"PROSPECT_PREFIX" default:"PRO"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llm.Config]("LLM")
	execCfg := configx.MustNew[executor.Config]("EXECUTOR")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, *appCfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", appCfg.StoreDriver).Msg("open prospect store")
	}
	if closer != nil {
		defer closer.Close()
	}

	steps, err := skillsx.New(store)
	if err != nil {
		log.Fatal().Err(err).Msg("build workflow steps")
	}
	registry, err := toolx.Catalog(steps)
	if err != nil {
		log.Fatal().Err(err).Msg("build function registry")
	}
	prompts := promptx.LoadPromptSet()
	if err := prompts.Validate(); err != nil {
		log.Fatal().Err(err).Msg("load prompts")
	}
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	metrics := metricsx.New()

	plannerModel, err := llmCfg.OpenRouterFor(llm.RolePlanner).ChatModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create planner model")
	}
	executorModel, err := openrouterx.NewToolModel(llmCfg.OpenRouterFor(llm.RoleExecutor))
	if err != nil {
		log.Fatal().Err(err).Msg("create executor model")
	}

	plan, err := planner.New(ctx, plannerModel, registry, prompts, planner.WithMetrics(metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("build planner")
	}
	exec, err := executor.New(executorModel, registry, prompts, *execCfg, executor.WithMetrics(metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("build executor")
	}
	runner, err := orchestrator.New(store, plan, exec, orchestrator.WithMetrics(metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	workflow := &api.WorkflowHandler{Runner: runner, CallbackURL: qstashCfg.CallbackURL}
	if qstashCfg.Enabled() {
		queue := qstashx.MustNew(*qstashCfg)
		workflow.Queue = queue
		workflow.Verifier = queue
	} else {
		log.Info().Msg("qstash not configured, async runs disabled")
	}

	engine := api.NewEngine(appCfg.Debug,
		&api.HealthHandler{Metrics: metrics},
		&api.ProspectHandler{Store: store, Steps: steps, ListPrefix: appCfg.ProspectPrefix},
		workflow,
	)

	srv := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", appCfg.StoreDriver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	log.Info().Msg("bye")
}

// openStore picks the prospect store for driver. The closer is nil when the
// store holds no connection.
func openStore(ctx context.Context, cfg AppConfig) (prospectx.Store, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case storeMemory, "":
		return prospectx.NewMemoryStore(), nil, nil
	case storePostgres:
		pgCfg, err := configx.New[prospectx.PostgresConfig]("POSTGRES")
		if err != nil {
			return nil, nil, err
		}
		store, err := prospectx.OpenPostgresStore(ctx, *pgCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case storeUpstash:
		redisCfg, err := configx.New[prospectx.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, nil, err
		}
		store, err := prospectx.NewUpstashRedisStore(*redisCfg, prospectx.WithKeyPrefix(cfg.StoreKeyPrefix))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
