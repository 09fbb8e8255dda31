package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/agent"
	"github.com/ARIHARAN-KC/nexa/internal/analytics"
	"github.com/ARIHARAN-KC/nexa/internal/browser"
	"github.com/ARIHARAN-KC/nexa/internal/config"
	"github.com/ARIHARAN-KC/nexa/internal/db"
	"github.com/ARIHARAN-KC/nexa/internal/keywords"
	"github.com/ARIHARAN-KC/nexa/internal/llm"
	"github.com/ARIHARAN-KC/nexa/internal/observability"
	"github.com/ARIHARAN-KC/nexa/internal/orchestrator"
	"github.com/ARIHARAN-KC/nexa/internal/prompt"
	"github.com/ARIHARAN-KC/nexa/internal/storage"
)

// openDB opens and migrates the DB, returning it with a cleanup func.
func openDB() (*db.DB, func(), error) {
	d, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// app holds the process-wide collaborators of the pipeline commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	db       *db.DB
	objects  storage.Store
	gateway  *llm.Gateway
	recorder *analytics.Recorder
}

// newApp wires config into a provider, gateway, database and object store.
func newApp(ctx context.Context) (*app, func(), error) {
	d, closeDB, err := openDB()
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	objects, err := storage.Open(ctx, storage.Options{
		Backend:         cfg.Storage.Backend,
		LocalDir:        cfg.Storage.LocalDir,
		Bucket:          cfg.Storage.GCS.Bucket,
		CredentialsFile: cfg.Storage.GCS.CredentialsFile,
	})
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("open object store: %w", err)
	}

	metrics := observability.Default()
	gateway := llm.NewGateway(provider, llm.Options{
		MaxCalls: cfg.LLM.RateLimit.MaxCalls,
		Period:   cfg.LLM.RateLimit.Period,
		Backoff: llm.Backoff{
			Attempts:   cfg.LLM.Retry.Attempts,
			Base:       cfg.LLM.Retry.BaseDelay,
			Multiplier: cfg.LLM.Retry.Multiplier,
			Max:        cfg.LLM.Retry.MaxDelay,
		},
		TokenLimits: cfg.LLM.TokenLimits,
		Temperature: cfg.LLM.Temperature,
		Logger:      logger,
		Metrics:     metrics,
	})
	recorder := analytics.NewRecorder(d, logger)
	gateway.SetObserver(recorder.LLMObserver())

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		db:       d,
		objects:  objects,
		gateway:  gateway,
		recorder: recorder,
	}
	cleanup := func() {
		if err := objects.Close(); err != nil {
			logger.Warn("close object store", zap.Error(err))
		}
		closeDB()
	}
	logger.Info("pipeline ready",
		zap.String("provider", provider.Name()),
		zap.String("database", d.Dialect()),
		zap.String("storage", cfg.Storage.Backend))
	return a, cleanup, nil
}

func (a *app) agentOptions() agent.Options {
	return agent.Options{
		Prompts:  prompt.NewLibrary(a.cfg.Prompts.Dir),
		Logger:   a.logger,
		Metrics:  a.metrics,
		Observer: a.recorder.StageObserver(),
	}
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	r := a.cfg.Retrieval
	return orchestrator.New(orchestrator.Deps{
		Router: a.gateway,
		Store:  a.db,
		Retriever: browser.New(browser.Options{
			SearchURL:      r.SearchURL,
			MaxResults:     r.MaxResults,
			FetchTimeout:   r.FetchTimeout,
			MaxBodyBytes:   r.MaxBodyBytes,
			SearchInterval: r.SearchInterval,
			Logger:         a.logger,
		}),
		Keywords:             keywords.New(a.cfg.Keywords.Diversity),
		Objects:              a.objects,
		Agent:                a.agentOptions(),
		TopN:                 a.cfg.Keywords.TopN,
		RetrievalConcurrency: r.Concurrency,
		Logger:               a.logger,
		Metrics:              a.metrics,
	})
}

func (a *app) bugFixer() *agent.BugFixer {
	return agent.NewBugFixer(a.gateway.For(orchestrator.AgentBugFixer), a.agentOptions())
}
