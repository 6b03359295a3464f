package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
	"github.com/kirillkom/oq-testgen/internal/core/usecase"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/chunking"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/classifier/rules"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/extractor/router"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/queue/nats"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/research"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/resilience"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/specialist"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/traceability/neo4j"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/oq-testgen/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	IngestUC   *usecase.IngestDocumentUseCase
	WorkflowUC *usecase.WorkflowUseCase
	OutcomeUC  *usecase.OutcomeQueryUseCase
	Planner    *usecase.StrategyPlanner
	Classifier *usecase.CategoryClassifier

	closeFn func()
}

// New wires the full workflow. When registerer is nil no workflow metrics are
// exported.
func New(ctx context.Context, cfg config.Config, registerer prometheus.Registerer) (*App, error) {
	planner, err := loadPlanner(cfg)
	if err != nil {
		return nil, err
	}

	var observer ports.WorkflowObserver
	var breakerObserver resilience.StateObserver
	if registerer != nil {
		wm := metrics.NewWorkflowMetrics("testgen", registerer)
		observer = wm
		breakerObserver = wm.ObserveBreakerState
	}
	backendExec := resilience.NewExecutor(cfg.Resilience()).WithStateObserver(breakerObserver)
	specialistExec := resilience.NewExecutor(cfg.Resilience().SingleAttempt()).WithStateObserver(breakerObserver)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}
	documents := postgres.NewDocumentRepository(db)
	outcomes := postgres.NewOutcomeRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fail(fmt.Errorf("init object storage: %w", err))
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		EscalationSubject:  cfg.NATSEscalationSubject,
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: backendExec,
	})
	if err != nil {
		return fail(fmt.Errorf("init message queue: %w", err))
	}
	closers = append(closers, queue.Close)

	llm := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, backendExec)
	specialistLLM := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, specialistExec)

	backend, err := classifierBackend(cfg, llm)
	if err != nil {
		return fail(err)
	}

	pool, err := specialistPool(cfg, specialistLLM, specialistExec)
	if err != nil {
		return fail(err)
	}

	extractor := router.New(plaintext.NewExtractor(storage)).
		Register(pdf.MimeType, pdf.NewExtractor(storage, cfg.APIMaxUploadBytes))

	classifier := usecase.NewCategoryClassifier(backend, planner.Threshold())
	deps := usecase.WorkflowDependencies{
		Documents:   documents,
		Outcomes:    outcomes,
		Extractor:   extractor,
		Classifier:  classifier,
		Planner:     planner,
		Dispatcher:  usecase.NewParallelDispatcher(pool, observer, dispatcherConfig(cfg)),
		Aggregator:  usecase.NewResultAggregator(),
		Generator:   ollama.NewSuiteGenerator(llm),
		Escalations: queue,
		Observer:    observer,
	}

	if cfg.Neo4jURI != "" {
		recorder, err := neo4j.New(neo4j.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			return fail(fmt.Errorf("init traceability: %w", err))
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = recorder.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = recorder.Close(context.Background())
			return fail(fmt.Errorf("ping traceability graph: %w", err))
		}
		closers = append(closers, func() { _ = recorder.Close(context.Background()) })
		deps.Traceability = recorder
	}

	return &App{
		Config:     cfg,
		Queue:      queue,
		IngestUC:   usecase.NewIngestDocumentUseCase(documents, storage, queue),
		WorkflowUC: usecase.NewWorkflowUseCase(deps, cfg.WorkflowTimeout()),
		OutcomeUC:  usecase.NewOutcomeQueryUseCase(documents, outcomes),
		Planner:    planner,
		Classifier: classifier,
		closeFn:    closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewPrecedentSeeder wires only what indexing needs: chunker, embedder, Qdrant.
func NewPrecedentSeeder(cfg config.Config) *usecase.PrecedentSeedUseCase {
	exec := resilience.NewExecutor(cfg.Resilience())
	llm := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
	return usecase.NewPrecedentSeedUseCase(
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		ollama.NewEmbedder(llm),
		qdrant.New(cfg.QdrantURL, cfg.QdrantCollection),
	)
}

// NewPlanner builds the planner and rules classifier for offline use.
func NewPlanner(cfg config.Config) (*usecase.StrategyPlanner, *usecase.CategoryClassifier, error) {
	planner, err := loadPlanner(cfg)
	if err != nil {
		return nil, nil, err
	}
	return planner, usecase.NewCategoryClassifier(rules.New(), planner.Threshold()), nil
}

func loadPlanner(cfg config.Config) (*usecase.StrategyPlanner, error) {
	plannerCfg, err := config.LoadPlannerConfig(cfg.PlannerConfigPath, cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	planner, err := usecase.NewStrategyPlanner(plannerCfg)
	if err != nil {
		return nil, fmt.Errorf("init planner: %w", err)
	}
	return planner, nil
}

func classifierBackend(cfg config.Config, llm *ollama.Client) (ports.DocumentClassifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ClassifierBackend)) {
	case "rules":
		return rules.New(), nil
	case "llm":
		return ollama.NewClassifier(llm), nil
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "select classifier", fmt.Errorf("unknown backend %q", cfg.ClassifierBackend))
	}
}

func specialistPool(cfg config.Config, llm *ollama.Client, exec *resilience.Executor) (*usecase.SpecialistPool, error) {
	specialists := []ports.Specialist{
		specialist.NewContextSpecialist(
			ollama.NewEmbedder(llm),
			qdrant.New(cfg.QdrantURL, cfg.QdrantCollection),
			chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
			specialist.ContextOptions{Limit: cfg.ContextPrecedentLimit},
		),
		specialist.NewSMESpecialist(ollama.NewReviewer(llm)),
	}
	if cfg.ResearchURL != "" {
		client := research.New(research.Config{
			BaseURL:        cfg.ResearchURL,
			APIKey:         cfg.ResearchAPIKey,
			RequestsPerSec: cfg.ResearchRPS,
			Burst:          cfg.ResearchBurst,
			Timeout:        time.Duration(cfg.ResearchTimeoutSeconds) * time.Second,
		}, exec)
		specialists = append(specialists, specialist.NewResearchSpecialist(client, cfg.ResearchLimit))
	} else {
		// Plans that need research will escalate with the role reported as failed.
		slog.Warn("research_specialist_disabled", "reason", "RESEARCH_URL is empty")
	}

	pool, err := usecase.NewSpecialistPool(specialists...)
	if err != nil {
		return nil, fmt.Errorf("init specialist pool: %w", err)
	}
	return pool, nil
}

func dispatcherConfig(cfg config.Config) usecase.DispatcherConfig {
	return usecase.DispatcherConfig{
		Backoff: usecase.Backoff{
			Initial:    time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
			Max:        time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
			Multiplier: cfg.RetryMultiplier,
		},
		ExcerptChars: cfg.SpecialistExcerptChars,
	}
}
