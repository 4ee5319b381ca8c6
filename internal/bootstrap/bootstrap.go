// Package bootstrap wires infrastructure into the use cases. All three
// binaries (api, ocrworker, summarizer) build the same App and pick the parts
// they run.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/doctext"
	"github.com/kirillkom/docflow/internal/infrastructure/llm/ollama"
	natsbus "github.com/kirillkom/docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

// Durable consumer group names. Each group dead-letters to its own subject.
const (
	GroupOcrWorkers     = "ocr-workers"
	GroupSummaryWorkers = "summary-workers"
	GroupDocOcrResults  = "docsvc-ocr-results"
	GroupDocSummaries   = "docsvc-summary-results"
	GroupDocDeletions   = "docsvc-deletions"
)

type App struct {
	Config  config.Config
	Stage   string
	Metrics *metrics.PipelineMetrics
	Bus     *natsbus.Bus
	DB      *sql.DB

	DocumentRepo  *postgres.DocumentRepository
	AnalyticsRepo *postgres.AnalyticsRepository
	OcrGuard      *postgres.IdempotencyRepository
	SummaryGuard  *postgres.IdempotencyRepository

	Ingest    *usecase.IngestDocumentUseCase
	OcrStage  *usecase.OcrStageUseCase
	Summarize *usecase.SummarizeUseCase
	Results   *usecase.ResultConsumerUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, stage string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	pipelineMetrics := metrics.NewPipelineMetrics(stage)

	bus, err := natsbus.NewWithOptions(cfg.NATSURL, natsbus.Options{
		Stage:    stage,
		Prefetch: cfg.ConsumerPrefetch,
		AckWait:  cfg.ConsumerAckWait,
		Policy: natsbus.RedeliveryPolicy{
			MaxAttempts: cfg.RedeliveryAttempts,
			BaseDelay:   cfg.RedeliveryBase,
			MaxDelay:    cfg.RedeliveryMax,
		},
		MaxAge:             cfg.StreamMaxAge,
		ResilienceExecutor: executor,
		Metrics:            pipelineMetrics,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message bus: %w", err)
	}

	documentRepo := postgres.NewDocumentRepository(db)
	analyticsRepo := postgres.NewAnalyticsRepository(db)
	searchIndex := postgres.NewSearchIndex(db)
	ocrGuard := postgres.NewIdempotencyRepository(db, GroupOcrWorkers, cfg.IdempotencyTTL)
	summaryGuard := postgres.NewIdempotencyRepository(db, GroupSummaryWorkers, cfg.IdempotencyTTL)

	extractor := doctext.New(cfg.ExtractMaxBytes)
	summarizer := ollama.New(cfg.OllamaURL, cfg.OllamaModel, ollama.Options{
		MaxInputChars:      cfg.SummaryMaxInput,
		ResilienceExecutor: executor,
	})

	return &App{
		Config:  cfg,
		Stage:   stage,
		Metrics: pipelineMetrics,
		Bus:     bus,
		DB:      db,

		DocumentRepo:  documentRepo,
		AnalyticsRepo: analyticsRepo,
		OcrGuard:      ocrGuard,
		SummaryGuard:  summaryGuard,

		Ingest:   usecase.NewIngestDocumentUseCase(documentRepo, storage, bus, cfg.StorageBucket),
		OcrStage: usecase.NewOcrStageUseCase(documentRepo, storage, extractor, bus,
			countingGuard(ocrGuard, pipelineMetrics, stage, GroupOcrWorkers), cfg.OcrLanguage),
		Summarize: usecase.NewSummarizeUseCase(summarizer, bus,
			countingGuard(summaryGuard, pipelineMetrics, stage, GroupSummaryWorkers), cfg.SummaryMinChars, cfg.SummaryTimeout),
		Results:   usecase.NewResultConsumerUseCase(documentRepo, analyticsRepo, searchIndex, storage),

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// meteredGuard decorates an idempotency guard so short-circuited duplicate
// deliveries show up in the stage metrics.
type meteredGuard struct {
	inner ports.IdempotencyGuard
	m     *metrics.PipelineMetrics
	stage string
	group string
}

func countingGuard(inner ports.IdempotencyGuard, m *metrics.PipelineMetrics, stage, group string) ports.IdempotencyGuard {
	return &meteredGuard{inner: inner, m: m, stage: stage, group: group}
}

func (g *meteredGuard) TryClaim(ctx context.Context, messageID string) (bool, error) {
	claimed, err := g.inner.TryClaim(ctx, messageID)
	if err == nil && !claimed {
		g.m.DuplicateDropped(g.stage, g.group)
	}
	return claimed, err
}

func (g *meteredGuard) Release(ctx context.Context, messageID string) error {
	return g.inner.Release(ctx, messageID)
}

// Instrument wraps a typed event handler with stage metrics.
func Instrument[T any](
	m *metrics.PipelineMetrics,
	stage, group string,
	handler func(ctx context.Context, event T) error,
) func(ctx context.Context, event T) error {
	return func(ctx context.Context, event T) error {
		m.StartHandle()
		start := time.Now()
		err := handler(ctx, event)
		m.FinishHandle(stage, group, time.Since(start), err)
		return err
	}
}

// ConsumeEvents subscribes an instrumented handler to one routing key under a
// durable consumer group and blocks until ctx is cancelled.
func ConsumeEvents[T any](
	ctx context.Context,
	app *App,
	key domain.RoutingKey,
	group string,
	handler func(ctx context.Context, event T) error,
) error {
	return natsbus.ConsumeJSON(ctx, app.Bus, key, group, Instrument(app.Metrics, app.Stage, group, handler))
}
