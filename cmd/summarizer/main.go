package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logging.Setup("docflow-summarizer", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "summarize")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go app.ServeMetrics(ctx)
	go bootstrap.RunGuardPurge(ctx, app.SummaryGuard, time.Hour)

	slog.Info("summarizer_subscribed", "key", domain.KeyOcrResult, "group", bootstrap.GroupSummaryWorkers)
	err = bootstrap.ConsumeEvents(ctx, app, domain.KeyOcrResult, bootstrap.GroupSummaryWorkers, app.Summarize.HandleOcrResult)
	if err != nil {
		log.Fatalf("summarizer subscribe error: %v", err)
	}

	// Let dispatched summarizations publish their results before exiting.
	app.Summarize.Drain()
}
