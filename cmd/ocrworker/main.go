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
	logging.Setup("docflow-ocrworker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "ocr")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go app.ServeMetrics(ctx)
	go bootstrap.RunGuardPurge(ctx, app.OcrGuard, time.Hour)

	slog.Info("ocr_worker_subscribed", "key", domain.KeyDocumentCreated, "group", bootstrap.GroupOcrWorkers)
	err = bootstrap.ConsumeEvents(ctx, app, domain.KeyDocumentCreated, bootstrap.GroupOcrWorkers, app.OcrStage.HandleDocumentCreated)
	if err != nil {
		log.Fatalf("ocr worker subscribe error: %v", err)
	}
}
