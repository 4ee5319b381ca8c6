package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/docflow/internal/adapters/http"
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
	logging.Setup("docflow-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Ingest,
		app.DocumentRepo,
		app.AnalyticsRepo,
		cfg.APIRateLimitRPS,
		cfg.APIRateLimiterBurst,
	).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go app.ServeMetrics(ctx)

	// The API node also applies OCR and summary results to the document store,
	// so reads served here see the pipeline's progress.
	resultsErr := make(chan error, 3)
	go func() {
		resultsErr <- bootstrap.ConsumeEvents(ctx, app, domain.KeyOcrResult, bootstrap.GroupDocOcrResults, app.Results.HandleOcrResult)
	}()
	go func() {
		resultsErr <- bootstrap.ConsumeEvents(ctx, app, domain.KeySummaryResult, bootstrap.GroupDocSummaries, app.Results.HandleSummaryResult)
	}()
	go func() {
		resultsErr <- bootstrap.ConsumeEvents(ctx, app, domain.KeyDocumentDeleted, bootstrap.GroupDocDeletions, app.Results.HandleDocumentDeleted)
	}()

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-resultsErr:
		if err != nil {
			slog.Error("result_consumer_error", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
