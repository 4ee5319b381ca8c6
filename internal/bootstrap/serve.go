package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
)

// ServeMetrics exposes the Prometheus registry on the configured metrics port
// and blocks until ctx is cancelled.
func (a *App) ServeMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())

	server := &http.Server{
		Addr:        ":" + a.Config.MetricsPort,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics_listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics_server_error", "error", err)
	}
}

// RunGuardPurge periodically removes expired idempotency claims so the
// processed message table stays bounded.
func RunGuardPurge(ctx context.Context, guard *postgres.IdempotencyRepository, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := guard.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("idempotency_purge_failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("idempotency_purged", "removed", removed)
			}
		}
	}
}
