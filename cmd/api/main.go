package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xavierca1/leadstitch/internal/config"
	"github.com/xavierca1/leadstitch/internal/infra/database"
	"github.com/xavierca1/leadstitch/internal/infra/http/handlers"
	httpmetrics "github.com/xavierca1/leadstitch/internal/infra/http/middleware"
	"github.com/xavierca1/leadstitch/internal/infra/queue"
	"github.com/xavierca1/leadstitch/internal/infra/telemetry"
	"github.com/xavierca1/leadstitch/internal/infra/worker"
	"github.com/xavierca1/leadstitch/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("leadstitch: exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := database.NewDBConnection(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, cfg.StoreDriver); err != nil {
		return err
	}

	metrics := httpmetrics.NewDomainMetrics(prometheus.DefaultRegisterer)

	// 1. Repositórios
	leadRepo := database.NewLeadRepository(db)
	bridgeRepo := database.NewBridgeRepository(db)
	touchpointRepo := database.NewTouchpointRepository(db)
	funnelRepo := database.NewFunnelRepository(db)

	// 2. Serviços de domínio
	resolver := usecase.NewIdentityResolver(leadRepo, metrics, nil)
	merger := usecase.NewLeadMerger(leadRepo, nil)
	bridge := usecase.NewBridgeService(bridgeRepo, metrics, nil)
	touchpoints := usecase.NewTouchpointService(touchpointRepo, metrics, nil)
	funnel := usecase.NewFunnelService(funnelRepo, metrics, nil)

	// 3. Fila de retry (opcional)
	var (
		retry  usecase.RetryPublisher
		broker handlers.BrokerStatus
	)
	if cfg.AMQPURL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()

		producer := queue.NewRetryProducer(rabbitMQ.Ch)
		retry = producer
		broker = rabbitMQ

		consumerCh, err := rabbitMQ.ConsumerChannel()
		if err != nil {
			return err
		}
		retryWorker := queue.NewRetryWorker(consumerCh, producer, touchpoints, bridge, metrics)
		go func() {
			if err := retryWorker.Start(ctx, queue.QueueName); err != nil {
				slog.Error("retry worker stopped", "error", err)
			}
		}()
	} else {
		slog.Warn("AMQP_URL not set: failed secondary writes will only be logged")
	}

	// 4. Workers
	go worker.NewBridgeSweeper(bridge, metrics, cfg.BridgeSweepInterval).Start(ctx)

	// 5. UseCase de ingestão
	ingest := usecase.NewIngestEventUseCase(resolver, bridge, touchpoints, funnel, retry, metrics, nil)

	// 6. Router
	router := newRouter(routes{
		Bridge:         handlers.NewBridgeHandler(bridge),
		Touchpoints:    handlers.NewTouchpointHandler(touchpoints),
		Funnel:         handlers.NewFunnelHandler(funnel),
		Leads:          handlers.NewLeadHandler(resolver, merger),
		Events:         handlers.NewEventHandler(ingest),
		Health:         handlers.NewHealthHandler(db, cfg.StoreDriver, broker),
		BridgeLimiter:  handlers.NewRateLimiter(cfg.BridgeRateLimit, time.Minute),
		AllowedOrigins: cfg.AllowedOrigins,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("leadstitch: listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("leadstitch: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
