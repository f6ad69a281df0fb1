package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/insights/internal/config"
	"example.com/insights/internal/ingest"
	"example.com/insights/internal/jobs"
	"example.com/insights/internal/logging"
	persistence "example.com/insights/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalw("failed to connect to postgres", "error", err)
	}
	defer pool.Close()

	records := persistence.NewRecordRepository(pool)
	batches := persistence.NewBatchRepository(pool)
	ingestor := ingest.NewIngestor(records, batches, logger)
	handler := jobs.NewIngestHandler(batches, ingestor, cfg.IngestMaxAttempts, cfg.IngestRetryBackoff, logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		logger.Infow("worker metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("metrics server error", "error", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroup,
		Topic:           cfg.IngestTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})

	proc := jobs.NewProcessor(reader, handler, logger)

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()

		logger.Infow("ingest worker started", "topic", cfg.IngestTopic, "group", cfg.ConsumerGroup)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorw("ingest worker stopped with error", "error", err)
		}
	}()

	<-stop
	logger.Infow("worker shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("metrics server shutdown error", "error", err)
	}

	wg.Wait()
}
