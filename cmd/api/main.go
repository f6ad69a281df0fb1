package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/insights/internal/api"
	"example.com/insights/internal/auth"
	"example.com/insights/internal/config"
	"example.com/insights/internal/domain"
	"example.com/insights/internal/generative"
	"example.com/insights/internal/insight"
	"example.com/insights/internal/jobs"
	"example.com/insights/internal/logging"
	persistence "example.com/insights/internal/persistence/postgres"
	httptransport "example.com/insights/internal/transport/http"
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
	service := domain.NewService(records)

	producer := jobs.NewProducer(cfg.KafkaBrokers, cfg.IngestTopic)
	defer producer.Close()

	backend := generative.NewClient(cfg.AIBaseURL, cfg.AITimeout)
	goals := insight.Goals{
		DailySteps:          cfg.DailyStepGoal,
		WeeklyActiveMinutes: cfg.WeeklyActiveMinutesGoal,
	}
	genService := generative.NewService(backend, cfg.AITimeout, goals, logger)

	handler := api.NewHandler(service, batches, producer, genService, goals, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-File-Name")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	requestLog := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debugw("request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	// WriteTimeout leaves room for the generative backend's deadline
	// plus the fallback path.
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AITimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLog(cors(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infow("insights api listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
}
