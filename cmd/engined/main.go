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

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"ledgerd/internal/config"
	"ledgerd/internal/database"
	"ledgerd/internal/events"
	"ledgerd/internal/ledger"
	"ledgerd/internal/metrics"
	"ledgerd/internal/plan"
	"ledgerd/internal/server"
	"ledgerd/internal/store"
	"ledgerd/internal/worker"
)

func main() {
	cfg := config.LoadConfig()

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: logLevel}))

	if err := run(cfg, log); err != nil {
		log.Error("engined exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	log.Info("connected to postgres", "host", cfg.DBHost, "db", cfg.DBName)

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		return fmt.Errorf("could not connect to redis: %w", err)
	}
	log.Info("connected to redis", "host", cfg.RedisHost)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	compPlan := plan.Default()

	var emitter ledger.Emitter
	if cfg.IndexerURL != "" {
		emitter = events.NewClient(cfg.IndexerURL, cfg.IndexerToken, log)
		log.Info("receipt emission enabled", "indexer", cfg.IndexerURL)
	}

	engine, err := ledger.New(ctx, ledger.Config{
		Logger:       log,
		Plan:         compPlan,
		Store:        store.NewGormStore(db),
		Clock:        clockwork.NewRealClock(),
		FeeRecipient: cfg.FeeRecipient,
		Emitter:      emitter,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("could not start engine: %w", err)
	}

	srv := server.New(log, engine, m, reg, cfg.AdminAllowedCIDRs)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	distributor := worker.NewDistributor(engine, rdb, compPlan, log, clockwork.NewRealClock())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := distributor.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
