package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	httpadapter "freightbid/internal/adapters/http"
	"freightbid/internal/adapters/memory"
	mongostore "freightbid/internal/adapters/mongo"
	pg "freightbid/internal/adapters/postgres"
	"freightbid/internal/adapters/webhook"
	"freightbid/internal/adapters/xlsx"
	"freightbid/internal/config"
	"freightbid/internal/ports"
	bidsvc "freightbid/internal/services/bids"
	"freightbid/internal/services/reports"
	"freightbid/internal/workers/sweeper"
)

func main() {
	cfg, err := config.Load()
	log := newLogger(cfg)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Production() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With(slog.String("service", "freightbid"))
}

func openStore(ctx context.Context, cfg config.Config) (ports.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DriverMongo:
		st, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		return st, nil
	}
	return memory.New(), nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()
	log.Info("store ready", "driver", cfg.StoreDriver)

	publisher := webhook.NewPublisher(strings.TrimRight(cfg.PublicBaseURL, "/"), log)
	publisher.RegisterEndpoint(ports.EventBidOpened, cfg.NotifyWebhookURL)
	publisher.RegisterEndpoint(ports.EventBidClosed, cfg.ReportWebhookURL)
	publisher.RegisterEndpoint(ports.EventBidReport, cfg.ReportWebhookURL)

	bids := bidsvc.New(store, store, bidsvc.Options{
		CutoffHour:    cfg.CutoffHour,
		Location:      cfg.Location,
		PublicBaseURL: cfg.PublicBaseURL,
		Events:        publisher,
		Logger:        log,
	})
	sw := &sweeper.Sweeper{
		Bids:        store,
		Offers:      store,
		Assembler:   reports.NewAssembler(cfg.Location),
		Reports:     publisher,
		Events:      publisher,
		Logger:      log.With(slog.String("component", "sweeper")),
		Deadline:    cfg.SweepDeadline,
		Concurrency: cfg.SweepConcurrency,
	}
	if cfg.CronSecret == "" {
		log.Warn("CRON_SECRET not set; the sweep endpoint rejects every request")
	}

	api := httpadapter.New(bids, sw, xlsx.Renderer{Location: cfg.Location}, cfg.CronSecret, log)
	r := chi.NewRouter()
	r.Mount("/", api.Routes())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			log.Info("scheduled sweeps started", "interval", cfg.SweepInterval)
			sweeper.Run(gctx, sw, cfg.SweepInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
