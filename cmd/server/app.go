package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"idverify/internal/audit"
	"idverify/internal/i18n"
	jwttoken "idverify/internal/jwt_token"
	"idverify/internal/platform/config"
	"idverify/internal/platform/httpserver"
	"idverify/internal/platform/logger"
	"idverify/internal/platform/metrics"
	"idverify/internal/platform/postgres"
	"idverify/internal/platform/redis"
	"idverify/internal/storage"
	httptransport "idverify/internal/transport/http"
	"idverify/internal/wizard"
	"idverify/internal/wizard/panels"
	"idverify/internal/wizard/router"
)

const (
	auditBufferSize = 1024
	janitorInterval = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// app holds everything serve starts and stops.
type app struct {
	cfg     config.Server
	log     *slog.Logger
	handler http.Handler
	wizard  *wizard.Wizard

	worker  *audit.Worker
	janitor *storage.PostgresStore
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build assembles the app. Backends are only dialled when dial is set, so
// the routes command can run without any infrastructure.
func build(ctx context.Context, cfg config.Server, log *slog.Logger, dial bool) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var (
		store  storage.Store = storage.NewInMemory(cfg.SessionTTL)
		health []httptransport.HealthCheck
	)
	if dial {
		switch cfg.Storage {
		case config.StorageRedis:
			client, err := redis.New(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() { _ = client.Close() })
			store = storage.NewFallback(storage.NewRedis(client.Client, cfg.SessionTTL), store, log)
			health = append(health, httptransport.HealthCheck{Name: "redis", Check: client.Health})
		case config.StoragePostgres:
			db, err := postgres.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() { _ = db.Close() })
			pg := storage.NewPostgres(db, cfg.SessionTTL)
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			store = storage.NewFallback(pg, store, log)
			a.janitor = pg
			health = append(health, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
		}
	}

	var publisher audit.Publisher = audit.NewLogPublisher(log)
	if dial && len(cfg.Audit.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kafka.Close)
		if err := kafka.EnsureTopic(ctx, 1, 1); err != nil {
			return nil, err
		}
		a.worker = audit.NewWorker(kafka, auditBufferSize, log)
		publisher = a.worker
		health = append(health, httptransport.HealthCheck{Name: "kafka", Check: kafka.Ping})
	}

	r, err := router.New(cfg.BasePath, panels.Table(panels.Deps{
		Store:     store,
		Submitter: panels.NewLogSubmitter(log),
		Logger:    log,
		Metrics:   m,
	}))
	if err != nil {
		return nil, err
	}
	a.wizard = wizard.New(r, store,
		wizard.WithLogger(log),
		wizard.WithMetrics(m),
		wizard.WithAudit(publisher),
		wizard.WithIdleTTL(cfg.MountIdleTTL),
	)

	catalog, err := i18n.Load()
	if err != nil {
		return nil, err
	}
	h, err := httptransport.New(a.wizard, catalog, log, httptransport.HandlerConfig{
		SiteName:      cfg.SiteName,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		return nil, err
	}
	a.handler = httptransport.NewRouter(h, httptransport.RouterConfig{
		Logger:     log,
		Gatherer:   registry,
		Tokens:     jwttoken.NewSigner(cfg.SessionSigningKey, "idverify", "idverify-browser"),
		SessionTTL: cfg.SessionTTL,
		Secure:     cfg.SecureCookies,
		Catalog:    catalog,
		Health:     health,
	})

	ok = true
	return a, nil
}

func serve(parent context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpserver.New(cfg.Addr, a.handler, log)
	g, gctx := errgroup.WithContext(ctx)
	// the audit worker outlives the server so shutdown unmounts are still delivered
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	g.Go(func() error {
		log.Info("starting idverify", "addr", cfg.Addr, "base_path", cfg.BasePath, "storage", string(cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if a.worker != nil {
		g.Go(func() error {
			if err := a.worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.janitor != nil {
		g.Go(func() error { return runJanitor(gctx, a.janitor, log) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		a.wizard.Close(shutdownCtx)
		stopWorker()
		log.Info("idverify stopped")
		return nil
	})
	return g.Wait()
}

// runJanitor removes expired session values the postgres store cannot
// expire on its own.
func runJanitor(ctx context.Context, store *storage.PostgresStore, log *slog.Logger) error {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				log.WarnContext(ctx, "failed to delete expired session values", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "deleted expired session values", "count", n)
			}
		}
	}
}

func printRoutes(ctx context.Context, out io.Writer) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(io.Discard, cfg.LogLevel)
	a, err := build(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()
	routes, err := httptransport.Routes(a.handler)
	if err != nil {
		return err
	}
	for _, r := range routes {
		fmt.Fprintln(out, r)
	}
	return nil
}
