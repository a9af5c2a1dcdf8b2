package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"loom/internal/artifact"
	artifactservice "loom/internal/artifact/service"
	"loom/internal/execution"
	executionmetrics "loom/internal/execution/metrics"
	"loom/internal/governance"
	govservice "loom/internal/governance/service"
	"loom/internal/outbox"
	outboxmetrics "loom/internal/outbox/metrics"
	"loom/internal/platform/config"
	"loom/internal/platform/httpserver"
	"loom/internal/platform/logger"
	"loom/internal/platform/postgres"
	"loom/internal/platform/redis"
	"loom/internal/promotion"
	promotionservice "loom/internal/promotion/service"
	transport "loom/internal/transport/http"
	"loom/internal/wal"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable stores when Postgres is configured, in-memory otherwise.
	var (
		walStore      wal.Store
		outboxStore   outbox.Store
		contractStore governance.Store
		artifactStore artifact.Store
		promoStore    promotion.Store
		unit          execution.UnitRunner
		checks        = map[string]transport.HealthChecker{}
	)
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		walStore = wal.NewPostgres(db)
		outboxStore = outbox.NewPostgres(db)
		contractStore = governance.NewPostgres(db)
		artifactStore = artifact.NewPostgres(db)
		promoStore = promotion.NewPostgres(db)
		unit = newPostgresUnitRunner(db)
		checks["postgres"] = db.Ping
		log.Info("durable stores enabled", "backend", "postgres")
	} else {
		walStore = wal.NewInMemoryStore()
		outboxStore = outbox.NewInMemoryStore()
		contractStore = governance.NewInMemoryStore()
		artifactStore = artifact.NewInMemoryStore()
		promoStore = promotion.NewInMemoryStore()
		unit = newMemoryUnitRunner()
		log.Warn("running on in-memory stores, state will not survive restart")
	}

	var cache artifact.CacheStore
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = artifact.NewRedisCache(redisClient)
		checks["redis"] = func() error { return redisClient.Health(context.Background()) }
		log.Info("materialization cache enabled", "backend", "redis")
	} else {
		cache = artifact.NewInMemoryCache()
		log.Warn("redis not configured, using in-memory materialization cache")
	}

	walLog, err := wal.NewLog(walStore)
	if err != nil {
		log.Error("wal setup failed", "error", err)
		os.Exit(1)
	}

	governanceSvc, err := govservice.NewService(contractStore, nil,
		governance.DefaultMaterializationPolicy(cfg.MaterializationTTL), walLog, log)
	if err != nil {
		log.Error("governance setup failed", "error", err)
		os.Exit(1)
	}

	artifactSvc, err := artifactservice.NewService(artifactStore, cache, walLog, log)
	if err != nil {
		log.Error("artifact registry setup failed", "error", err)
		os.Exit(1)
	}

	promotionSvc, err := promotionservice.NewService(promoStore, artifactSvc, governanceSvc, walLog, log)
	if err != nil {
		log.Error("promotion setup failed", "error", err)
		os.Exit(1)
	}
	// Deleting working material back-propagates into records of fact.
	artifactSvc.SetExpiryMarker(promotionSvc)

	registry := execution.NewRegistry()
	manager, err := execution.NewManager(registry, governanceSvc, artifactSvc, walLog,
		outboxStore, unit, executionmetrics.New(), log)
	if err != nil {
		log.Error("execution manager setup failed", "error", err)
		os.Exit(1)
	}

	var publisher outbox.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = outbox.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		log.Info("outbox relay publishing to kafka", "topic", cfg.Kafka.Topic)
	} else {
		publisher = logPublisher{log: log}
		log.Warn("kafka not configured, outbox events are logged only")
	}
	defer publisher.Close()

	relay := outbox.NewRelay(outboxStore, publisher, log, outboxmetrics.New(),
		cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	handlers := transport.NewHandlers(manager, artifactSvc, promotionSvc, walLog, log)
	server := httpserver.New(cfg.Addr, transport.NewRouter(handlers, checks))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr, "intent_types", registry.Types())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := relay.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// logPublisher is the dev-mode sink: envelopes are logged instead of
// delivered, and the relay marks them published so the queue drains.
type logPublisher struct {
	log *slog.Logger
}

func (p logPublisher) Publish(_ context.Context, envelope outbox.Envelope) error {
	p.log.Info("outbox event (dev sink)",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"tenant_id", envelope.TenantID)
	return nil
}

func (p logPublisher) Close() {}
