// main wires the workflow engine: stores (Postgres or in-memory), the
// identity registry client behind its Redis cache, the audit recorder with its
// retry worker and optional Kafka fan-out, the domain services, and the HTTP
// server. Business logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"civreg/internal/audit"
	audithandler "civreg/internal/audit/handler"
	"civreg/internal/audit/publisher"
	auditmemory "civreg/internal/audit/store/memory"
	auditpostgres "civreg/internal/audit/store/postgres"
	auditworker "civreg/internal/audit/worker"
	"civreg/internal/document/artifact"
	dochandler "civreg/internal/document/handler"
	docmetrics "civreg/internal/document/metrics"
	docservice "civreg/internal/document/service"
	"civreg/internal/document/store/request"
	"civreg/internal/document/templates"
	"civreg/internal/platform/config"
	"civreg/internal/platform/httpserver"
	"civreg/internal/platform/logger"
	platformpg "civreg/internal/platform/postgres"
	platformredis "civreg/internal/platform/redis"
	reghandler "civreg/internal/registration/handler"
	regmetrics "civreg/internal/registration/metrics"
	regservice "civreg/internal/registration/service"
	"civreg/internal/registration/store/citizen"
	"civreg/internal/registry"
	registrycache "civreg/internal/registry/cache"
	registrystore "civreg/internal/registry/store"
	httptransport "civreg/internal/transport/http"
)

const auditInboxCapacity = 1024

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := platformpg.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		citizenStore regservice.Store
		requestStore docservice.Store
		auditStore   audit.Store
		regLookup    registry.Store
	)
	if db != nil {
		citizenStore = citizen.NewPostgres(db)
		requestStore = request.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		regLookup = registrystore.NewPostgres(db)
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		citizenStore = citizen.NewInMemory()
		requestStore = request.NewInMemory()
		auditStore = auditmemory.New()
		regLookup = registrystore.NewInMemory()
	}

	// Registry client: circuit breaker innermost, cache outermost so hits are
	// served even while the circuit is open.
	var registryClient registry.Client = registry.NewBreakerClient(registry.NewStoreClient(regLookup), log)
	if rdb != nil {
		registryClient = registrycache.New(registryClient, rdb.Client, cfg.RegistryCacheTTL, log)
		defer rdb.Close()
	}

	// Audit recorder: retry inbox always, Kafka fan-out when brokers are set.
	inbox := make(chan audit.Entry, auditInboxCapacity)
	recorderOpts := []audit.RecorderOption{audit.WithRetryInbox(inbox)}
	kafka, err := publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Error("kafka connection failed", "error", err.Error())
		os.Exit(1)
	}
	if kafka != nil {
		defer kafka.Close()
		recorderOpts = append(recorderOpts, audit.WithPublisher(kafka))
	}
	recorder := audit.NewRecorder(auditStore, log, recorderOpts...)
	gapWorker := auditworker.New(auditStore, inbox, log,
		auditworker.WithBackoff(cfg.AuditRetryBackoff))

	// Services and handlers.
	regSvc := regservice.NewService(citizenStore, registryClient, recorder, cfg.Matcher, log,
		regservice.WithMetrics(regmetrics.New()))

	artifacts := artifact.NewInMemory()
	composer := artifact.NewComposer(templates.NewStatic(), artifacts)
	docSvc := docservice.NewService(requestStore, regSvc, artifacts, composer, recorder, log,
		docservice.WithMetrics(docmetrics.New()))

	router := httptransport.NewRouter(httptransport.Deps{
		Registration:  reghandler.New(regSvc, log),
		Documents:     dochandler.New(docSvc, log),
		Audit:         audithandler.New(recorder, log),
		JWTSigningKey: []byte(cfg.JWTSigningKey),
		Logger:        log,
		Health: func() error {
			if db != nil {
				return db.Ping()
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting civreg", "addr", cfg.Addr, "postgres", db != nil, "redis", rdb != nil, "kafka", kafka != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return gapWorker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
