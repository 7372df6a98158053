package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"medfayda/internal/access"
	authhandler "medfayda/internal/auth/handler"
	authmetrics "medfayda/internal/auth/metrics"
	"medfayda/internal/auth/models"
	"medfayda/internal/auth/otp"
	"medfayda/internal/auth/provider"
	"medfayda/internal/auth/replay"
	"medfayda/internal/auth/service"
	"medfayda/internal/auth/store/principal"
	"medfayda/internal/auth/workers/cleanup"
	"medfayda/internal/platform/config"
	"medfayda/internal/platform/database"
	"medfayda/internal/platform/health"
	"medfayda/internal/platform/kafka/producer"
	"medfayda/internal/platform/metrics"
	"medfayda/internal/platform/redis"
	"medfayda/internal/platform/tracer"
	"medfayda/internal/records"
	"medfayda/internal/session"
	httptransport "medfayda/internal/transport/http"
	"medfayda/pkg/platform/audit"
	auditmetrics "medfayda/pkg/platform/audit/metrics"
	"medfayda/pkg/platform/audit/publisher"
	kafkasink "medfayda/pkg/platform/audit/sink/kafka"
	auditmemory "medfayda/pkg/platform/audit/store/memory"
	auditpostgres "medfayda/pkg/platform/audit/store/postgres"
	"medfayda/pkg/platform/middleware/auditlog"
	"medfayda/pkg/platform/middleware/auth"
	"medfayda/pkg/platform/middleware/metadata"
	"medfayda/pkg/platform/middleware/request"
)

// principalStore is what both the login service and the record surface need
// from the principal store.
type principalStore interface {
	service.PrincipalStore
	FindByFIN(ctx context.Context, fin string) (*models.Principal, error)
}

type application struct {
	router  http.Handler
	cleanup *cleanup.CleanupService
	closers []func() error
}

// close releases resources in reverse order of acquisition.
func (a *application) close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("resource close failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close(log)
		}
	}()

	reg := metrics.NewRegistry()
	authMetrics := authmetrics.New(reg)
	healthHandler := health.New(cfg.Environment)
	trc := tracer.NewOTel(otel.Tracer("medfayda"))

	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		healthHandler.RegisterCheck("postgres", pool.Health)
		if err := pool.RegisterMetrics(reg); err != nil {
			return nil, fmt.Errorf("register database metrics: %w", err)
		}
		if cfg.Database.AutoMigrate {
			applied, err := database.Migrate(ctx, pool.DB())
			if err != nil {
				return nil, err
			}
			log.Info("database migrated", "files", applied)
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
		healthHandler.RegisterCheck("redis", redisClient.Health)
		if err := redisClient.RegisterMetrics(reg); err != nil {
			return nil, fmt.Errorf("register redis metrics: %w", err)
		}
	}

	var (
		principals principalStore
		auditStore audit.Store
		recordRepo records.Repository
		replayKind = "memory"
		attempts   replay.Store
	)
	if pool != nil {
		principals = principal.NewPostgres(pool.DB())
		auditStore = auditpostgres.New(pool.DB())
		recordRepo = records.NewPostgres(pool.DB())
	} else {
		log.Warn("DATABASE_URL not set, principals, records and audit trail are kept in memory")
		principals = principal.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
		recordRepo = records.NewInMemoryStore()
	}
	if redisClient != nil {
		attempts = replay.NewRedisStore(redisClient.Client)
		replayKind = "redis"
	} else {
		attempts = replay.NewInMemoryStore()
	}
	log.Info("stores selected", "postgres", pool != nil, "replay", replayKind)

	var auditProducer *producer.Producer
	if cfg.Audit.KafkaBrokers != "" {
		auditProducer, err = producer.New(producer.DefaultConfig(cfg.Audit.KafkaBrokers), log)
		if err != nil {
			return nil, fmt.Errorf("audit kafka producer: %w", err)
		}
		app.closers = append(app.closers, auditProducer.Close)
		healthHandler.RegisterCheck("kafka", auditProducer.Ping)
	}
	pub := newAuditPublisher(cfg, log, reg, auditStore, auditProducer)
	// Registered after the producer so the queue drains before it closes.
	app.closers = append(app.closers, func() error { pub.Close(); return nil })

	guard, err := replay.New(attempts,
		replay.WithTTL(cfg.Replay.TTL),
		replay.WithLogger(log),
		replay.WithMetrics(authMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("replay guard: %w", err)
	}

	idp, err := provider.New(ctx, provider.Config{
		IssuerURL:          cfg.Provider.IssuerURL,
		ClientID:           cfg.Provider.ClientID,
		ClientSecret:       cfg.Provider.ClientSecret,
		ClientAssertionKey: cfg.Provider.PrivateKey,
		RedirectURL:        cfg.Provider.RedirectURL,
		AuthURL:            cfg.Provider.AuthURL,
		TokenURL:           cfg.Provider.TokenURL,
		UserInfoURL:        cfg.Provider.UserInfoURL,
		JWKSURL:            cfg.Provider.JWKSURL,
		Scopes:             cfg.Provider.Scopes,
		Timeout:            cfg.Provider.Timeout,
	},
		provider.WithLogger(log),
		provider.WithMetrics(authMetrics),
		provider.WithTracer(trc),
	)
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}

	sessions, err := session.NewIssuer(cfg.Session.SigningKey, cfg.Session.Issuer, cfg.Session.Audience,
		session.WithTTL(cfg.Session.TTL))
	if err != nil {
		return nil, fmt.Errorf("session issuer: %w", err)
	}

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(authMetrics),
		service.WithTracer(trc),
	}
	cleanupOpts := []cleanup.CleanupOption{
		cleanup.WithCleanupInterval(cfg.Replay.SweepInterval),
		cleanup.WithCleanupLogger(log),
		cleanup.WithCleanupMetrics(authMetrics),
	}
	if cfg.Local.Enabled {
		codes := otp.NewInMemoryStore(cfg.Local.MaxAttempts)
		throttle := otp.NewThrottle(cfg.Local.SendsPerMinute, cfg.Local.SendsPerMinute)
		svcOpts = append(svcOpts, service.WithLocalLogin(codes, service.NewLogSender(log, cfg.Local.RevealCodes), throttle))
		cleanupOpts = append(cleanupOpts, cleanup.WithCodeStore(codes), cleanup.WithThrottle(throttle))
	}

	authService, err := service.New(principals, guard, idp, sessions, service.Config{
		LocalLoginEnabled:     cfg.Local.Enabled,
		CodeTTL:               cfg.Local.CodeTTL,
		PostLogoutRedirectURL: cfg.Provider.PostLogoutRedirectURL,
	}, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	app.cleanup, err = cleanup.New(guard, cleanupOpts...)
	if err != nil {
		return nil, fmt.Errorf("cleanup worker: %w", err)
	}

	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	auditMW := auditlog.New(pub, auditlog.WithLogger(log))
	gate := access.NewGate(access.WithLogger(log), access.WithMetrics(authMetrics))
	recordService := records.NewService(recordRepo, principals, gate, log)

	app.router = httptransport.NewRouter(httptransport.Dependencies{
		Logger:   log,
		Metadata: metadata.NewMiddleware(trusted),
		Latency:  request.NewMetrics(reg),
		Health:   healthHandler,
		Metrics:  metrics.Handler(reg),
		Auth:     authhandler.New(authService, log, authhandler.WithAudit(auditMW), authhandler.WithGate(gate)),
		Records:  records.NewHandler(recordService, gate, auditMW, log),
		Authn:    auth.RequireAuth(sessions, authMetrics, log),
	})
	return app, nil
}

// newAuditPublisher builds the asynchronous audit publisher over store and,
// when a producer is given, fans sealed records out to Kafka as well.
func newAuditPublisher(cfg config.Server, log *slog.Logger, reg prometheus.Registerer, store audit.Store, p *producer.Producer) *publisher.Publisher {
	opts := []publisher.PublisherOption{
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithPublisherLogger(log),
		publisher.WithPublisherMetrics(auditmetrics.New(reg)),
	}
	if p != nil {
		opts = append(opts, publisher.WithSink(kafkasink.New(p, cfg.Audit.Topic)))
	}
	return publisher.NewPublisher(store, opts...)
}
