package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/http"
	mailadapter "github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/mail"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/adapters/storage"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *health.Server
	grpcAddr   string
	outbox     *eventadapter.OutboxWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping affiliation service",
		"service", cfg.ServiceID,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
	)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	closers = append(closers, func() { _ = sqlDB.Close() })

	if err := postgres.RunMigrations(ctx, db); err != nil {
		closeAll()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	if err := redisClient.Ping(ctx).Err(); err != nil {
		closeAll()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(db)

	tokenSigner, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			closeAll()
			return nil, fmt.Errorf("init jwt signer: %w", err)
		}
		logger.Warn("using ephemeral JWT keys for local/dev runtime")
		tokenSigner, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}

	receipts, err := storage.NewLocalReceiptStore(cfg.ReceiptDir)
	if err != nil {
		closeAll()
		return nil, err
	}

	publisher, closePublisher, err := buildPublisher(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, closePublisher)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.ServiceID,
			AccessTokenTTL:       cfg.AccessTokenTTL,
			RefreshTokenTTL:      cfg.RefreshTokenTTL,
			FailedLoginThreshold: cfg.FailedLoginThreshold,
			LockoutDuration:      cfg.LockoutDuration,
			AffiliationBaseURL:   cfg.AffiliationBaseURL,
			CommissionRate:       cfg.CommissionRate,
			CurrencyLabel:        cfg.CurrencyLabel,
			DashboardCacheTTL:    cfg.DashboardCacheTTL,
			IntakeRateLimit:      cfg.IntakeRateLimit,
			IntakeRateWindow:     cfg.IntakeRateWindow,
			IdempotencyTTL:       cfg.IdempotencyTTL,
			MaxReceiptBytes:      cfg.MaxReceiptBytes,
		},
		Influencers: repos.Influencers,
		Prospects:   repos.Prospects,
		Remises:     repos.Remises,
		Idempotency: repos.Idempotency,
		RateLimits:  cacheadapter.NewRedisRateLimitStore(redisClient),
		Revocations: cacheadapter.NewRedisTokenRevocationStore(redisClient),
		Dashboards:  cacheadapter.NewRedisDashboardCache(redisClient),
		Receipts:    receipts,
		Hasher:      security.NewBcryptHasher(cfg.BcryptCost),
		TokenSigner: tokenSigner,
	})

	ready := func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	handler := httpadapter.NewHandler(svc, ready)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler, cfg.TrustProxyHeaders),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpcadapter.Register(grpcServer, grpcadapter.NewAffiliationInternalServer(svc))

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcHealth: healthSrv,
		grpcAddr:   fmt.Sprintf(":%d", cfg.GRPCPort),
		outbox:     outbox,
		cleanupFn: func(context.Context) {
			closeAll()
		},
	}, nil
}

// buildPublisher fans outbox events out to Kafka (or the log when no broker
// is configured) and to the mail dispatcher when mail is enabled.
func buildPublisher(cfg Config, logger *slog.Logger) (ports.EventPublisher, func(), error) {
	var (
		publishers []ports.EventPublisher
		closeFn    = func() {}
	)

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		publishers = append(publishers, kafka)
		closeFn = func() { _ = kafka.Close() }
	} else {
		logger.Warn("no kafka brokers configured, events are only logged")
		publishers = append(publishers, eventadapter.NewLoggingPublisher(logger))
	}

	if cfg.MailEnabled {
		mailer, err := mailadapter.NewSMTPMailer(mailadapter.SMTPConfig{
			Host:        cfg.MailHost,
			Port:        cfg.MailPort,
			Username:    cfg.MailUsername,
			Password:    cfg.MailPassword,
			FromName:    cfg.MailFromName,
			FromAddress: cfg.MailFromAddress,
			UseTLS:      cfg.MailUseTLS,
		})
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("init smtp mailer: %w", err)
		}
		publishers = append(publishers, eventadapter.NewMailDispatcher(logger, mailer))
	}

	return eventadapter.NewFanoutPublisher(publishers...), closeFn, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", r.grpcAddr)
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}
	r.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	r.grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
