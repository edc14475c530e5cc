package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/diarisk/health-api/internal/config"
	"github.com/diarisk/health-api/internal/email"
	adminhandler "github.com/diarisk/health-api/internal/handler/admin"
	authhandler "github.com/diarisk/health-api/internal/handler/auth"
	healthhandler "github.com/diarisk/health-api/internal/handler/health"
	logshandler "github.com/diarisk/health-api/internal/handler/logs"
	systemhandler "github.com/diarisk/health-api/internal/handler/system"
	"github.com/diarisk/health-api/internal/middleware"
	"github.com/diarisk/health-api/internal/repository/postgres"
	"github.com/diarisk/health-api/internal/router"
	"github.com/diarisk/health-api/internal/scorer"
	accountService "github.com/diarisk/health-api/internal/service/account"
	adminService "github.com/diarisk/health-api/internal/service/admin"
	auditService "github.com/diarisk/health-api/internal/service/audit"
	measurementService "github.com/diarisk/health-api/internal/service/measurement"
	mfaService "github.com/diarisk/health-api/internal/service/mfa"
	prescriptionService "github.com/diarisk/health-api/internal/service/prescription"
	tokenService "github.com/diarisk/health-api/internal/service/token"
	trendsService "github.com/diarisk/health-api/internal/service/trends"
	"github.com/diarisk/health-api/pkg/logger"
	"github.com/diarisk/health-api/pkg/messaging/redis"
	"github.com/diarisk/health-api/pkg/metrics"
	"github.com/diarisk/health-api/pkg/security"
	"github.com/diarisk/health-api/pkg/shield"
	"github.com/diarisk/health-api/pkg/worker"
)

func main() {
	log := logger.NewLogger(nil).Zerolog()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	codec, err := security.NewCodec(cfg.Secrets.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize codec")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	measurementRepo := postgres.NewMeasurementRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)
	historyRepo := postgres.NewActionHistoryRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	m := metrics.New("health_api")
	shaper := shield.NewShaper(codec, log, m)

	scorerClient := scorer.NewClient(scorer.Config{
		BaseURL:        cfg.Scorer.BaseURL,
		Timeout:        cfg.Scorer.Timeout,
		MaxFailures:    cfg.Scorer.MaxFailures,
		BreakerTimeout: cfg.Scorer.BreakerTimeout,
	}, m)

	var emailSvc email.Service = email.Noop{}
	if cfg.SMTP.Host != "" {
		emailSvc = email.NewService(cfg.SMTP, cfg.Secrets.SMTPPassword)
	}

	principalCache := middleware.NewPrincipalCache()

	accountSvc := accountService.NewService(userRepo, shaper, emailSvc, cfg.CORS.FrontendOrigin, log)
	mfaSvc := mfaService.NewService(userRepo, codec, cfg.Secrets.TokenIssuer, principalCache, m)
	auditSvc := auditService.NewService(historyRepo, outboxRepo, log)
	adminSvc := adminService.NewService(userRepo, measurementRepo, prescriptionRepo, shaper, auditSvc, log)
	measurementSvc := measurementService.NewService(measurementRepo, userRepo, shaper, scorerClient, log)
	trendsSvc := trendsService.NewService(measurementRepo, userRepo, shaper, cfg.Trends.MaxOwners, log)
	prescriptionSvc := prescriptionService.NewService(prescriptionRepo, userRepo, shaper, log)

	verifier := tokenService.NewVerifier(tokenService.Config{
		Secret: cfg.Secrets.TokenSecret,
		Issuer: cfg.Secrets.TokenIssuer,
	})
	authMiddleware := middleware.NewAuthMiddleware(verifier, userRepo, mfaSvc, principalCache, log)

	r := router.New(
		authMiddleware,
		codec,
		authhandler.NewHandler(accountSvc, mfaSvc),
		healthhandler.NewHandler(measurementSvc, trendsSvc, prescriptionSvc),
		adminhandler.NewHandler(adminSvc),
		logshandler.NewHandler(log, cfg.Logs.MaxBatchSize),
		systemhandler.NewHandler(db),
		log,
		router.Config{
			RateLimit:      rate.Limit(100),
			RateBurst:      200,
			Timeout:        time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			FrontendOrigin: cfg.CORS.FrontendOrigin,
			MetricsPrefix:  "health_api",
		},
	)
	r.Setup()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	if cfg.Redis.URL != "" {
		broker, err := redis.NewBroker(redis.Config{URL: cfg.Redis.URL}, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()

		processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.DefaultOutboxProcessorConfig(), log, m)
		go processor.Start(workerCtx)
	}

	srv := &http.Server{
		Addr:      fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:   r.Engine(),
		TLSConfig: &tls.Config{MinVersion: cfg.Server.MinTLSVersion()},
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
