package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/bootstrap"
	"github.com/noah-isme/cbc-grading-api/internal/config"
	"github.com/noah-isme/cbc-grading-api/internal/database"
	"github.com/noah-isme/cbc-grading-api/internal/handler"
	"github.com/noah-isme/cbc-grading-api/internal/middleware"
	"github.com/noah-isme/cbc-grading-api/internal/repository"
	"github.com/noah-isme/cbc-grading-api/internal/router"
	"github.com/noah-isme/cbc-grading-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	level := zerolog.InfoLevel
	if cfg.AppEnv == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	records, err := bootstrap.OpenRecords(cfg, logger)
	if err != nil {
		log.Fatalf("failed to open records backend: %v", err)
	}
	defer records.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New(validator.WithRequiredStructEnabled())

	toasts := service.NewToastCenter(natsConn, cfg.NATSChannel, cfg.ToastFeedSize, logger)
	toasts.Start(ctx)

	mastery := service.NewMasteryService(records, redisClient, cfg.MasteryCacheTTL, validate, logger)

	recorderOpts := []service.RecorderOption{
		service.WithGradedEventPublisher(service.NewNATSGradedPublisher(natsConn, cfg.NATSChannel, logger)),
		service.WithMasteryInvalidator(mastery),
		service.WithWriteConcurrency(cfg.WriteConcurrency),
		service.WithWriteTimeout(cfg.WriteTimeout),
	}
	sessionOpts := []service.SessionManagerOption{
		service.WithNotifier(toasts),
		service.WithSessionTTL(cfg.SessionTTL),
	}

	var activityHandler *handler.ActivityHandler
	if records.DB != nil {
		activity := service.NewActivityService(repository.NewActivityRepository(records.DB), validate, logger)
		recorderOpts = append(recorderOpts, service.WithActivityRecorder(activity))
		sessionOpts = append(sessionOpts, service.WithSessionActivity(activity))
		activityHandler = handler.NewActivityHandler(activity, logger)
	}

	recorder := service.NewAssessmentRecorder(records, validate, logger, recorderOpts...)
	sessions := service.NewSessionManager(records, recorder, validate, logger, sessionOpts...)
	sessions.Start(ctx, cfg.SweepInterval)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		CBCHandler:          handler.NewCBCHandler(),
		GradingHandler:      handler.NewGradingHandler(sessions, logger),
		MasteryHandler:      handler.NewMasteryHandler(mastery, logger),
		NotificationHandler: handler.NewNotificationHandler(toasts, logger, cfg.StreamKeepAlive),
		ActivityHandler:     activityHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		CommitLimiter:       middleware.RateLimit("grading_commit", cfg.CommitRateLimit, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(app, logger)
}

func shutdown(app *fiber.App, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
