package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/cache"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/database"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/events"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/handlers"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/jobs"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/log"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/notify"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/ratelimit"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/security"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/server"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/service"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/storage"
)

type resources struct {
	mongo     *mongo.Client
	postgres  *pgxpool.Pool
	redis     *redis.Client
	publisher events.Publisher
	auth      *service.AuthService
	scheduler *jobs.Scheduler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()
	res := resources{}

	res.mongo, err = database.NewMongoClient(ctx, cfg.Mongo)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mongo")
	}
	db := res.mongo.Database(cfg.Mongo.Database)
	if err := database.EnsureUserCollection(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare users collection")
	}
	users := repository.NewUserRepository(db, cfg.Mongo.Timeout)

	checks := map[string]handlers.HealthCheck{
		"mongo": func(ctx context.Context) error { return res.mongo.Ping(ctx, readpref.Primary()) },
	}

	// The activity ledger is optional; interfaces stay nil without it.
	var (
		recorder service.ActivityRecorder
		lister   service.ActivityLister
		pruner   jobs.ActivityPruner
	)
	if cfg.Postgres.DSN != "" {
		res.postgres, err = database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		ledger := repository.NewActivityRepository(res.postgres)
		if err := ledger.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare activity schema")
		}
		recorder, lister, pruner = ledger, ledger, ledger
		checks["postgres"] = func(ctx context.Context) error { return res.postgres.Ping(ctx) }
	}

	res.redis, err = cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	checks["redis"] = func(ctx context.Context) error { return res.redis.Ping(ctx).Err() }

	var avatars service.AvatarStore
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		avatars = objectStore
	}

	mailer, err := notify.NewMailer(cfg.Mail, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init mailer")
	}

	res.publisher, err = events.NewPublisher(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init event publisher")
	}

	tokens := security.NewTokenService(cfg.Security)
	res.auth = service.NewAuthService(service.AuthDeps{
		Users:    users,
		Tokens:   tokens,
		Hasher:   security.NewPasswordHasher(cfg.Security.BcryptCost),
		Mailer:   mailer,
		Composer: notify.NewComposer(cfg.Mail.AppName, cfg.Mail.FrontendBaseURL),
		Events:   res.publisher,
		Activity: recorder,
		Security: cfg.Security,
		Log:      logger,
	})

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:      logger,
		Config:   cfg,
		Auth:     res.auth,
		Profiles: service.NewProfileService(users, avatars, lister, cfg.Storage.MaxAvatarSize, logger),
		Admin:    service.NewAdminService(users),
		Tokens:   tokens,
		Users:    users,
		Limiter:  ratelimit.New(res.redis, "tutorhub:ratelimit", cfg.RateLimit.Rate, cfg.RateLimit.Burst),
		Checks:   checks,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	res.scheduler = jobs.NewScheduler(cfg.Jobs, users, pruner, logger)
	if err := res.scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, res)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, res resources) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-res.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("maintenance jobs still running at shutdown")
	}

	res.auth.Wait()
	if err := res.publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("event publisher close error")
	}

	if res.postgres != nil {
		res.postgres.Close()
	}
	if err := res.redis.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}
	if err := res.mongo.Disconnect(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("mongo disconnect error")
	}

	logger.Info().Msg("server exited cleanly")
}
