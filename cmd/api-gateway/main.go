package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lti-assignments-api/api/swagger"
	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/handler"
	"github.com/noah-isme/lti-assignments-api/internal/lti"
	internalmiddleware "github.com/noah-isme/lti-assignments-api/internal/middleware"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
	"github.com/noah-isme/lti-assignments-api/internal/sampler"
	"github.com/noah-isme/lti-assignments-api/internal/service"
	"github.com/noah-isme/lti-assignments-api/pkg/cache"
	"github.com/noah-isme/lti-assignments-api/pkg/config"
	"github.com/noah-isme/lti-assignments-api/pkg/database"
	"github.com/noah-isme/lti-assignments-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lti-assignments-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lti-assignments-api/pkg/middleware/requestid"
	"github.com/noah-isme/lti-assignments-api/pkg/storage"
)

// @title LTI Assignments API
// @version 1.0.0
// @description Task and quiz assignments launched from a learning platform, with grading and score passback.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	var redisClient *redis.Client
	if cfg.PoolCache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, quiz pool cache disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.PoolCache.TTL, logr, cfg.PoolCache.Enabled)

	var notifier events.Notifier = events.Noop{}
	if cfg.Events.Enabled {
		natsNotifier, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logr)
		if err != nil {
			logr.Sugar().Warnw("nats unavailable, lifecycle events disabled", "error", err)
		} else {
			defer natsNotifier.Close()
			notifier = natsNotifier
		}
	}

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	groupRepo := repository.NewTaskGroupRepository(db)
	consumerRepo := repository.NewConsumerRepository(db)

	lifecycleOpts := []service.LifecycleOption{
		service.WithNotifier(notifier),
		service.WithMetrics(metrics),
	}
	quizSampler := sampler.New(rand.NewSource(time.Now().UnixNano()))
	pool := service.NewQuizPool(assignmentRepo, cacheSvc)

	assignmentSvc := service.NewAssignmentService(assignmentRepo, taskRepo, validate, logr, lifecycleOpts...)
	submissionSvc := service.NewSubmissionService(assignmentRepo, submissionRepo, pool, quizSampler, validate, logr, lifecycleOpts...)
	taskSvc := service.NewTaskService(service.TaskStores{
		Assignments: assignmentRepo,
		Submissions: submissionRepo,
		Tasks:       taskRepo,
		Groups:      groupRepo,
		Pool:        pool,
	}, submissionSvc, quizSampler, validate, cfg.Scoring.MaxTaskScore, logr, lifecycleOpts...)

	publishSvc := service.NewPublishService(consumerRepo, assignmentRepo, submissionRepo, newPublishSink(cfg.Publish, logr), service.PublishSettings{
		Timeout:    cfg.Publish.Timeout,
		Workers:    cfg.Publish.Workers,
		Retries:    cfg.Publish.Retries,
		RetryDelay: cfg.Publish.RetryDelay,
	}, validate, logr, lifecycleOpts...)
	publishSvc.Start(ctx)
	defer publishSvc.Stop()

	sessionSvc := service.NewSessionService(consumerRepo, service.NewRoleResolver(cfg.Roles), validate, logr, service.SessionConfig{
		Secret: cfg.JWT.Secret,
		TTL:    cfg.JWT.Expiration,
	})

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("export storage unavailable", "error", err)
	}
	exportSvc := service.NewGradeExportService(assignmentRepo, submissionRepo, exportStore,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.MaxAge}, logr)
	go exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	if cfg.Sweeper.Enabled {
		sweeper := service.NewExpirySweeper(assignmentRepo, submissionRepo, submissionSvc, cfg.Sweeper.Interval, cfg.Sweeper.Lookback, logr, lifecycleOpts...)
		go sweeper.Start(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, logger.AccessLogOptions{
		SkipPaths: []string{"/health", "/ready", "/metrics"},
		Fields:    []logger.FieldsFunc{sessionLogFields},
	}))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta(nil))

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Sessions:    handler.NewSessionHandler(sessionSvc),
		Assignments: handler.NewAssignmentHandler(assignmentSvc),
		Submissions: handler.NewSubmissionHandler(submissionSvc, publishSvc),
		Tasks:       handler.NewTaskHandler(taskSvc),
		Exports:     handler.NewExportHandler(exportSvc),
	}, sessionSvc, cfg.JWT.LaunchKey)

	if cfg.JWT.LaunchKey == "" {
		logr.Warn("JWT_LAUNCH_KEY is empty, session issuance is disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func newPublishSink(cfg config.PublishConfig, logr *zap.Logger) lti.Publisher {
	if cfg.Sink == config.PublishSinkAGS {
		return lti.NewAGSPublisher(lti.AGSConfig{
			TokenURL:     cfg.AGSTokenURL,
			ClientID:     cfg.AGSClientID,
			ClientSecret: cfg.AGSSecret,
			Scopes:       cfg.AGSScopes,
			ScoresSuffix: cfg.AGSLineItems,
			Timeout:      cfg.Timeout,
		}, logr)
	}
	return lti.NewLTI11Publisher(nil, cfg.Timeout, logr)
}

func sessionLogFields(c *gin.Context) []zap.Field {
	value, ok := c.Get(internalmiddleware.ContextSessionKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.SessionClaims)
	if !ok {
		return nil
	}
	return []zap.Field{
		zap.String("consumer_id", claims.ConsumerID),
		zap.String("user_id", claims.UserID),
		zap.String("role", string(claims.Role)),
	}
}
