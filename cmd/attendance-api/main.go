package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/studyhall-attendance/api/swagger"
	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/handler"
	"github.com/noah-isme/studyhall-attendance/internal/middleware"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/internal/repository"
	"github.com/noah-isme/studyhall-attendance/internal/scheduler"
	"github.com/noah-isme/studyhall-attendance/internal/service"
	"github.com/noah-isme/studyhall-attendance/pkg/cache"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	"github.com/noah-isme/studyhall-attendance/pkg/config"
	"github.com/noah-isme/studyhall-attendance/pkg/database"
	"github.com/noah-isme/studyhall-attendance/pkg/jobs"
	"github.com/noah-isme/studyhall-attendance/pkg/logger"
	corsmiddleware "github.com/noah-isme/studyhall-attendance/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studyhall-attendance/pkg/middleware/requestid"
)

// @title Study Hall Attendance API
// @version 1.0.0
// @description Seat-based attendance for self-study halls: daily generation, kiosk PIN check-in/out and absence sweeps.
// @BasePath /api/v1
// @schemes http
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("attendance api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		if version, err := database.Version(ctx, db); err == nil {
			logr.Info("database migrated", zap.Int64("version", version))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Scope caching and job locks degrade to no-ops without Redis.
		logr.Warn("redis unavailable, continuing without cache and locks", zap.Error(err))
	} else {
		defer redisClient.Close()
	}

	civil, err := civiltime.New(cfg.Attendance.Timezone, nil)
	if err != nil {
		return err
	}

	tenantRepo := repository.NewTenantRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	seatRepo := repository.NewSeatAssignmentRepository(db)
	recordRepo := repository.NewAttendanceRecordRepository(db)
	pinRepo := repository.NewPinCredentialRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	lockRepo := repository.NewLockRepository(redisClient)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	policy := attendance.GracePolicy{ResponseWindow: cfg.Attendance.ResponseWindow, GracePeriod: cfg.Attendance.GracePeriod}

	tokenSvc := service.NewTokenService(tenantRepo, cacheRepo, service.TokenConfig{
		AdminSecret:   cfg.JWT.Secret,
		AdminIssuer:   cfg.JWT.Issuer,
		AdminExpiry:   cfg.JWT.Expiration,
		ScopeSecret:   cfg.ScopeToken.Secret,
		ScopeTokenTTL: cfg.ScopeToken.TTL,
	}, logr)
	pinSvc := service.NewPinService(pinRepo, studentRepo, validate, logr, service.PinConfig{
		MaxFailedAttempts: cfg.Attendance.PinMaxFailedAttempts,
		HashCost:          cfg.Attendance.PinHashCost,
		Length:            cfg.Attendance.PinLength,
	})
	checkSvc := service.NewCheckService(tokenSvc, seatRepo, pinSvc, studentRepo, recordRepo, civil, metricsSvc, validate, logr)
	generationSvc := service.NewGenerationService(tenantRepo, seatRepo, timetableRepo, recordRepo, civil, metricsSvc, logr,
		service.GenerationConfig{BatchLimit: cfg.Attendance.BatchLimit})
	transitionSvc := service.NewTransitionService(tenantRepo, recordRepo, civil, metricsSvc, logr)
	finalizerSvc := service.NewFinalizerService(tenantRepo, recordRepo, policy, civil, metricsSvc, logr)
	adminSvc := service.NewAdminAttendanceService(recordRepo, policy, civil, metricsSvc, validate, logr)
	propagationSvc := service.NewPropagationService(seatRepo, metricsSvc, logr, cfg.Attendance.BatchLimit)

	propagationQueue := jobs.NewQueue(service.PropagationJobType, propagationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Propagation.Workers,
		MaxRetries: cfg.Propagation.Retries,
		RetryDelay: cfg.Propagation.RetryDelay,
		Logger:     logr,
		DeadLetter: propagationSvc.DeadLetter,
	})
	propagationQueue.Start(ctx)
	defer propagationQueue.Stop()

	scheduleSvc := service.NewScheduleService(timetableRepo, studentRepo, propagationQueue, validate, logr, cfg.Scheduler.StartInterval)
	jobRunner := service.NewJobRunner(generationSvc, transitionSvc, finalizerSvc, lockRepo, civil, metricsSvc, validate, logr,
		service.JobRunnerConfig{Timeout: cfg.Scheduler.JobTimeout, LockTTL: cfg.Scheduler.LockTTL})

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(jobRunner, civil, logr, scheduler.Config{
			GenerationTime:   cfg.Scheduler.GenerationTime,
			OperatingStart:   cfg.Scheduler.OperatingStart,
			OperatingEnd:     cfg.Scheduler.OperatingEnd,
			StartInterval:    cfg.Scheduler.StartInterval,
			FinalizeInterval: cfg.Scheduler.FinalizeInterval,
		})
		if err != nil {
			return fmt.Errorf("configure scheduler: %w", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	router := newRouter(cfg, logr, routes{
		tokens:     tokenSvc,
		metrics:    metricsSvc,
		check:      handler.NewCheckHandler(checkSvc),
		credential: handler.NewCredentialHandler(tokenSvc, pinSvc),
		timetable:  handler.NewTimetableHandler(scheduleSvc),
		attendance: handler.NewAttendanceHandler(adminSvc),
		jobs:       handler.NewJobHandler(jobRunner),
		health:     handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Scheduler.JobTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server forced shutdown", zap.Error(err))
	}
	return nil
}

type routes struct {
	tokens     middleware.TokenValidator
	metrics    *service.MetricsService
	check      *handler.CheckHandler
	credential *handler.CredentialHandler
	timetable  *handler.TimetableHandler
	attendance *handler.AttendanceHandler
	jobs       *handler.JobHandler
	health     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metrics))

	r.GET("/health", h.health.Health)
	r.GET("/ready", h.health.Ready)
	r.GET("/metrics", h.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/checks/pin", h.check.PinCheck)

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(h.tokens), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	admin.POST("/scope-tokens", h.credential.IssueScopeToken)
	admin.POST("/students/:studentId/pin", h.credential.IssuePin)
	admin.POST("/students/:studentId/pin/unlock", h.credential.UnlockPin)
	admin.GET("/students/:studentId/timetable", h.timetable.Get)
	admin.PUT("/students/:studentId/timetable", h.timetable.Update)
	admin.GET("/attendance", h.attendance.List)
	admin.GET("/attendance/unclosed", h.attendance.Unclosed)
	admin.POST("/attendance/:recordId/excuse", h.attendance.Excuse)
	admin.POST("/attendance/:recordId/override", h.attendance.Override)
	admin.POST("/jobs/:job/run", h.jobs.Run)

	return r
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
