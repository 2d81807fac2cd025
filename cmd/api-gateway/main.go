package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/stpaulclark/merit-api/api/swagger"
	"github.com/stpaulclark/merit-api/internal/handler"
	"github.com/stpaulclark/merit-api/internal/middleware"
	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/repository"
	"github.com/stpaulclark/merit-api/internal/service"
	"github.com/stpaulclark/merit-api/pkg/cache"
	"github.com/stpaulclark/merit-api/pkg/config"
	"github.com/stpaulclark/merit-api/pkg/database"
	"github.com/stpaulclark/merit-api/pkg/logger"
	corsmiddleware "github.com/stpaulclark/merit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/stpaulclark/merit-api/pkg/middleware/requestid"
	"github.com/stpaulclark/merit-api/pkg/storage"
)

// @title St. Paul Clark Merit API
// @version 1.0.0
// @description Merit and demerit ledger for St. Paul Clark school
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	raffleRepo := repository.NewRaffleRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	verifier := service.NewGoogleVerifier(cfg.Auth.GoogleClientID)
	authSvc := service.NewAuthService(verifier, userRepo, rosterRepo, cfg.Auth, validate, logr)

	ledgerSvc := service.NewLedgerService(recordRepo, quotaRepo, settingsRepo, yearRepo, rosterRepo, userRepo,
		cacheSvc, metricsSvc, cfg.Ledger, cfg.Raffle.Enabled, validate, logr)
	quotaSvc := service.NewQuotaService(quotaRepo, recordRepo, cfg.Ledger.WeeklyQuotaDefault, logr)
	rewardSvc := service.NewRewardService(rewardRepo, recordRepo, settingsRepo, yearRepo, userRepo,
		cfg.Ledger.PassThreshold, cfg.Ledger.DetentionThreshold, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, userRepo, cacheSvc, logr)
	rosterSvc := service.NewRosterService(rosterRepo, yearRepo, validate, logr)
	raffleSvc := service.NewRaffleService(raffleRepo, yearRepo, settingsRepo, userRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(recordRepo, rewardRepo, raffleRepo, rewardSvc, quotaSvc,
		settingsRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(reportRepo, recordRepo, yearRepo, store, signer, cfg.Reports, validate, logr)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	recordHandler := handler.NewRecordHandler(ledgerSvc)
	quotaHandler := handler.NewQuotaHandler(quotaSvc)
	rewardHandler := handler.NewRewardHandler(rewardSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Login and refresh sit outside the JWT gate; report downloads are
	// authorized by the signed token instead.
	api.POST("/auth/google/callback", authHandler.Callback)
	api.POST("/auth/refresh", authHandler.Refresh)

	staff := middleware.RequireRoles(models.RoleTeacher, models.RolePrincipal, models.RoleAdmin)
	leadership := middleware.RequireRoles(models.RolePrincipal, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staffOrSelf := middleware.RBAC(string(models.RoleTeacher), string(models.RolePrincipal), string(models.RoleAdmin), "SELF")

	auth := api.Group("")
	auth.Use(middleware.JWT(authSvc))
	{
		auth.POST("/auth/logout", authHandler.Logout)
		auth.GET("/auth/me", authHandler.Me)

		auth.POST("/records", staff, recordHandler.Issue)
		auth.GET("/records", staff, recordHandler.List)
		auth.GET("/records/:id", recordHandler.Get)
		auth.PATCH("/records/:id", staff, recordHandler.Edit)
		auth.DELETE("/records/:id", staff, recordHandler.Delete)

		auth.GET("/quota", staff, quotaHandler.Status)
		auth.PUT("/quota/:id", leadership, quotaHandler.SetLimit)
		auth.GET("/quota/overview", leadership, quotaHandler.WeekOverview)

		auth.GET("/students", staff, rosterHandler.ListStudents)
		auth.POST("/students", leadership, rosterHandler.CreateStudent)
		auth.GET("/students/:id", staffOrSelf, rosterHandler.GetStudent)
		auth.DELETE("/students/:id", leadership, rosterHandler.DeactivateStudent)
		auth.GET("/students/:id/records", staffOrSelf, recordHandler.ListForStudent)
		auth.GET("/students/:id/progress", staffOrSelf, rewardHandler.Progress)
		auth.GET("/students/:id/passes", staffOrSelf, rewardHandler.ListPasses)
		auth.POST("/students/:id/rederive", adminOnly, rewardHandler.Rederive)

		auth.GET("/detentions", staff, rewardHandler.ListDetentions)
		auth.PATCH("/detentions/:id", leadership, rewardHandler.ResolveDetention)

		auth.GET("/teachers", leadership, rosterHandler.ListTeachers)
		auth.POST("/teachers", adminOnly, rosterHandler.CreateTeacher)
		auth.DELETE("/teachers/:id", adminOnly, rosterHandler.DeactivateTeacher)
		auth.GET("/academic-years", staff, rosterHandler.ListAcademicYears)

		auth.GET("/period", settingsHandler.CurrentPeriod)
		auth.POST("/period/reset", leadership, settingsHandler.ResetPeriod)

		auth.GET("/dashboard/school", leadership, dashboardHandler.School)
		auth.GET("/dashboard/teacher", staff, dashboardHandler.Teacher)
		auth.GET("/dashboard/students/:id", staffOrSelf, dashboardHandler.Student)

		auth.GET("/metrics/snapshot", adminOnly, metricsHandler.Snapshot)

		if cfg.Raffle.Enabled {
			raffleHandler := handler.NewRaffleHandler(raffleSvc)
			auth.POST("/raffle/prizes", leadership, raffleHandler.CreatePrize)
			auth.GET("/raffle/prizes", staff, raffleHandler.ListPrizes)
			auth.POST("/raffle/prizes/:id/draw", leadership, raffleHandler.Draw)
			auth.GET("/students/:id/raffle-entries", staffOrSelf, raffleHandler.Entries)
		}

		if reportSvc != nil {
			reportHandler := handler.NewReportHandler(reportSvc)
			auth.POST("/reports", leadership, reportHandler.Generate)
			auth.GET("/reports", leadership, reportHandler.List)
			auth.GET("/reports/:id", leadership, reportHandler.Get)
			auth.GET("/reports/:id/link", leadership, reportHandler.Link)
			api.GET("/reports/:id/download", reportHandler.Download)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reportSvc != nil {
		reportSvc.Start(ctx)
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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
	if reportSvc != nil {
		reportSvc.Stop()
	}
}
