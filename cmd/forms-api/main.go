package main

import (
	"context"
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

	_ "github.com/formlane/forms-api/api/swagger"
	"github.com/formlane/forms-api/internal/handler"
	"github.com/formlane/forms-api/internal/middleware"
	"github.com/formlane/forms-api/internal/repository"
	"github.com/formlane/forms-api/internal/service"
	"github.com/formlane/forms-api/pkg/cache"
	"github.com/formlane/forms-api/pkg/config"
	"github.com/formlane/forms-api/pkg/database"
	"github.com/formlane/forms-api/pkg/logger"
	corsmiddleware "github.com/formlane/forms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/formlane/forms-api/pkg/middleware/requestid"
	"github.com/formlane/forms-api/pkg/storage"
)

// @title Forms Engine API
// @version 1.0.0
// @description Form builder and submission engine
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	formRepo := repository.NewFormRepository(db)
	fieldRepo := repository.NewFieldRepository(db)
	resultRepo := repository.NewResultRepository(db)
	valueRepo := repository.NewValueRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Forms.ResultCacheTTL, logr, true)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "forms-api",
	})

	notificationSvc := service.NewNotificationService(
		userRepo, categoryRepo,
		&service.LogMailer{Logger: logr},
		metricsSvc, cfg.Notifications, logr,
	)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	var captchaSvc *service.CaptchaService
	var captcha service.CaptchaVerifier
	if cfg.Forms.CaptchaEnabled {
		captchaSvc = service.NewCaptchaService(cacheRepo, cfg.Forms.CaptchaTTL, logr)
		captcha = captchaSvc
	}
	var spam service.SpamClassifier
	if cfg.Forms.SpamEnabled {
		spam = service.NewKeywordSpamClassifier(cfg.Forms.SpamTerms, cfg.Forms.SpamMaxLinks)
	}

	formSvc := service.NewFormService(formRepo, fieldRepo, resultRepo, valueRepo, cacheSvc, metricsSvc, validate, logr)
	fieldSvc := service.NewFieldService(fieldRepo, formRepo, cacheSvc, validate, logr)
	categorySvc := service.NewCategoryService(categoryRepo, validate, logr)
	resultSvc := service.NewResultService(formRepo, fieldRepo, resultRepo, valueRepo, logr)
	submissionSvc := service.NewSubmissionService(formRepo, fieldRepo, resultRepo, valueRepo, captcha, spam, notificationSvc, cacheSvc, metricsSvc, logr)

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(formRepo, fieldRepo, resultRepo, valueRepo, store, signer, metricsSvc, service.ExportConfig{
		Enabled:   cfg.Exports.Enabled,
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	if cfg.Exports.Enabled {
		exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	formHandler := handler.NewFormHandler(formSvc, submissionSvc)
	fieldHandler := handler.NewFieldHandler(fieldSvc)
	categoryHandler := handler.NewCategoryHandler(categorySvc)
	resultHandler := handler.NewResultHandler(resultSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	captchaHandler := handler.NewCaptchaHandler(captchaSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	// Rendering, submission and result access work for anonymous viewers
	// too, so token parsing is optional on the public surface.
	public := api.Group("")
	public.Use(middleware.OptionalJWT(authSvc))
	public.GET("/forms", formHandler.List)
	public.GET("/forms/:id/render", formHandler.Render)
	public.POST("/forms/:id/submit", formHandler.Submit)
	public.GET("/results/:resultId", resultHandler.Get)
	public.GET("/categories", categoryHandler.List)
	public.GET("/categories/:id", categoryHandler.Get)
	if captchaSvc != nil {
		public.GET("/captcha", captchaHandler.Challenge)
	}

	// Export downloads are authorized by the signed token alone.
	api.GET("/exports/:token", exportHandler.Download)

	private := api.Group("")
	private.Use(middleware.JWT(authSvc))
	private.GET("/forms/:id", formHandler.Get)
	private.POST("/forms", formHandler.Save)
	private.POST("/forms/:id/copy", formHandler.Duplicate)
	private.DELETE("/forms/:id", formHandler.Delete)

	private.GET("/forms/:id/fields", fieldHandler.List)
	private.POST("/forms/:id/fields", fieldHandler.Create)
	private.POST("/forms/:id/fields/reorder", fieldHandler.Reorder)
	private.GET("/forms/:id/fields/:fieldId", fieldHandler.Get)
	private.PUT("/forms/:id/fields/:fieldId", fieldHandler.Update)
	private.DELETE("/forms/:id/fields/:fieldId", fieldHandler.Delete)
	private.POST("/forms/:id/fields/:fieldId/move", fieldHandler.Move)

	private.GET("/forms/:id/results", resultHandler.List)
	private.POST("/results/:resultId/approve", resultHandler.Approve)
	private.DELETE("/results/:resultId", resultHandler.Delete)

	private.POST("/forms/:id/export", exportHandler.Generate)

	private.GET("/stats", middleware.RequireRoot(), metricsHandler.Stats)

	root := api.Group("/categories")
	root.Use(middleware.JWT(authSvc), middleware.RequireRoot())
	root.POST("", categoryHandler.Create)
	root.PUT("/:id", categoryHandler.Update)
	root.DELETE("/:id", categoryHandler.Delete)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
