package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/openlms/lms-api/api/swagger"
	"github.com/openlms/lms-api/internal/handler"
	"github.com/openlms/lms-api/internal/middleware"
	"github.com/openlms/lms-api/internal/models"
	"github.com/openlms/lms-api/internal/repository"
	"github.com/openlms/lms-api/internal/service"
	"github.com/openlms/lms-api/pkg/cache"
	"github.com/openlms/lms-api/pkg/config"
	"github.com/openlms/lms-api/pkg/database"
	"github.com/openlms/lms-api/pkg/export"
	"github.com/openlms/lms-api/pkg/logger"
	corsmiddleware "github.com/openlms/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openlms/lms-api/pkg/middleware/requestid"
	"github.com/openlms/lms-api/pkg/storage"
)

// @title Open LMS API
// @version 1.0.0
// @description Learning management backend: enrollment, module rosters and graduation
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	classEnrollmentRepo := repository.NewClassEnrollmentRepository(db)
	moduleEnrollmentRepo := repository.NewModuleEnrollmentRepository(db)
	graduationRepo := repository.NewGraduationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	authSvc := service.NewAuthService(userRepo, activityRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lms-api",
	})
	userSvc := service.NewUserService(userRepo, batchRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, classRepo, validate, logr)
	moduleSvc := service.NewModuleService(moduleRepo, validate, logr)
	classEnrollmentSvc := service.NewClassEnrollmentService(classEnrollmentRepo, userRepo, classRepo, batchRepo, validate, logr)
	moduleEnrollmentSvc := service.NewModuleEnrollmentService(
		moduleEnrollmentRepo, moduleRepo, userRepo, classEnrollmentRepo,
		cacheRepo, cfg.Enrollment.StatsCacheTTL, validate, logr,
	)
	graduationSvc := service.NewGraduationService(
		graduationRepo, batchRepo, userRepo, classEnrollmentRepo, activityRepo,
		cfg.Certificates.NumberPrefix, validate, logr,
	)
	certificateStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare certificate storage", "error", err)
	}
	certificateSvc := service.NewCertificateService(
		graduationRepo, batchRepo, userRepo,
		export.NewCertificatePDF(),
		certificateStore,
		storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL),
		export.NewCSVExporter(),
		export.NewExcelExporter(),
		cfg.Certificates.Institution,
		logr,
	)
	activitySvc := service.NewActivityService(activityRepo, logr)
	metricsSvc := service.NewMetricsService()

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authSvc, handlers{
		auth:              handler.NewAuthHandler(authSvc),
		users:             handler.NewUserHandler(userSvc),
		classes:           handler.NewClassHandler(classSvc),
		batches:           handler.NewBatchHandler(batchSvc),
		modules:           handler.NewModuleHandler(moduleSvc),
		classEnrollments:  handler.NewClassEnrollmentHandler(classEnrollmentSvc, metricsSvc),
		moduleEnrollments: handler.NewModuleEnrollmentHandler(moduleEnrollmentSvc, metricsSvc),
		graduations:       handler.NewGraduationHandler(graduationSvc, metricsSvc),
		certificates:      handler.NewCertificateHandler(certificateSvc),
		activity:          handler.NewActivityHandler(activitySvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

type handlers struct {
	auth              *handler.AuthHandler
	users             *handler.UserHandler
	classes           *handler.ClassHandler
	batches           *handler.BatchHandler
	modules           *handler.ModuleHandler
	classEnrollments  *handler.ClassEnrollmentHandler
	moduleEnrollments *handler.ModuleEnrollmentHandler
	graduations       *handler.GraduationHandler
	certificates      *handler.CertificateHandler
	activity          *handler.ActivityHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, authSvc *service.AuthService, h handlers) {
	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)

	// Signed token carries its own authentication.
	api.GET("/certificates/download", h.certificates.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", h.auth.Logout)
	authed.PUT("/auth/password", h.auth.ChangePassword)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	admin := middleware.RequireRoles(models.RoleAdmin)

	users := authed.Group("/users")
	{
		users.GET("", staff, h.users.List)
		users.GET("/:id", middleware.RBAC("ADMIN", "TEACHER", "SELF"), h.users.Get)
		users.POST("", admin, h.users.Create)
		users.PUT("/:id", admin, h.users.Update)
		users.DELETE("/:id", admin, h.users.Deactivate)
	}

	classes := authed.Group("/classes")
	{
		classes.GET("", h.classes.List)
		classes.GET("/:id", h.classes.Get)
		classes.POST("", admin, h.classes.Create)
		classes.PUT("/:id", admin, h.classes.Update)
	}

	batches := authed.Group("/batches")
	{
		batches.GET("", h.batches.List)
		batches.GET("/:id", h.batches.Get)
		batches.POST("", admin, h.batches.Create)
		batches.PUT("/:id/status", admin, h.batches.Transition)
		batches.POST("/:id/classes", admin, h.batches.LinkClass)
		batches.GET("/:id/classes", h.batches.ListClasses)
		batches.GET("/:id/graduation-register.csv", staff, h.certificates.RegisterCSV)
		batches.GET("/:id/graduation-register.xlsx", staff, h.certificates.RegisterExcel)
	}

	modules := authed.Group("/modules")
	{
		modules.GET("", h.modules.List)
		modules.GET("/:id", h.modules.Get)
		modules.POST("", admin, h.modules.Create)
		modules.PUT("/:id", admin, h.modules.Update)
		modules.GET("/:id/enrollment-stats", staff, h.moduleEnrollments.Stats)
	}

	classEnrollments := authed.Group("/enrollments/classes")
	{
		classEnrollments.GET("", staff, h.classEnrollments.List)
		classEnrollments.GET("/:id", staff, h.classEnrollments.Get)
		classEnrollments.POST("", admin, h.classEnrollments.Enroll)
		classEnrollments.POST("/bulk", admin, h.classEnrollments.BulkEnroll)
		classEnrollments.POST("/batch", admin, h.classEnrollments.EnrollBatch)
		classEnrollments.PUT("/:id", staff, h.classEnrollments.Update)
		classEnrollments.PUT("/:id/complete", staff, h.classEnrollments.MarkCompleted)
		classEnrollments.DELETE("/:id", admin, h.classEnrollments.Unenroll)
		classEnrollments.POST("/:id/promote", admin, h.classEnrollments.Promote)
	}

	moduleEnrollments := authed.Group("/enrollments/modules")
	{
		moduleEnrollments.GET("", staff, h.moduleEnrollments.List)
		moduleEnrollments.POST("", admin, h.moduleEnrollments.Enroll)
		moduleEnrollments.POST("/bulk", admin, h.moduleEnrollments.BulkEnroll)
		moduleEnrollments.POST("/class", admin, h.moduleEnrollments.EnrollClass)
		moduleEnrollments.DELETE("/:id", admin, h.moduleEnrollments.Unenroll)
		moduleEnrollments.PUT("/:id/toggle", admin, h.moduleEnrollments.ToggleStatus)
	}

	graduations := authed.Group("/graduations")
	{
		graduations.GET("", staff, h.graduations.List)
		graduations.GET("/statistics", staff, h.graduations.Statistics)
		graduations.GET("/:id", staff, h.graduations.Get)
		graduations.POST("", admin, h.graduations.GraduateStudent)
		graduations.POST("/batch", admin, h.graduations.GraduateBatch)
		graduations.PUT("/:id", admin, h.graduations.Update)
		graduations.DELETE("/:id", admin, h.graduations.Revoke)
		graduations.POST("/:id/certificate", admin, h.certificates.Render)
		graduations.GET("/:id/certificate/url", staff, h.certificates.SignedURL)
	}

	authed.GET("/activity", admin, h.activity.List)
}
