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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/studiva/campus-portal-api/api/swagger"
	"github.com/studiva/campus-portal-api/internal/handler"
	"github.com/studiva/campus-portal-api/internal/middleware"
	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/internal/repository"
	"github.com/studiva/campus-portal-api/internal/service"
	"github.com/studiva/campus-portal-api/pkg/cache"
	"github.com/studiva/campus-portal-api/pkg/config"
	"github.com/studiva/campus-portal-api/pkg/database"
	"github.com/studiva/campus-portal-api/pkg/jobs"
	"github.com/studiva/campus-portal-api/pkg/logger"
	corsmiddleware "github.com/studiva/campus-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studiva/campus-portal-api/pkg/middleware/requestid"
)

// @title Campus Portal API
// @version 1.0.0
// @description Student services portal: approval workflows, appointments, library and notifications
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	bookRepo := repository.NewBookRepository(db)
	borrowingRepo := repository.NewBorrowingRepository(db)
	hostelRepo := repository.NewHostelRepository(db)
	campusServiceRepo := repository.NewCampusServiceRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	txRunner := database.NewTxRunner(db)

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.Enabled && redisClient != nil, logr)

	notificationService := service.NewNotificationService(notificationRepo, userRepo, cacheService, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, cfg.Cache.UnreadCountTTL, logr)
	notificationService.Start(context.Background())
	defer notificationService.Stop()
	metricsService.RegisterQueueDepth("notifications", notificationService.QueueDepth)

	appliers := service.DefaultAppliers(
		service.NewEnrollApplier(courseRepo, enrollmentRepo),
		service.NewUnenrollApplier(enrollmentRepo),
		service.NewBorrowApplier(bookRepo, borrowingRepo, cfg.Borrowing.LoanPeriodDays),
		service.NewReturnApplier(bookRepo, borrowingRepo, cfg.Borrowing.FinePerDay, logr),
		service.NewNewUserApplier(userRepo, studentRepo),
	)
	requestService := service.NewRequestService(requestRepo, studentRepo, txRunner, notificationService, metricsService, appliers, validate, logr)

	appointmentService := service.NewAppointmentService(appointmentRepo, campusServiceRepo, studentRepo, txRunner,
		notificationService, cacheService, metricsService, cfg.Appointments, cfg.Cache.SlotTTL, validate, logr)

	authService := service.NewAuthService(userRepo, requestService, cfg.JWT, validate, logr)
	studentService := service.NewStudentService(studentRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, enrollmentRepo, validate, logr)
	bookService := service.NewBookService(bookRepo, validate, logr)
	borrowingService := service.NewBorrowingService(borrowingRepo, cfg.Borrowing.FinePerDay, logr)
	hostelService := service.NewHostelService(hostelRepo, validate, logr)
	campusServiceService := service.NewCampusServiceService(campusServiceRepo, validate, logr)
	announcementService := service.NewAnnouncementService(announcementRepo, notificationService, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	requestHandler := handler.NewRequestHandler(requestService, studentService)
	appointmentHandler := handler.NewAppointmentHandler(appointmentService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	announcementHandler := handler.NewAnnouncementHandler(announcementService)
	studentHandler := handler.NewStudentHandler(studentService)
	courseHandler := handler.NewCourseHandler(courseService)
	bookHandler := handler.NewBookHandler(bookService)
	borrowingHandler := handler.NewBorrowingHandler(borrowingService, studentService)
	hostelHandler := handler.NewHostelHandler(hostelService)
	campusServiceHandler := handler.NewCampusServiceHandler(campusServiceService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	{
		authed.POST("/requests", requestHandler.Create)
		authed.GET("/requests", requestHandler.List)
		authed.GET("/requests/:id", requestHandler.Get)
		authed.PUT("/requests/:id/status", middleware.RequireAdmin(), requestHandler.Decide)

		authed.POST("/appointments", appointmentHandler.Book)
		authed.GET("/appointments", appointmentHandler.List)
		authed.GET("/appointments/available-slots", appointmentHandler.Slots)
		authed.GET("/appointments/queue/today", appointmentHandler.Queue)
		authed.GET("/appointments/:id", appointmentHandler.Get)
		authed.GET("/appointments/:id/history", appointmentHandler.History)
		authed.PATCH("/appointments/:id/status", middleware.RequireAdmin(), appointmentHandler.UpdateStatus)
		authed.PATCH("/appointments/:id/cancel", appointmentHandler.Cancel)

		authed.GET("/notifications", notificationHandler.List)
		authed.GET("/notifications/unread/count/:userID", notificationHandler.UnreadCount)
		authed.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
		authed.PATCH("/notifications/read-all/:userID", notificationHandler.MarkAllRead)

		authed.GET("/announcements", announcementHandler.List)
		authed.GET("/announcements/:id", announcementHandler.Get)
		authed.POST("/announcements", middleware.RequireAdmin(), announcementHandler.Create)
		authed.PUT("/announcements/:id", middleware.RequireAdmin(), announcementHandler.Update)
		authed.DELETE("/announcements/:id", middleware.RequireAdmin(), announcementHandler.Delete)

		authed.GET("/students/me", studentHandler.Me)
		authed.GET("/students", middleware.RequireAdmin(), studentHandler.List)
		authed.POST("/students", middleware.RequireAdmin(), studentHandler.Create)
		authed.GET("/students/:id", middleware.RequireAdmin(), studentHandler.Get)

		authed.GET("/courses", courseHandler.List)
		authed.GET("/courses/:id", courseHandler.Get)
		authed.POST("/courses", middleware.RequireAdmin(), courseHandler.Create)
		authed.GET("/courses/:id/enrollments", middleware.RequireAdmin(), courseHandler.Enrollments)

		authed.GET("/books", bookHandler.List)
		authed.GET("/books/:id", bookHandler.Get)
		authed.POST("/books", middleware.RequireAdmin(), bookHandler.Create)

		authed.GET("/borrowings", borrowingHandler.List)
		authed.POST("/borrowings/sweep-overdue", middleware.RequireAdmin(), borrowingHandler.SweepOverdue)

		authed.GET("/hostels", hostelHandler.List)
		authed.POST("/hostels", middleware.RequireAdmin(), hostelHandler.Create)
		authed.GET("/hostels/:id/rooms", hostelHandler.Rooms)
		authed.POST("/hostels/:id/rooms", middleware.RequireAdmin(), hostelHandler.AddRoom)

		authed.GET("/services", campusServiceHandler.List)
		authed.GET("/services/:id", campusServiceHandler.Get)
		authed.POST("/services", middleware.RequireRoles(models.RoleAdmin), campusServiceHandler.Create)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
