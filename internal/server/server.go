package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/config"
	"github.com/wpsteward/steward/internal/service"
	"github.com/wpsteward/steward/internal/service/reminder"
	"github.com/wpsteward/steward/internal/service/wordpress"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	WordPress *wordpress.Service
	Posts     *service.PostService
	Reminders *reminder.Batcher
	History   *service.HistoryService
	Auth      *service.AuthService
	Scheduler *service.Scheduler
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return NewServerWithDB(cfg, db, logger), nil
}

// NewServerWithDB wires every service on top of an open database.
func NewServerWithDB(cfg *config.Config, db *gorm.DB, logger *zap.Logger, reminderOpts ...reminder.Option) *Server {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize services
	history := service.NewHistoryService(db, logger)
	wp := wordpress.NewService(&cfg.WordPress, db, history, logger)
	reminders := reminder.NewBatcher(cfg.Mail, cfg.Reminder, db, history, logger, reminderOpts...)

	srv := &Server{
		Config:    cfg,
		DB:        db,
		Router:    gin.New(),
		Logger:    logger,
		WordPress: wp,
		Posts:     service.NewPostService(db, logger),
		Reminders: reminders,
		History:   history,
		Auth:      service.NewAuthService(logger, cfg.Auth.TOTPSecret, cfg.Auth.SessionTTL),
		Scheduler: service.NewScheduler(&cfg.Scheduler, logger, reminders),
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Post listings and CSV exports get large
	s.Router.Use(gzip.Gzip(gzip.DefaultCompression))
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	if s.Config.Auth.Enabled {
		api.Use(s.Auth.AuthMiddleware())
	}
	{
		api.POST("/auth/login", s.handleLogin)
		api.POST("/auth/logout", s.handleLogout)

		// WordPress sync routes
		wp := api.Group("/wordpress")
		{
			wp.GET("/sync", s.handleProbe)
			wp.POST("/sync", s.handleSyncPage)
			wp.POST("/sync-all", s.handleSyncAll)
			wp.POST("/import", s.handleImport)
		}

		// Post routes
		posts := api.Group("/posts")
		{
			posts.GET("", s.handleListPosts)
			posts.GET("/export", s.handleExportPosts)
			posts.POST("/email", s.handleSaveEmail)
			posts.POST("/delete-all", s.handleDeleteAll)
			posts.POST("/delete-selected", s.handleDeleteSelected)
		}

		// Reminder routes
		reminders := api.Group("/reminders")
		{
			reminders.POST("/send", s.handleSendReminders)
			reminders.POST("/test", s.handleSendTest)
			reminders.POST("/test-grouped", s.handleSendTestGrouped)
		}

		api.GET("/runs", s.handleListRuns)
	}
}

// respondError maps service errors onto status codes. Bodies always carry
// {success:false, error}.
func (s *Server) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	var upstreamErr *wordpress.UpstreamError
	switch {
	case errors.Is(err, service.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrPostNotFound), errors.Is(err, reminder.ErrPostNotFound):
		status, message = http.StatusNotFound, "Post not found"
	case errors.Is(err, reminder.ErrNoPostsForEmail):
		status, message = http.StatusNotFound, reminder.ErrNoPostsForEmail.Error()
	case errors.Is(err, reminder.ErrNoRecipient):
		status, message = http.StatusBadRequest, reminder.ErrNoRecipient.Error()
	case errors.Is(err, wordpress.ErrNoUpstreamData):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &upstreamErr):
		message = upstreamErr.Error()
	case errors.Is(err, wordpress.ErrUpstreamUnavailable),
		errors.Is(err, reminder.ErrTransport),
		errors.Is(err, reminder.ErrDeliveryFailure):
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error(fallback, zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
