package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/internal/handler"
	"github.com/teamloop/teamloop/internal/middleware"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/config"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/jwtutil"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/pkg/response"
	"github.com/teamloop/teamloop/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting teamloop server...", cfg.LogConfig()...)

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)

	// Realtime hub, optionally bridged over NATS for multi-instance fan-out
	hub := realtime.NewHub(log)
	if cfg.NATS.URL != "" {
		bridge, err := realtime.ConnectBridge(cfg.NATS.URL, hub, log)
		if err != nil {
			log.Fatal("Failed to connect NATS event bridge", zap.Error(err))
		}
		defer bridge.Close()
	}

	handler.Init(hub, cfg)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = response.ErrorHandler(log)

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	v1 := e.Group("/api/v1")

	// Authentication routes
	auth := v1.Group("/auth")
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)
	auth.POST("/refresh", handler.Refresh)

	// Realtime gateway; the socket authenticates itself during the
	// handshake with the same signed token, so it sits outside the REST
	// auth middleware.
	v1.GET("/chat/ws", handler.ServeWS)

	// Authenticated API
	api := v1.Group("", middleware.AuthMiddleware)

	// Self-service profile
	users := api.Group("/users")
	users.GET("/profile", handler.GetProfile)
	users.PATCH("/profile", handler.UpdateProfile)
	users.POST("/change-password", handler.ChangePassword)

	// Tenant-scoped chat surface
	chat := api.Group("/tenants/:tenantId/chat", middleware.RequireTenant)
	chat.GET("/channels", handler.ListChannels)
	chat.POST("/channels", handler.CreateChannel)
	chat.GET("/channels/:id", handler.GetChannel)
	chat.DELETE("/channels/:id", handler.DeleteChannel)
	chat.GET("/channels/:id/messages", handler.ListMessages)
	chat.POST("/channels/:id/messages", handler.SendMessage)
	chat.PATCH("/channels/:id/read", handler.MarkAsRead)
	chat.POST("/channels/:id/join", handler.JoinChannel)
	chat.POST("/channels/:id/leave", handler.LeaveChannel)
	chat.POST("/channels/:id/members", handler.AddMembers)
	chat.DELETE("/channels/:id/members/:userId", handler.RemoveMember)
	chat.GET("/direct-messages", handler.ListDirectMessages)
	chat.POST("/direct-messages", handler.CreateDirectMessage)
	chat.DELETE("/messages/:id", handler.DeleteMessage)

	// Cross-tenant admin surface
	admin := api.Group("/admin", middleware.RequireSuperAdmin)
	admin.GET("/tenants", handler.AdminListTenants)
	admin.PATCH("/tenants/:id", handler.AdminUpdateTenant)
	admin.DELETE("/tenants/:id", handler.AdminDeleteTenant)
	admin.GET("/users", handler.AdminListUsers)
	admin.PATCH("/users/:id", handler.AdminUpdateUser)
	admin.DELETE("/users/:id", handler.AdminDeleteUser)
	admin.GET("/analytics", handler.AdminAnalytics)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
