package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"tradeinsight/internal/alerting"
	"tradeinsight/internal/auth"
	"tradeinsight/internal/cache"
	"tradeinsight/internal/config"
	"tradeinsight/internal/database"
	"tradeinsight/internal/logger"
	"tradeinsight/internal/middleware"
	"tradeinsight/internal/monitoring"
	"tradeinsight/internal/mt5"
	"tradeinsight/internal/security"
	"tradeinsight/internal/store"
)

// Server represents the API server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers

	db         *database.DB
	cache      cache.Cacher
	gateway    *mt5.Client
	jwtManager *auth.JWTManager
	metrics    *monitoring.Metrics

	alertManager   *alerting.Manager
	alertEvaluator *alerting.Evaluator
	rateLimiter    *middleware.RateLimiter

	stopPurge chan struct{}
}

// Handlers contains all API handlers
type Handlers struct {
	Auth      *AuthHandler
	Account   *AccountHandler
	Trade     *TradeHandler
	Market    *MarketHandler
	Risk      *RiskHandler
	Alert     *AlertHandler
	Admin     *AdminHandler
	WebSocket *WebSocketHandler
}

// NewServer creates a new API server
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(&database.Config{
		Path:            cfg.Database.Path,
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		Timeout:         cfg.Database.Timeout,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cacher := cache.NewCacher(&cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	encryptor, err := security.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	gateway, err := mt5.NewClient(&mt5.Config{
		BaseURL:           cfg.Gateway.BaseURL,
		Timeout:           cfg.Gateway.Timeout,
		MaxRetries:        cfg.Gateway.MaxRetries,
		RetryBaseDelay:    cfg.Gateway.RetryBaseDelay,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize gateway client: %w", err)
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Duration)
	metrics := monitoring.NewMetrics()

	accounts := store.NewAccountStore(db)
	trades := store.NewTradeStore(db)
	alerts := store.NewAlertStore(db)

	alertManager := alerting.NewManager(&cfg.Alerting)

	server := &Server{
		config:       cfg,
		router:       gin.New(),
		db:           db,
		cache:        cacher,
		gateway:      gateway,
		jwtManager:   jwtManager,
		metrics:      metrics,
		alertManager: alertManager,
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return checkWSOrigin(r, cfg.CORS.AllowedOrigins)
		},
	}

	marketHandler := NewMarketHandler(gateway, cacher, metrics)
	wsHandler := NewWebSocketHandler(upgrader, jwtManager, marketHandler, metrics)

	server.handlers = &Handlers{
		Auth:      NewAuthHandler(jwtManager, db, cfg.JWT.RefreshDuration),
		Account:   NewAccountHandler(accounts, gateway, encryptor, metrics),
		Trade:     NewTradeHandler(accounts, trades, gateway, encryptor, metrics),
		Market:    marketHandler,
		Risk:      NewRiskHandler(accounts, gateway, encryptor, metrics),
		Alert:     NewAlertHandler(alerts),
		Admin:     NewAdminHandler(db),
		WebSocket: wsHandler,
	}

	evaluator := alerting.NewEvaluator(&cfg.Alerting, alerts, accounts, marketHandler, alertManager)
	evaluator.SetPublisher(wsHandler)
	server.alertEvaluator = evaluator

	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.ErrorHandler())
	s.router.Use(middleware.HandleError)
	s.router.Use(corsMiddleware(s.config.CORS))
	if s.config.RateLimit.Enabled {
		s.rateLimiter = middleware.NewRateLimiter(&s.config.RateLimit)
		s.router.Use(s.rateLimiter.Middleware())
	}
	s.router.Use(s.metrics.MetricsMiddleware())

	if s.config.App.Env == "development" {
		s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET(s.config.Monitoring.PrometheusPath, gin.WrapH(monitoring.PrometheusHandler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", s.handlers.Auth.Register)
			authGroup.POST("/login", s.handlers.Auth.Login)
			authGroup.POST("/refresh", s.handlers.Auth.RefreshToken)
			authGroup.POST("/logout", s.handlers.Auth.Logout)
		}

		protected := v1.Group("")
		protected.Use(s.jwtManager.AuthMiddleware())
		{
			protected.GET("/auth/profile", s.handlers.Auth.GetProfile)

			accounts := protected.Group("/accounts")
			{
				accounts.POST("", s.handlers.Account.Link)
				accounts.GET("", s.handlers.Account.List)
				accounts.GET("/:id", s.handlers.Account.Get)
				accounts.POST("/:id/refresh", s.handlers.Account.Refresh)
				accounts.POST("/:id/disconnect", s.handlers.Account.Disconnect)
				accounts.DELETE("/:id", s.handlers.Account.Unlink)

				accounts.POST("/:id/trades/sync", s.handlers.Trade.Sync)
				accounts.GET("/:id/trades", s.handlers.Trade.List)
				accounts.GET("/:id/trades/:ticket", s.handlers.Trade.Get)
				accounts.GET("/:id/analytics", s.handlers.Trade.Analytics)

				accounts.GET("/:id/risk", s.handlers.Risk.Overview)
				accounts.POST("/:id/risk/scenarios", s.handlers.Risk.Scenarios)
			}

			marketGroup := protected.Group("/market")
			{
				marketGroup.GET("/quote/:symbol", s.handlers.Market.GetQuote)
				marketGroup.GET("/candles/:symbol", s.handlers.Market.GetCandles)
				marketGroup.GET("/symbols", s.handlers.Market.GetSymbols)
			}

			alertGroup := protected.Group("/alerts")
			{
				alertGroup.POST("/rules", s.handlers.Alert.CreateRule)
				alertGroup.GET("/rules", s.handlers.Alert.ListRules)
				alertGroup.GET("/rules/:id", s.handlers.Alert.GetRule)
				alertGroup.PUT("/rules/:id", s.handlers.Alert.UpdateRule)
				alertGroup.DELETE("/rules/:id", s.handlers.Alert.DeleteRule)
				alertGroup.GET("/events", s.handlers.Alert.ListEvents)
			}

			adminGroup := protected.Group("/admin")
			adminGroup.Use(auth.RequireRole("admin"))
			{
				adminGroup.GET("/stats", s.handlers.Admin.Stats)
			}
		}
	}

	// WebSocket routes authenticate via token query parameter.
	ws := s.router.Group("/ws")
	{
		ws.GET("/quotes/:symbol", s.handlers.WebSocket.QuoteStream)
		ws.GET("/alerts", s.handlers.WebSocket.AlertStream)
	}

	s.router.GET("/health", s.healthCheck)
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	dbHealth := "ok"
	if err := s.db.HealthCheck(ctx); err != nil {
		dbHealth = "error"
	}

	cacheHealth := "ok"
	if err := s.cache.HealthCheck(ctx); err != nil {
		cacheHealth = "error"
	}

	gatewayHealth := "ok"
	if err := s.gateway.HealthCheck(ctx); err != nil {
		gatewayHealth = "unavailable"
	}

	status := http.StatusOK
	if dbHealth != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  dbHealth,
		"version": s.config.App.Version,
		"time":    time.Now().UTC(),
		"services": gin.H{
			"database": dbHealth,
			"cache":    cacheHealth,
			"gateway":  gatewayHealth,
		},
	})
}

// Start starts the HTTP server and background workers
func (s *Server) Start() error {
	s.alertManager.Start()
	if err := s.alertEvaluator.Start(); err != nil {
		return err
	}

	s.stopPurge = make(chan struct{})
	go s.purgeSessionsLoop()

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	logger.Info("starting API server",
		"host", s.config.Server.Host,
		"port", s.config.Server.Port,
	)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("shutting down server")

	s.alertEvaluator.Stop()
	s.alertManager.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.stopPurge != nil {
		close(s.stopPurge)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := s.cache.Close(); err != nil {
		logger.Warn("error closing cache", "error", err.Error())
	}
	if err := s.db.Close(); err != nil {
		logger.Warn("error closing database", "error", err.Error())
	}

	logger.Info("server stopped")
	return nil
}

// purgeSessionsLoop drops expired refresh sessions hourly
func (s *Server) purgeSessionsLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.db.DeleteExpiredSessions(ctx); err != nil {
				logger.Warn("failed to purge expired sessions", "error", err.Error())
			}
			cancel()
		case <-s.stopPurge:
			return
		}
	}
}

// Router exposes the gin engine, for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware(corsConfig config.CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]bool, len(corsConfig.AllowedOrigins))
	allowAll := len(corsConfig.AllowedOrigins) == 0
	for _, origin := range corsConfig.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	methods := strings.Join(corsConfig.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	headers := strings.Join(corsConfig.AllowedHeaders, ", ")
	if headers == "" {
		headers = "Origin, Content-Type, Accept, Authorization, X-Request-ID"
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if corsConfig.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func checkWSOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return len(allowedOrigins) == 0
}
