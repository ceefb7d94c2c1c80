package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-whiteboard/internal/handler/http"
	wsHandler "collaborative-whiteboard/internal/handler/websocket"
	"collaborative-whiteboard/internal/hub"
	gormpersistence "collaborative-whiteboard/internal/infra/persistence/gorm"
	"collaborative-whiteboard/internal/infra/persistence/memory"
	"collaborative-whiteboard/internal/infra/setup"
	redisstate "collaborative-whiteboard/internal/infra/state/redis"
	"collaborative-whiteboard/internal/metrics"
	"collaborative-whiteboard/internal/middleware"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
	"collaborative-whiteboard/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	AsynqServer    *worker.WorkerServer
	Scheduler      *worker.PeriodicScheduler
	LocalScheduler *worker.LocalScheduler
	Hub            *hub.Hub
	Router         *gin.Engine
	HttpServer     *http.Server

	stopReconcile context.CancelFunc
}

// repositories 是按存储驱动选出的一组仓库实现
type repositories struct {
	rooms  repository.RoomRepository
	docs   repository.DocumentRepository
	chat   repository.ChatRepository
	canvas repository.CanvasStateRepository
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig 按给定配置组装应用
func NewAppWithConfig(cfg *Config) (*App, error) {
	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.WithField("storage_driver", cfg.StorageDriver).Info("Configuration loaded successfully")
	app := &App{Config: cfg, Log: log}

	// 3. 初始化基础设施和 Repositories
	repos, err := app.initStorage()
	if err != nil {
		return nil, err
	}

	// 4. 初始化 Services
	log.Info("Initializing services...")
	var scheduler service.PersistScheduler
	if app.AsynqClient != nil {
		scheduler = tasks.NewAsynqPersistScheduler(app.AsynqClient, cfg.PersistDelay)
	} else {
		app.LocalScheduler = worker.NewLocalScheduler(cfg.PersistDelay)
		scheduler = app.LocalScheduler
	}
	roomService := service.NewRoomService(repos.rooms, repos.docs)
	presenceService := service.NewPresenceService(roomService)
	canvasService := service.NewCanvasService(repos.docs, repos.canvas, scheduler)
	chatService := service.NewChatService(repos.chat, cfg.ChatHistoryLimit)
	documentService := service.NewDocumentService(repos.docs)
	if app.LocalScheduler != nil {
		app.LocalScheduler.SetHandler(canvasService.Persist)
	}
	log.Info("Services initialized")

	// 5. 初始化 Hub
	app.Hub = hub.NewHub(hub.NewConnectionTable(), roomService, presenceService, canvasService, chatService, metrics.New())
	log.Info("Hub initialized")

	// 6. 初始化 Worker Server 和周期任务
	if app.RedisClient != nil {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		app.AsynqServer = worker.NewWorkerServer(redisOpt, canvasService, app.Hub, log)
		app.Scheduler, err = worker.NewPeriodicScheduler(redisOpt, cfg.PresenceReconcileSchedule, log)
		if err != nil {
			return nil, fmt.Errorf("failed to register periodic tasks: %w", err)
		}
		log.Info("Worker server initialized")
	}

	// 7. 初始化 Gin Engine 和路由
	app.Router = app.buildRouter(
		httpHandler.NewDocumentHandler(documentService, canvasService),
		httpHandler.NewRoomHandler(chatService),
		wsHandler.NewWebSocketHandler(app.Hub, cfg.CORSAllowedOrigin),
	)

	// 8. 初始化 HTTP Server
	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// NewLogger 按配置创建 logrus Logger，并同步设置全局 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)

	// 各包使用 logrus 包级函数记录日志
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	logrus.SetOutput(os.Stdout)
	return log
}

func (a *App) initStorage() (*repositories, error) {
	cfg := a.Config
	if cfg.StorageDriver == StorageMemory {
		a.Log.Warn("Using in-memory storage, all state is lost on restart")
		return &repositories{
			rooms:  memory.NewRoomRepository(),
			docs:   memory.NewDocumentRepository(),
			chat:   memory.NewChatRepository(),
			canvas: memory.NewCanvasStateRepository(),
		}, nil
	}

	a.Log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	a.DB = db
	a.Log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	a.RedisClient = redisClient
	a.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	a.Log.Info("Redis and asynq clients initialized")

	return &repositories{
		rooms:  gormpersistence.NewGormRoomRepository(db),
		docs:   gormpersistence.NewGormDocumentRepository(db),
		chat:   gormpersistence.NewGormChatRepository(db),
		canvas: redisstate.NewRedisCanvasStateRepository(redisClient, cfg.KeyPrefix),
	}, nil
}

func (a *App) buildRouter(documents *httpHandler.DocumentHandler, rooms *httpHandler.RoomHandler, ws *wsHandler.WebSocketHandler) *gin.Engine {
	cfg := a.Config
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(a.Log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", middleware.OptionalAuth(cfg.JWTSecret), ws.HandleConnection)

	api := router.Group("/api")
	if a.RedisClient != nil {
		api.Use(middleware.RateLimit(a.RedisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	api.Use(middleware.OptionalAuth(cfg.JWTSecret))
	{
		// 配置了 JWT 时文档 owner 只能来自已验证的 token
		if cfg.JWTSecret != "" {
			api.POST("/documents", middleware.Auth(cfg.JWTSecret), documents.CreateDocument)
		} else {
			api.POST("/documents", documents.CreateDocument)
		}
		api.GET("/documents/:id/canvas", documents.GetCanvas)
		api.GET("/rooms/:roomId/messages", rooms.GetMessages)
	}
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
	}
	if a.Scheduler != nil {
		go a.Scheduler.Start()
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopReconcile = cancel
		go a.runLocalReconcile(ctx, a.Config.ReconcileInterval())
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// runLocalReconcile 在没有 asynq 调度器时周期性对齐在线列表
func (a *App) runLocalReconcile(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Hub.ReconcileAll(ctx); n > 0 {
				a.Log.WithField("rooms", n).Debug("Local presence reconcile completed")
			}
		}
	}
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先停止接收新连接
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 停止周期任务
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.stopReconcile != nil {
		a.stopReconcile()
	}

	// 3. 把挂起的画布写回
	if a.LocalScheduler != nil {
		a.LocalScheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 关闭客户端连接
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// CORSMiddleware 设置跨域响应头
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Debug("Request handled")
		}
	}
}
