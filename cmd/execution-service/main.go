package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codegrade/internal/common/cache"
	commonmw "codegrade/internal/common/http/middleware"
	"codegrade/internal/common/mq"
	"codegrade/internal/common/storage"
	"codegrade/internal/execution/controller"
	"codegrade/internal/execution/dispatcher"
	"codegrade/internal/execution/remote/judge0"
	"codegrade/internal/execution/remote/sphere"
	"codegrade/internal/execution/repository"
	"codegrade/internal/execution/sandbox"
	"codegrade/internal/execution/service"
	"codegrade/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/execution_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var publisher *repository.EventPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		publisher = repository.NewEventPublisher(producer, appCfg.Status.EventTopic)
	}

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err = storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
	}

	registry, err := buildRegistry(appCfg.Language)
	if err != nil {
		logger.Error(context.Background(), "init language registry failed", zap.Error(err))
		return
	}

	executor := sandbox.NewExecutor(appCfg.Executor, registry)

	var remotes []dispatcher.Backend
	if appCfg.Judge0.BaseURL != "" {
		judge0Client, err := judge0.New(appCfg.Judge0)
		if err != nil {
			logger.Error(context.Background(), "init judge0 client failed", zap.Error(err))
			return
		}
		remotes = append(remotes, judge0Client)
	}
	if appCfg.Sphere.BaseURL != "" {
		sphereClient, err := sphere.New(appCfg.Sphere)
		if err != nil {
			logger.Error(context.Background(), "init sphere client failed", zap.Error(err))
			return
		}
		remotes = append(remotes, sphereClient)
	}
	dispatch := dispatcher.New(appCfg.Dispatcher, executor, remotes...)

	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL)
	execSvc := service.NewExecutionService(appCfg.Service, registry, dispatch, statusRepo, publisher, objStorage)

	httpServer := buildHTTPServer(appCfg.Server, execSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "execution http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, execSvc *service.ExecutionService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", controller.Health)
	controller.NewExecutionController(execSvc).RegisterRoutes(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
