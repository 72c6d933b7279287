// Package main runs the audio transcription HTTP server with WebSocket events and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/audioscribe/backend/config"
	"github.com/audioscribe/backend/internal/assembler"
	"github.com/audioscribe/backend/internal/auth"
	"github.com/audioscribe/backend/internal/identity"
	"github.com/audioscribe/backend/internal/lifecycle"
	"github.com/audioscribe/backend/internal/middleware"
	"github.com/audioscribe/backend/internal/realtime"
	"github.com/audioscribe/backend/internal/recordings"
	"github.com/audioscribe/backend/internal/transcription"
	"github.com/audioscribe/backend/pkg/database"
	"github.com/audioscribe/backend/pkg/metrics"
	"github.com/audioscribe/backend/pkg/redis"
	"github.com/audioscribe/backend/pkg/response"
	"github.com/audioscribe/backend/pkg/storage"
)

type blobStore interface {
	lifecycle.Blobs
	assembler.Blobs
	transcription.Opener
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	gateway := newGateway(cfg.Transcription, blobs)
	logger.Info("transcription provider", zap.String("provider", gateway.Name()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Recording lifecycle
	recordingRepo := recordings.NewRepository(pool)
	ctrl := lifecycle.NewController(
		recordingRepo,
		blobs,
		assembler.New(blobs, cfg.Storage.StagingDir, logger),
		gateway,
		lifecycle.Options{StrictTransitions: cfg.Recording.StrictTransitions},
		logger,
	)
	ctrl.SetMetrics(m)

	// Lifecycle events, fanned out through Redis when several instances run
	hub := realtime.NewHub(logger)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		ps := realtime.NewRedisPubSub(rdb.Client, logger)
		hub.UseRedis(ps, ps)
	}
	ctrl.SetPublisher(hub)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireMinutes)
	google := identity.NewGoogle(identity.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		TokenInfoURL: cfg.Google.TokenInfoURL,
	}, nil, logger)
	authHandler := auth.NewHandler(auth.NewRepository(pool), google, jwtService, logger)

	recordingHandler := recordings.NewHandler(ctrl, cfg.Storage.MaxChunkBytes, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(m))

	router.GET("/", func(c *gin.Context) { response.Message(c, "Audio Transcription Service API") })
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/google/token", authHandler.GoogleToken)
		authGroup.GET("/google/login", authHandler.GoogleLogin)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	// Recordings (JWT required)
	api := router.Group("/recordings")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("", recordingHandler.List)
		api.POST("", recordingHandler.Create)
		api.GET("/:id", recordingHandler.Get)
		api.POST("/:id/chunks", recordingHandler.UploadChunk)
		api.GET("/:id/chunks", recordingHandler.Chunks)
		api.PATCH("/:id/pause", recordingHandler.Pause)
		api.PATCH("/:id/resume", recordingHandler.Resume)
		api.POST("/:id/finish", recordingHandler.Finish)
		api.GET("/:id/audio", recordingHandler.Audio)
	}

	// WebSocket (token in query)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (blobStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.AudioBucket,
			Endpoint:        cfg.AWS.Endpoint,
		}, logger)
	case "local":
		return storage.NewLocal(cfg.Storage.LocalPath, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newGateway(cfg config.TranscriptionConfig, blobs transcription.Opener) transcription.Gateway {
	if cfg.Provider == "openai" {
		return transcription.NewOpenAI(transcription.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		}, blobs)
	}
	return transcription.NewMock(blobs)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
