// Package main runs the Smart Scribe HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smart-scribe/backend/config"
	"github.com/smart-scribe/backend/internal/auth"
	"github.com/smart-scribe/backend/internal/middleware"
	"github.com/smart-scribe/backend/internal/models"
	"github.com/smart-scribe/backend/internal/pipeline"
	"github.com/smart-scribe/backend/internal/realtime"
	"github.com/smart-scribe/backend/internal/recordings"
	"github.com/smart-scribe/backend/internal/summarizer"
	"github.com/smart-scribe/backend/internal/templates"
	"github.com/smart-scribe/backend/internal/transcriber"
	"github.com/smart-scribe/backend/internal/worker"
	"github.com/smart-scribe/backend/pkg/database"
	"github.com/smart-scribe/backend/pkg/queue"
	"github.com/smart-scribe/backend/pkg/redis"
	"github.com/smart-scribe/backend/pkg/response"
	"github.com/smart-scribe/backend/pkg/storage"
)

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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		AudioBucket:          cfg.AWS.AudioBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	events := realtime.NewEvents(hub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Templates
	templateRepo := templates.NewRepository(pool)
	templateResolver := templates.NewResolver(templateRepo)
	templateHandler := templates.NewHandler(templateRepo, logger)

	// Recordings
	recordingRepo := recordings.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	recordingHandler := recordings.NewHandler(recordingRepo, s3Client, jobQueue, templateResolver, events, logger)

	// Pipeline (transcription + summarization)
	transcribeClient := transcriber.NewClient(transcriber.Config{
		APIKey:       cfg.AssemblyAI.APIKey,
		BaseURL:      cfg.AssemblyAI.BaseURL,
		PollInterval: time.Duration(cfg.AssemblyAI.PollIntervalSec) * time.Second,
		PollTimeout:  time.Duration(cfg.AssemblyAI.PollTimeoutMin) * time.Minute,
	}, logger)
	summarizeClient := summarizer.NewClient(cfg.Gemini.APIKeys, cfg.Gemini.Model, logger)
	pipe := pipeline.New(recordingRepo, s3Client, transcribeClient, summarizeClient, templateResolver, events, logger)
	processor := worker.NewProcessor(pipe, jobQueue, logger)

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}
	snapshot := func(ctx context.Context, ownerID uuid.UUID) ([]models.Recording, error) {
		return recordingRepo.ListByOwner(ctx, ownerID)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Recordings
		api.GET("/recordings", recordingHandler.List)
		api.POST("/recordings", recordingHandler.Upload)
		api.POST("/recordings/generate-upload-url", recordingHandler.GenerateUploadURL)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.PATCH("/recordings/:id", recordingHandler.Rename)
		api.DELETE("/recordings/:id", recordingHandler.Delete)
		api.POST("/recordings/:id/complete-upload", recordingHandler.CompleteUpload)
		api.PUT("/recordings/:id/transcript", recordingHandler.SaveTranscript)
		api.POST("/recordings/:id/resummarize", recordingHandler.Resummarize)
		api.GET("/recordings/:id/audio-url", recordingHandler.AudioURL)
		api.GET("/recordings/:id/export", recordingHandler.Export)

		// Templates
		api.GET("/templates", templateHandler.Get)
		api.PUT("/templates", templateHandler.Upsert)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate, snapshot))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (runs in-process unless a dedicated worker is deployed)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Server.EmbeddedWorker {
		go processor.Run(workerCtx)
		logger.Info("embedded pipeline worker started")
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

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
