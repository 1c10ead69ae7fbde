// Package main runs the background pipeline worker (transcription + summarization).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smart-scribe/backend/config"
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

	// The worker has no local WebSocket clients; events reach the server
	// instances via Redis pub/sub.
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, nil)
	events := realtime.NewEvents(hub)

	recordingRepo := recordings.NewRepository(pool)
	templateResolver := templates.NewResolver(templates.NewRepository(pool))

	transcribeClient := transcriber.NewClient(transcriber.Config{
		APIKey:       cfg.AssemblyAI.APIKey,
		BaseURL:      cfg.AssemblyAI.BaseURL,
		PollInterval: time.Duration(cfg.AssemblyAI.PollIntervalSec) * time.Second,
		PollTimeout:  time.Duration(cfg.AssemblyAI.PollTimeoutMin) * time.Minute,
	}, logger)
	summarizeClient := summarizer.NewClient(cfg.Gemini.APIKeys, cfg.Gemini.Model, logger)
	pipe := pipeline.New(recordingRepo, s3Client, transcribeClient, summarizeClient, templateResolver, events, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(pipe, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
