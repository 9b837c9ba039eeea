package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kickai/cv-processing-service/internal/analysis"
	"github.com/kickai/cv-processing-service/internal/infra/config"
	"github.com/kickai/cv-processing-service/internal/infra/email"
	"github.com/kickai/cv-processing-service/internal/infra/ffmpeg"
	"github.com/kickai/cv-processing-service/internal/infra/metrics"
	miniostorage "github.com/kickai/cv-processing-service/internal/infra/minio"
	"github.com/kickai/cv-processing-service/internal/infra/pose"
	"github.com/kickai/cv-processing-service/internal/infra/postgres"
	"github.com/kickai/cv-processing-service/internal/infra/rabbitmq"
	"github.com/kickai/cv-processing-service/internal/infra/tracing"
	"github.com/kickai/cv-processing-service/internal/usecase"
	"github.com/kickai/cv-processing-service/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel, cfg.Development())
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting kickai analysis worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		VideoBucket:  cfg.MinIOVideoBucket,
		ReportBucket: cfg.MinIOReportBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Pose model
	estimator, err := pose.NewDNNEstimator(cfg.PoseModelPath, cfg.PoseInputSize, cfg.PoseMinScore, log)
	fatalOnErr(err, "load pose model")
	defer estimator.Close()

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	reports := postgres.NewReportRepository(pool)
	extractor := ffmpeg.NewExtractor(cfg.FFmpegFPS, cfg.FFmpegFormat, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use case
	uc := usecase.NewAnalyzeVideoUseCase(
		repo, reports, storage, extractor, estimator,
		statusPub, dlqPub, notifier,
		log,
		usecase.AnalyzeVideoConfig{
			TempDir:          cfg.TempDir,
			MaxRetries:       cfg.MaxRetries,
			InferenceWorkers: cfg.InferenceWorkers,
			FrameTimeout:     time.Duration(cfg.FrameTimeoutMs) * time.Millisecond,
			VideoTimeout:     time.Duration(cfg.VideoTimeoutSec) * time.Second,
			Classifier:       classifierConfig(cfg),
			TrackerMaxJump:   cfg.TrackerMaxJumpPx,
			TrackerMaxGap:    cfg.TrackerMaxGapFrames,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("kickai analysis worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("kickai analysis worker stopped")
}

func classifierConfig(cfg *config.Config) analysis.Config {
	return analysis.Config{
		WindowSize:            cfg.ClassifierWindowSize,
		WindupSpeed:           cfg.ClassifierWindupSpeed,
		StrikeSpeed:           cfg.ClassifierStrikeSpeed,
		RecoverySpeed:         cfg.ClassifierRecoverySpeed,
		IdleSpeed:             cfg.ClassifierIdleSpeed,
		MinKeypointConfidence: cfg.ClassifierMinKeypoint,
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
