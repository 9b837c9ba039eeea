package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kickai/cv-processing-service/internal/analysis"
	"github.com/kickai/cv-processing-service/internal/api"
	"github.com/kickai/cv-processing-service/internal/domain/port"
	"github.com/kickai/cv-processing-service/internal/infra/config"
	"github.com/kickai/cv-processing-service/internal/infra/email"
	"github.com/kickai/cv-processing-service/internal/infra/ffmpeg"
	"github.com/kickai/cv-processing-service/internal/infra/metrics"
	miniostorage "github.com/kickai/cv-processing-service/internal/infra/minio"
	"github.com/kickai/cv-processing-service/internal/infra/pose"
	"github.com/kickai/cv-processing-service/internal/infra/postgres"
	"github.com/kickai/cv-processing-service/internal/infra/rabbitmq"
	"github.com/kickai/cv-processing-service/internal/infra/tracing"
	"github.com/kickai/cv-processing-service/internal/infra/ws"
	"github.com/kickai/cv-processing-service/internal/usecase"
	"github.com/kickai/cv-processing-service/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// statusFanout mirrors every status message to the websocket hub in
// addition to the status queue.
type statusFanout struct {
	primary port.StatusPublisher
	hub     *ws.Hub
}

func (f *statusFanout) PublishStatus(ctx context.Context, msg []byte) error {
	f.hub.Broadcast(msg)
	return f.primary.PublishStatus(ctx, msg)
}

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel, cfg.Development())
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting kickai cv api server",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

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

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	statusPub := &statusFanout{primary: rabbitmq.NewStatusPublisher(pub), hub: hub}
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	estimator, err := pose.NewDNNEstimator(cfg.PoseModelPath, cfg.PoseInputSize, cfg.PoseMinScore, log)
	fatalOnErr(err, "load pose model")
	defer estimator.Close()

	repo := postgres.NewJobRepository(pool)
	reports := postgres.NewReportRepository(pool)
	extractor := ffmpeg.NewExtractor(cfg.FFmpegFPS, cfg.FFmpegFormat, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	classifierCfg := analysis.Config{
		WindowSize:            cfg.ClassifierWindowSize,
		WindupSpeed:           cfg.ClassifierWindupSpeed,
		StrikeSpeed:           cfg.ClassifierStrikeSpeed,
		RecoverySpeed:         cfg.ClassifierRecoverySpeed,
		IdleSpeed:             cfg.ClassifierIdleSpeed,
		MinKeypointConfidence: cfg.ClassifierMinKeypoint,
	}

	videoUC := usecase.NewAnalyzeVideoUseCase(
		repo, reports, storage, extractor, estimator,
		statusPub, dlqPub, notifier,
		log,
		usecase.AnalyzeVideoConfig{
			TempDir:          cfg.TempDir,
			MaxRetries:       cfg.MaxRetries,
			InferenceWorkers: cfg.InferenceWorkers,
			FrameTimeout:     time.Duration(cfg.FrameTimeoutMs) * time.Millisecond,
			VideoTimeout:     time.Duration(cfg.VideoTimeoutSec) * time.Second,
			Classifier:       classifierCfg,
			TrackerMaxJump:   cfg.TrackerMaxJumpPx,
			TrackerMaxGap:    cfg.TrackerMaxGapFrames,
		},
	)
	frameUC := usecase.NewAnalyzeFrameUseCase(estimator, classifierCfg, cfg.TrackerMaxJumpPx, cfg.TrackerMaxGapFrames, log)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	handlers := api.NewHandlers(videoUC, frameUC, repo, reports, log)
	apiSrv := api.NewServer(cfg.Host, cfg.Port, handlers, hub, log)
	apiSrv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("kickai cv api server stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
