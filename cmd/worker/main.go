// Command worker runs the Pipeline Orchestrator as a long-lived process:
// a pool of goroutines dequeuing from the Broker and driving jobs to
// completion, plus a maintenance goroutine reclaiming expired handles.
// Grounded on the teacher's story-generator/cmd/worker/main.go: retry-loop
// connection setup, a Prometheus metrics HTTP endpoint, and signal-driven
// graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storypipeline/internal/blob"
	"storypipeline/internal/broker"
	"storypipeline/internal/config"
	"storypipeline/internal/dispatcher"
	"storypipeline/internal/logging"
	"storypipeline/internal/metrics"
	"storypipeline/internal/models"
	"storypipeline/internal/orchestrator"
	"storypipeline/internal/provider/audio"
	"storypipeline/internal/provider/image"
	"storypipeline/internal/provider/text"
	"storypipeline/internal/repository"
	"storypipeline/internal/repository/migrations"
)

const metricsListenAddr = ":9091"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m := metrics.New(logger)
	if cfg.PushgatewayURL != "" {
		if err := m.InitPusher(cfg.PushgatewayURL); err != nil {
			logger.Warn("pushgateway init failed, continuing without it", zap.Error(err))
		} else {
			stopPusher := m.StartPusher(cfg.PushInterval)
			defer stopPusher()
			defer m.Cleanup()
		}
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		logger.Info("metrics server listening", zap.String("addr", metricsListenAddr))
		if err := http.ListenAndServe(metricsListenAddr, mux); err != nil {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	dbPool, err := connectPostgres(cfg, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	migrator := repository.NewMigrator(migrations.FS, ".", dbPool, logger)
	if err := migrator.Up(context.Background()); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	textAdapter, err := buildTextAdapter(cfg, logger)
	if err != nil {
		logger.Fatal("build text adapter", zap.Error(err))
	}
	imageAdapter := buildImageAdapter(cfg, logger)
	audioAdapter := buildAudioAdapter(cfg, logger)
	blobUploader, err := buildBlobUploader(cfg, logger)
	if err != nil {
		logger.Fatal("build blob uploader", zap.Error(err))
	}

	brokerClient := broker.NewRedisBroker(redisClient, logger)
	storyRepo := repository.NewPostgresStoryRepository(dbPool, logger)
	sceneRepo := repository.NewPostgresSceneRepository(dbPool, logger)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.SceneParallelism = cfg.SceneParallelism
	orchCfg.MaxAttempts = cfg.MaxAttempts
	orchCfg.VisibilityTimeout = cfg.VisibilityTimeout
	orchCfg.NackDelay = cfg.NackDelay
	orchCfg.TextModel = cfg.TextModel

	orch := orchestrator.New(storyRepo, sceneRepo, textAdapter, imageAdapter, audioAdapter, blobUploader, brokerClient, orchCfg, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go runReclaimLoop(ctx, &wg, brokerClient, logger)

	workerConcurrency := cfg.JobParallelism
	if workerConcurrency <= 0 {
		workerConcurrency = 1
	}
	for i := 0; i < workerConcurrency; i++ {
		wg.Add(1)
		go runWorkerLoop(ctx, &wg, i, brokerClient, orch, storyRepo, cfg, m, logger)
	}

	logger.Info("worker started", zap.Int("concurrency", workerConcurrency))
	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight jobs")
	wg.Wait()
	logger.Info("worker stopped")
}

func runWorkerLoop(ctx context.Context, wg *sync.WaitGroup, id int, brokerClient broker.Client, orch *orchestrator.Orchestrator, stories repository.StoryRepository, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) {
	defer wg.Done()
	log := logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		handle, envelope, err := brokerClient.Dequeue(ctx, dispatcher.StoryQueueName, cfg.VisibilityTimeout, cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue failed", zap.Error(err))
			continue
		}
		if handle == nil {
			continue
		}

		m.JobsDequeued.Inc()
		start := time.Now()
		if err := orch.Process(ctx, handle, *envelope); err != nil {
			log.Error("process failed", zap.Error(err), zap.String("story_id", envelope.StoryID.String()))
		} else if story, getErr := stories.GetStory(ctx, envelope.StoryID); getErr == nil && story.Status == models.StoryStatusCompleted {
			m.JobsSucceeded.Inc()
		}
		m.JobDuration.Observe(time.Since(start).Seconds())
	}
}

func runReclaimLoop(ctx context.Context, wg *sync.WaitGroup, brokerClient broker.Client, logger *zap.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := brokerClient.ReclaimExpired(ctx, dispatcher.StoryQueueName)
			if err != nil {
				logger.Warn("reclaim expired handles failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("reclaimed expired handles", zap.Int("count", n))
			}
		}
	}
}

func connectPostgres(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	const maxRetries = 20
	const retryDelay = 3 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		cancel()
		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := pool.Ping(pingCtx)
			pingCancel()
			if pingErr == nil {
				return pool, nil
			}
			pool.Close()
			lastErr = pingErr
		} else {
			lastErr = err
		}
		logger.Warn("postgres connection attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", maxRetries), zap.Error(lastErr))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", maxRetries, lastErr)
}

func connectRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	const maxRetries = 20
	const retryDelay = 3 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return client, nil
		}
		logger.Warn("redis connection attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", maxRetries), zap.Error(lastErr))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", maxRetries, lastErr)
}

func buildTextAdapter(cfg *config.Config, logger *zap.Logger) (text.Adapter, error) {
	switch cfg.TextProvider {
	case "ollama":
		return text.NewOllamaAdapter(cfg.TextBaseURL, cfg.TextTimeout, logger)
	case "mock":
		return text.NewMockAdapter("./fixtures/text", 0), nil
	default:
		return text.NewOpenAIAdapter(cfg.TextBaseURL, cfg.TextAPIKey, cfg.TextTimeout, logger), nil
	}
}

func buildImageAdapter(cfg *config.Config, logger *zap.Logger) image.Adapter {
	if cfg.ImageProvider == "mock" {
		return image.NewMockAdapter("./fixtures/image", 0)
	}
	return image.NewDalleAdapter(cfg.ImageBaseURL, cfg.ImageAPIKey, cfg.ImageTimeout, logger)
}

func buildAudioAdapter(cfg *config.Config, logger *zap.Logger) audio.Adapter {
	if cfg.AudioProvider == "mock" {
		return audio.NewMockAdapter("./fixtures/audio", 0)
	}
	return audio.NewElevenLabsAdapter(cfg.AudioBaseURL, cfg.AudioAPIKey, cfg.AudioStandardVoce, cfg.AudioHQModel, cfg.AudioTimeout, logger)
}

func buildBlobUploader(cfg *config.Config, logger *zap.Logger) (blob.Uploader, error) {
	if cfg.BlobKind == "mock" {
		return blob.NewMockUploader(cfg.BlobPublicURLBase), nil
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return blob.NewS3Uploader(s3.New(sess), cfg.BlobBucketImages, cfg.BlobBucketAudio, cfg.BlobPublicURLBase, logger), nil
}
