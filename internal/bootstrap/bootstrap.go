package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phennig/dms-pipeline/internal/config"
	"github.com/phennig/dms-pipeline/internal/core/ports"
	"github.com/phennig/dms-pipeline/internal/core/usecase"
	"github.com/phennig/dms-pipeline/internal/infrastructure/extractor/cli"
	"github.com/phennig/dms-pipeline/internal/infrastructure/extractor/direct"
	"github.com/phennig/dms-pipeline/internal/infrastructure/extractor/raster"
	"github.com/phennig/dms-pipeline/internal/infrastructure/extractor/tess"
	"github.com/phennig/dms-pipeline/internal/infrastructure/llm/gemini"
	"github.com/phennig/dms-pipeline/internal/infrastructure/queue/rabbitmq"
	"github.com/phennig/dms-pipeline/internal/infrastructure/repository/postgres"
	"github.com/phennig/dms-pipeline/internal/infrastructure/resilience"
	"github.com/phennig/dms-pipeline/internal/infrastructure/storage/localfs"
	"github.com/phennig/dms-pipeline/internal/infrastructure/storage/miniostore"
	"github.com/phennig/dms-pipeline/internal/observability/logging"
	"github.com/phennig/dms-pipeline/internal/observability/metrics"
)

// API wires the ingestion gateway process: upload validation, object storage,
// the document record and event publication.
type API struct {
	Config  config.Config
	Log     *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Repo     ports.DocumentRepository
	IngestUC ports.DocumentIngestor

	closeFn func()
}

func NewAPI(ctx context.Context, cfg config.Config) (*API, error) {
	log := logging.NewJSONLogger("dms-api", cfg.LogLevel)
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newObjectStorage(cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue, rabbitmq.PublisherOptions{
		ClientName:         "dms-api",
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect message broker: %w", err)
	}

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, publisher,
		cfg.MinioBucket, cfg.MaxUploadBytes, log)

	return &API{
		Config:   cfg,
		Log:      log,
		Metrics:  metrics.NewHTTPServerMetrics("dms-api"),
		Repo:     repo,
		IngestUC: ingestUC,
		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker wires the OCR pipeline process: the durable-queue consumer, the
// extraction strategy, summarization and the summary write-back.
type Worker struct {
	Config  config.Config
	Log     *slog.Logger
	Metrics *metrics.WorkerMetrics

	Consumer *rabbitmq.Consumer

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	log := logging.NewJSONLogger("dms-worker", cfg.LogLevel)
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	workerMetrics := metrics.NewWorkerMetrics(cfg.ConsumerName)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newObjectStorage(cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	extractor, err := newExtractor(cfg, workerMetrics)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.GeminiAPIKey == "" {
		log.Warn("no model api key configured, summarization will fail and be skipped")
	}
	summarizer := gemini.New(gemini.DefaultBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, gemini.Options{
		Timeout:        time.Duration(cfg.GeminiTimeoutSeconds) * time.Second,
		CallsPerMinute: cfg.GeminiCallsPerMinute,
	})

	processUC := usecase.NewProcessDocumentUseCase(repo, storage, extractor, summarizer,
		workerMetrics, cfg.ConsumerName, log)

	consumer := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPQueue, processUC, rabbitmq.ConsumerOptions{
		Name:        cfg.ConsumerName,
		DialBackoff: time.Duration(cfg.AMQPDialDelay) * time.Second,
		Logger:      log,
	})

	return &Worker{
		Config:   cfg,
		Log:      log,
		Metrics:  workerMetrics,
		Consumer: consumer,
		closeFn: func() {
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func newObjectStorage(cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "minio":
		storage, err := miniostore.New(miniostore.Options{
			Endpoint:           cfg.MinioEndpoint,
			AccessKey:          cfg.MinioAccessKey,
			SecretKey:          cfg.MinioSecretKey,
			UseSSL:             cfg.MinioUseSSL,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		return storage, nil
	case "localfs":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newExtractor(cfg config.Config, workerMetrics *metrics.WorkerMetrics) (ports.TextExtractor, error) {
	onPages := func(pages int) {
		workerMetrics.ObservePages(cfg.ConsumerName, pages)
	}

	switch cfg.OCRMode {
	case "raster":
		engine := tess.NewEngine(cfg.OCRLanguages, cfg.TessdataDir)
		return raster.New(engine, raster.Options{
			DPI:     float64(cfg.OCRDPI),
			OnPages: onPages,
		}), nil
	case "direct":
		return direct.New(tess.NewEngine(cfg.OCRLanguages, cfg.TessdataDir)), nil
	case "cli":
		return cli.New(cli.Options{
			GhostscriptBin: cfg.GhostscriptBin,
			TesseractBin:   cfg.TesseractBin,
			Languages:      cfg.OCRLanguages,
			TessdataDir:    cfg.TessdataDir,
			DPI:            cfg.OCRDPI,
			OnPages:        onPages,
		}), nil
	default:
		return nil, fmt.Errorf("unknown ocr mode %q", cfg.OCRMode)
	}
}
