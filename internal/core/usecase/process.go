package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phennig/dms-pipeline/internal/core/domain"
	"github.com/phennig/dms-pipeline/internal/core/ports"
	"github.com/phennig/dms-pipeline/internal/observability/logging"
)

const (
	outcomeAcked   = "acked"
	outcomeNacked  = "nacked"
	outcomeIgnored = "ignored"

	summaryStored = "stored"
	summaryEmpty  = "empty"
	summaryFailed = "failed"
)

// PipelineMetrics is the slice of worker instrumentation the message loop
// feeds. A noop implementation is substituted when nil is passed.
type PipelineMetrics interface {
	StartMessage()
	FinishMessage(service, outcome string, duration time.Duration)
	ObserveQueueLag(service string, lag time.Duration)
	CountSummary(service, result string)
}

type noopMetrics struct{}

func (noopMetrics) StartMessage()                               {}
func (noopMetrics) FinishMessage(string, string, time.Duration) {}
func (noopMetrics) ObserveQueueLag(string, time.Duration)       {}
func (noopMetrics) CountSummary(string, string)                 {}

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	summarizer ports.Summarizer
	metrics    PipelineMetrics
	service    string
	log        *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	summarizer ports.Summarizer,
	metrics PipelineMetrics,
	service string,
	log *slog.Logger,
) *ProcessDocumentUseCase {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:       repo,
		storage:    storage,
		extractor:  extractor,
		summarizer: summarizer,
		metrics:    metrics,
		service:    service,
		log:        log,
	}
}

// HandleMessage dispatches one raw queue message. A nil return means the
// message is done (ack); an error means it is poison or the infrastructure
// failed (nack without requeue). Unknown event types and informational events
// are acked so they can never wedge the queue.
func (uc *ProcessDocumentUseCase) HandleMessage(ctx context.Context, body []byte) error {
	started := time.Now()
	uc.metrics.StartMessage()

	outcome, err := uc.dispatch(ctx, body)
	uc.metrics.FinishMessage(uc.service, outcome, time.Since(started))
	return err
}

func (uc *ProcessDocumentUseCase) dispatch(ctx context.Context, body []byte) (string, error) {
	env, err := domain.ParseEnvelope(body)
	if err != nil {
		uc.log.Error("malformed message body", "error", err)
		return outcomeNacked, err
	}

	switch env.Type {
	case domain.EventTypeOcrRequested:
		msg, err := domain.ParseOcrRequested(body)
		if err != nil {
			uc.log.Error("malformed OcrRequested payload", "error", err)
			return outcomeNacked, err
		}
		if !msg.CreatedUtc.IsZero() {
			uc.metrics.ObserveQueueLag(uc.service, time.Since(msg.CreatedUtc))
		}
		if err := uc.processOcrRequest(ctx, msg); err != nil {
			return outcomeNacked, err
		}
		return outcomeAcked, nil

	case domain.EventTypeDocumentCreated:
		// Informational for external consumers; nothing to do here.
		return outcomeIgnored, nil

	default:
		uc.log.Warn("ignoring unknown event type", "event_type", env.Type)
		return outcomeIgnored, nil
	}
}

func (uc *ProcessDocumentUseCase) processOcrRequest(ctx context.Context, msg domain.OcrRequested) error {
	path, cleanup, err := uc.fetchObject(ctx, msg)
	if err != nil {
		return err
	}
	defer cleanup()

	text, err := uc.extractor.ExtractText(ctx, path)
	if err != nil {
		return fmt.Errorf("extract text from %s/%s: %w", msg.Bucket, msg.ObjectName, err)
	}

	uc.log.Info("text extracted",
		"document_id", msg.DocumentID,
		"object", msg.ObjectName,
		"chars", len(text),
		"preview", logging.Preview(text, 200),
	)

	if msg.DocumentID == "" {
		uc.log.Warn("no document id on message, skipping summarization", "object", msg.ObjectName)
		return nil
	}

	uc.summarize(ctx, msg.DocumentID, text)
	return nil
}

// fetchObject downloads the stored binary into a scratch file. The file
// extension is carried over from the original name because the extraction
// strategies key format handling off it.
func (uc *ProcessDocumentUseCase) fetchObject(ctx context.Context, msg domain.OcrRequested) (string, func(), error) {
	reader, err := uc.storage.Open(ctx, msg.Bucket, msg.ObjectName)
	if err != nil {
		return "", nil, fmt.Errorf("open object %s/%s: %w", msg.Bucket, msg.ObjectName, err)
	}
	defer reader.Close()

	ext := filepath.Ext(msg.OriginalFileName)
	if ext == "" {
		ext = filepath.Ext(msg.ObjectName)
	}
	tmp, err := os.CreateTemp("", "dms_ocr_*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create scratch file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("download object %s/%s: %w", msg.Bucket, msg.ObjectName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("flush scratch file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// summarize is best-effort end to end: a model failure, an empty summary or a
// failed database write is logged and counted but never bounces the message.
// The summary column is last-write-wins on redelivery.
func (uc *ProcessDocumentUseCase) summarize(ctx context.Context, documentID, text string) {
	summary, err := uc.summarizer.Summarize(ctx, text)
	if err != nil {
		uc.log.Warn("summarization failed", "document_id", documentID, "error", err)
		uc.metrics.CountSummary(uc.service, summaryFailed)
		return
	}
	if summary == "" {
		uc.log.Info("summarization produced no text", "document_id", documentID)
		uc.metrics.CountSummary(uc.service, summaryEmpty)
		return
	}

	if err := uc.repo.UpdateSummary(ctx, documentID, summary); err != nil {
		uc.log.Warn("summary write failed", "document_id", documentID, "error", err)
		uc.metrics.CountSummary(uc.service, summaryFailed)
		return
	}
	uc.log.Info("summary stored", "document_id", documentID, "chars", len(summary))
	uc.metrics.CountSummary(uc.service, summaryStored)
}
