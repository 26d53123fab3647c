package ports

import (
	"context"
	"io"

	"github.com/phennig/dms-pipeline/internal/core/domain"
)

// DocumentRepository persists and reads document records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateSummary(ctx context.Context, id string, summary string) error
}

// ObjectStorage stores document binaries addressed by (bucket, key).
type ObjectStorage interface {
	Save(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// EventPublisher publishes pipeline events to the durable queue.
type EventPublisher interface {
	PublishDocumentCreated(ctx context.Context, event domain.DocumentCreated) error
	PublishOcrRequested(ctx context.Context, event domain.OcrRequested) error
}

// TextExtractor turns a downloaded document file into plain text.
// Implementations must be deterministic for the same input and configuration:
// fixed page order, pages joined with a separating newline.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Summarizer produces a short summary from extracted text. Blank input yields
// an empty summary without a network call. Implementations make exactly one
// external call per invocation; retry policy belongs to the caller.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
