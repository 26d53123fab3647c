package ports

import (
	"context"
	"io"

	"github.com/phennig/dms-pipeline/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Ingest(ctx context.Context, filename, contentType string, size int64, meta domain.Metadata, body io.Reader) (*domain.Document, error)
}

// MessageHandler is the inbound contract the queue consumer drives: one raw
// message body in, ack (nil) or nack-without-requeue (error) out.
type MessageHandler interface {
	HandleMessage(ctx context.Context, body []byte) error
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
