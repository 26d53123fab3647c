package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phennig/dms-pipeline/internal/core/domain"
	"github.com/phennig/dms-pipeline/internal/core/ports"
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/tiff":      {},
}

type IngestDocumentUseCase struct {
	repo           ports.DocumentRepository
	storage        ports.ObjectStorage
	publisher      ports.EventPublisher
	bucket         string
	maxUploadBytes int64
	log            *slog.Logger
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	publisher ports.EventPublisher,
	bucket string,
	maxUploadBytes int64,
	log *slog.Logger,
) *IngestDocumentUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:           repo,
		storage:        storage,
		publisher:      publisher,
		bucket:         bucket,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Ingest validates, stores and records one uploaded document, then announces
// it. Validation runs before any side effect: a rejected upload leaves no
// object, no row and no message behind. Publish failures after the record is
// durable do not fail the upload; the document stays retrievable and the
// events are only logged as lost.
func (uc *IngestDocumentUseCase) Ingest(
	ctx context.Context,
	filename, contentType string,
	size int64,
	meta domain.Metadata,
	body io.Reader,
) (*domain.Document, error) {
	if err := uc.validate(filename, contentType, size); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	objectKey := buildObjectKey(id, filename)
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, uc.bucket, objectKey, body, size, contentType); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = filename
	}

	doc := &domain.Document{
		ID:               id,
		Title:            title,
		Location:         strings.TrimSpace(meta.Location),
		Author:           strings.TrimSpace(meta.Author),
		CreationDate:     meta.CreationDate,
		OriginalFileName: filename,
		ContentType:      contentType,
		SizeBytes:        size,
		Bucket:           uc.bucket,
		ObjectKey:        objectKey,
		CreatedUtc:       now,
		UpdatedUtc:       now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.publisher.PublishDocumentCreated(ctx, domain.NewDocumentCreated(doc)); err != nil {
		uc.log.Error("document created event lost", "document_id", doc.ID, "error", err)
	}
	if err := uc.publisher.PublishOcrRequested(ctx, domain.NewOcrRequested(doc)); err != nil {
		uc.log.Error("ocr request event lost", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

func (uc *IngestDocumentUseCase) validate(filename, contentType string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("missing file name"))
	}
	if size <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("empty file"))
	}
	if size > uc.maxUploadBytes {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("file size %d exceeds limit %d", size, uc.maxUploadBytes))
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("unsupported content type %q", contentType))
	}
	return nil
}

// buildObjectKey makes storage keys collision-free even for identical file
// names uploaded in the same instant: document id, then a short random
// component, then the sanitized original name for operator readability.
func buildObjectKey(id, filename string) string {
	return fmt.Sprintf("%s_%s_%s", id, randomHex(4), sanitizeFilename(filename))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
