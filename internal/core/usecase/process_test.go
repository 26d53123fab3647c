package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/phennig/dms-pipeline/internal/core/domain"
	"github.com/phennig/dms-pipeline/internal/observability/logging"
)

type processRepoFake struct {
	summaries map[string][]string
	updateErr error
}

func newProcessRepoFake() *processRepoFake {
	return &processRepoFake{summaries: map[string][]string{}}
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error {
	return errors.New("not implemented")
}

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *processRepoFake) UpdateSummary(_ context.Context, id, summary string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.summaries[id] = append(f.summaries[id], summary)
	return nil
}

func (f *processRepoFake) latest(id string) string {
	writes := f.summaries[id]
	if len(writes) == 0 {
		return ""
	}
	return writes[len(writes)-1]
}

type processStorageFake struct {
	objects map[string]string
	opened  []string
}

func (f *processStorageFake) Save(context.Context, string, string, io.Reader, int64, string) error {
	return errors.New("not implemented")
}

func (f *processStorageFake) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	addr := bucket + "/" + key
	f.opened = append(f.opened, addr)
	content, ok := f.objects[addr]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open object", fmt.Errorf("no object %s", addr))
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type extractorFake struct {
	text  string
	err   error
	paths []string
}

func (f *extractorFake) ExtractText(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type summarizerFake struct {
	summary string
	err     error
	calls   int
}

func (f *summarizerFake) Summarize(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func newProcessUseCase(repo *processRepoFake, storage *processStorageFake, extractor *extractorFake, summarizer *summarizerFake) *ProcessDocumentUseCase {
	return NewProcessDocumentUseCase(repo, storage, extractor, summarizer, nil, "worker-test",
		logging.NewJSONLogger("test", "error"))
}

func ocrRequestedBody(documentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"OcrRequested","documentId":%q,"bucket":"uploads","objectName":"abc_1234_scan.pdf","originalFileName":"scan.pdf","createdUtc":%q}`,
		documentID, time.Now().UTC().Format(time.RFC3339Nano)))
}

func TestHandleMessageStoresSummary(t *testing.T) {
	repo := newProcessRepoFake()
	storage := &processStorageFake{objects: map[string]string{"uploads/abc_1234_scan.pdf": "pdf-bytes"}}
	extractor := &extractorFake{text: "Rechnung 42 vom 01.03.2025"}
	summarizer := &summarizerFake{summary: "- invoice 42"}
	uc := newProcessUseCase(repo, storage, extractor, summarizer)

	if err := uc.HandleMessage(context.Background(), ocrRequestedBody("doc-1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := repo.latest("doc-1"); got != "- invoice 42" {
		t.Fatalf("expected stored summary, got %q", got)
	}
	if len(extractor.paths) != 1 {
		t.Fatalf("expected one extraction, got %d", len(extractor.paths))
	}
	if !strings.HasSuffix(extractor.paths[0], ".pdf") {
		t.Fatalf("scratch file must keep the source extension, got %s", extractor.paths[0])
	}
}

func TestHandleMessageMissingObjectBouncesMessage(t *testing.T) {
	repo := newProcessRepoFake()
	storage := &processStorageFake{objects: map[string]string{}}
	uc := newProcessUseCase(repo, storage, &extractorFake{text: "x"}, &summarizerFake{})

	err := uc.HandleMessage(context.Background(), ocrRequestedBody("doc-1"))
	if err == nil {
		t.Fatalf("expected error for missing object")
	}
	if len(repo.summaries) != 0 {
		t.Fatalf("no summary writes expected")
	}
}

func TestHandleMessageExtractionFailureBouncesMessage(t *testing.T) {
	storage := &processStorageFake{objects: map[string]string{"uploads/abc_1234_scan.pdf": "pdf-bytes"}}
	extractor := &extractorFake{err: errors.New("render failed")}
	summarizer := &summarizerFake{}
	uc := newProcessUseCase(newProcessRepoFake(), storage, extractor, summarizer)

	if err := uc.HandleMessage(context.Background(), ocrRequestedBody("doc-1")); err == nil {
		t.Fatalf("expected error for extraction failure")
	}
	if summarizer.calls != 0 {
		t.Fatalf("summarizer must not run without extracted text")
	}
}

func TestHandleMessageSummarizerFailureStillAcks(t *testing.T) {
	repo := newProcessRepoFake()
	storage := &processStorageFake{objects: map[string]string{"uploads/abc_1234_scan.pdf": "pdf-bytes"}}
	summarizer := &summarizerFake{err: errors.New("model timeout")}
	uc := newProcessUseCase(repo, storage, &extractorFake{text: "some text"}, summarizer)

	if err := uc.HandleMessage(context.Background(), ocrRequestedBody("doc-1")); err != nil {
		t.Fatalf("summarization failure must not bounce the message, got %v", err)
	}
	if summarizer.calls != 1 {
		t.Fatalf("expected exactly one summarization attempt, got %d", summarizer.calls)
	}
	if len(repo.summaries) != 0 {
		t.Fatalf("no summary expected on failure")
	}
}

func TestHandleMessageSummaryWriteFailureStillAcks(t *testing.T) {
	repo := newProcessRepoFake()
	repo.updateErr = errors.New("db down")
	storage := &processStorageFake{objects: map[string]string{"uploads/abc_1234_scan.pdf": "pdf-bytes"}}
	uc := newProcessUseCase(repo, storage, &extractorFake{text: "some text"}, &summarizerFake{summary: "- sum"})

	if err := uc.HandleMessage(context.Background(), ocrRequestedBody("doc-1")); err != nil {
		t.Fatalf("summary write failure must not bounce the message, got %v", err)
	}
}

func TestHandleMessageMissingDocumentIDSkipsSummarization(t *testing.T) {
	repo := newProcessRepoFake()
	storage := &processStorageFake{objects: map[string]string{"uploads/abc_1234_scan.pdf": "pdf-bytes"}}
	summarizer := &summarizerFake{summary: "- sum"}
	uc := newProcessUseCase(repo, storage, &extractorFake{text: "some text"}, summarizer)

	if err := uc.HandleMessage(context.Background(), ocrRequestedBody("")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if summarizer.calls != 0 {
		t.Fatalf("summarizer must not run without a document id")
	}
	if len(repo.summaries) != 0 {
		t.Fatalf("no summary writes expected")
	}
}

func TestHandleMessageDuplicateDeliveryOverwritesSummary(t *testing.T) {
	repo := newProcessRepoFake()
	storage := &processStorageFake{objects: map[string]string{"uploads/abc_1234_scan.pdf": "pdf-bytes"}}
	summarizer := &summarizerFake{summary: "- first"}
	uc := newProcessUseCase(repo, storage, &extractorFake{text: "some text"}, summarizer)

	body := ocrRequestedBody("doc-1")
	if err := uc.HandleMessage(context.Background(), body); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	summarizer.summary = "- second"
	if err := uc.HandleMessage(context.Background(), body); err != nil {
		t.Fatalf("second delivery error = %v", err)
	}

	if len(repo.summaries["doc-1"]) != 2 {
		t.Fatalf("expected two writes, got %d", len(repo.summaries["doc-1"]))
	}
	if got := repo.latest("doc-1"); got != "- second" {
		t.Fatalf("last write must win, got %q", got)
	}
}

func TestHandleMessageUnknownTypeIsAcked(t *testing.T) {
	repo := newProcessRepoFake()
	storage := &processStorageFake{objects: map[string]string{}}
	summarizer := &summarizerFake{}
	uc := newProcessUseCase(repo, storage, &extractorFake{text: "x"}, summarizer)

	if err := uc.HandleMessage(context.Background(), []byte(`{"type":"DocumentArchived","id":"doc-9"}`)); err != nil {
		t.Fatalf("unknown types must be acked, got %v", err)
	}
	if len(storage.opened) != 0 || summarizer.calls != 0 {
		t.Fatalf("no side effects expected for unknown types")
	}
}

func TestHandleMessageDocumentCreatedIsAcked(t *testing.T) {
	storage := &processStorageFake{objects: map[string]string{}}
	uc := newProcessUseCase(newProcessRepoFake(), storage, &extractorFake{text: "x"}, &summarizerFake{})

	body := []byte(`{"type":"DocumentCreated","id":"doc-1","title":"t","createdUtc":"2025-03-01T10:00:00Z"}`)
	if err := uc.HandleMessage(context.Background(), body); err != nil {
		t.Fatalf("informational events must be acked, got %v", err)
	}
	if len(storage.opened) != 0 {
		t.Fatalf("no object access expected")
	}
}

func TestHandleMessageMalformedBodyBounces(t *testing.T) {
	uc := newProcessUseCase(newProcessRepoFake(), &processStorageFake{}, &extractorFake{}, &summarizerFake{})

	if err := uc.HandleMessage(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed body")
	}
}

func TestHandleMessageOcrRequestedWithoutObjectBounces(t *testing.T) {
	uc := newProcessUseCase(newProcessRepoFake(), &processStorageFake{}, &extractorFake{}, &summarizerFake{})

	err := uc.HandleMessage(context.Background(), []byte(`{"type":"OcrRequested","documentId":"doc-1"}`))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing object address, got %v", err)
	}
}
