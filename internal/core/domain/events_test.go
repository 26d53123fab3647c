package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseEnvelopeExtractsType(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"OcrRequested","documentId":"doc-1"}`))
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if env.Type != EventTypeOcrRequested {
		t.Fatalf("expected OcrRequested, got %q", env.Type)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{broken`))
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseOcrRequestedRequiresObjectAddress(t *testing.T) {
	_, err := ParseOcrRequested([]byte(`{"type":"OcrRequested","documentId":"doc-1","bucket":"uploads"}`))
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing objectName, got %v", err)
	}
}

func TestParseOcrRequestedToleratesMissingDocumentID(t *testing.T) {
	msg, err := ParseOcrRequested([]byte(
		`{"type":"OcrRequested","bucket":"uploads","objectName":"k","originalFileName":"scan.pdf"}`))
	if err != nil {
		t.Fatalf("ParseOcrRequested() error = %v", err)
	}
	if msg.DocumentID != "" {
		t.Fatalf("expected empty document id, got %q", msg.DocumentID)
	}
}

func TestNewOcrRequestedWireShape(t *testing.T) {
	doc := &Document{
		ID:               "doc-1",
		Title:            "Invoice",
		Bucket:           "uploads",
		ObjectKey:        "doc-1_ab12cd34_scan.pdf",
		OriginalFileName: "scan.pdf",
		CreatedUtc:       time.Now().UTC(),
	}

	raw, err := json.Marshal(NewOcrRequested(doc))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, field := range []string{
		`"type":"OcrRequested"`,
		`"documentId":"doc-1"`,
		`"bucket":"uploads"`,
		`"objectName":"doc-1_ab12cd34_scan.pdf"`,
		`"originalFileName":"scan.pdf"`,
		`"createdUtc":`,
	} {
		if !strings.Contains(body, field) {
			t.Fatalf("wire payload missing %s: %s", field, body)
		}
	}
}

func TestNewDocumentCreatedWireShape(t *testing.T) {
	doc := &Document{ID: "doc-1", Title: "Invoice"}

	raw, err := json.Marshal(NewDocumentCreated(doc))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, field := range []string{`"type":"DocumentCreated"`, `"id":"doc-1"`, `"title":"Invoice"`, `"createdUtc":`} {
		if !strings.Contains(body, field) {
			t.Fatalf("wire payload missing %s: %s", field, body)
		}
	}
}
