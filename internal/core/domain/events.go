package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventTypeDocumentCreated = "DocumentCreated"
	EventTypeOcrRequested    = "OcrRequested"
)

// Envelope is the minimal shape every queue message must carry. The type
// discriminator decides dispatch; unknown types are acked and ignored so a
// newer publisher can never poison the queue.
type Envelope struct {
	Type string `json:"type"`
}

// DocumentCreated is informational; the OCR pipeline itself does not consume
// it, external collaborators (indexers) may.
type DocumentCreated struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedUtc time.Time `json:"createdUtc"`
}

// OcrRequested asks a worker to extract text from a stored object. It carries
// no processing state; all state lives on the Document record.
type OcrRequested struct {
	Type             string    `json:"type"`
	DocumentID       string    `json:"documentId"`
	Bucket           string    `json:"bucket"`
	ObjectName       string    `json:"objectName"`
	OriginalFileName string    `json:"originalFileName"`
	CreatedUtc       time.Time `json:"createdUtc"`
}

func NewDocumentCreated(doc *Document) DocumentCreated {
	return DocumentCreated{
		Type:       EventTypeDocumentCreated,
		ID:         doc.ID,
		Title:      doc.Title,
		CreatedUtc: time.Now().UTC(),
	}
}

func NewOcrRequested(doc *Document) OcrRequested {
	return OcrRequested{
		Type:             EventTypeOcrRequested,
		DocumentID:       doc.ID,
		Bucket:           doc.Bucket,
		ObjectName:       doc.ObjectKey,
		OriginalFileName: doc.OriginalFileName,
		CreatedUtc:       time.Now().UTC(),
	}
}

// ParseEnvelope extracts the type discriminator without committing to a
// payload shape.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, WrapError(ErrInvalidInput, "parse message envelope", err)
	}
	return env, nil
}

// ParseOcrRequested decodes a full OcrRequested payload. Bucket and object
// name are mandatory; a missing document id is tolerated (OCR still runs,
// summarization is skipped).
func ParseOcrRequested(body []byte) (OcrRequested, error) {
	var msg OcrRequested
	if err := json.Unmarshal(body, &msg); err != nil {
		return OcrRequested{}, WrapError(ErrInvalidInput, "parse OcrRequested", err)
	}
	if msg.Bucket == "" || msg.ObjectName == "" {
		return OcrRequested{}, WrapError(ErrInvalidInput, "parse OcrRequested",
			fmt.Errorf("missing bucket/objectName: bucket=%q objectName=%q", msg.Bucket, msg.ObjectName))
	}
	return msg, nil
}
