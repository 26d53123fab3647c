package direct

import (
	"context"
	"errors"
	"testing"

	"github.com/phennig/dms-pipeline/internal/core/domain"
)

type recognizerFake struct {
	text   string
	err    error
	called bool
}

func (f *recognizerFake) Recognize(context.Context, string) (string, error) {
	f.called = true
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestExtractTextFailsFastOnPDF(t *testing.T) {
	rec := &recognizerFake{text: "should not be used"}
	e := New(rec)

	_, err := e.ExtractText(context.Background(), "/tmp/scan.PDF")
	if err == nil {
		t.Fatalf("expected error for paginated input")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if rec.called {
		t.Fatalf("recognizer must not run on a paginated format")
	}
}

func TestExtractTextTrimsTrailingWhitespace(t *testing.T) {
	e := New(&recognizerFake{text: "hello world\n\f"})

	text, err := e.ExtractText(context.Background(), "/tmp/scan.png")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
}

func TestExtractTextPropagatesRecognizerError(t *testing.T) {
	errEngine := errors.New("engine crashed")
	e := New(&recognizerFake{err: errEngine})

	_, err := e.ExtractText(context.Background(), "/tmp/scan.tiff")
	if !errors.Is(err, errEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
}
