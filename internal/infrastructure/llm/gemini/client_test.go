package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return New(baseURL, "test-key", "gemini-2.0-flash", Options{Timeout: 5 * time.Second})
}

func TestSummarizeParsesCandidateText(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-goog-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Errorf("expected a single prompt part, got %+v", req.Contents)
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "quarterly report") {
			t.Errorf("prompt does not carry the document text")
		}
		if req.GenerationConfig.MaxOutputTokens != 300 {
			t.Errorf("expected maxOutputTokens 300, got %d", req.GenerationConfig.MaxOutputTokens)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  - revenue up\n- costs flat  "}]}}]}`))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "quarterly report text")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "- revenue up\n- costs flat" {
		t.Fatalf("unexpected summary %q", summary)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
}

func TestSummarizeBlankInputSkipsCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Errorf("no request expected for blank input")
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "   \n\t")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "" {
		t.Fatalf("expected empty summary, got %q", summary)
	}
}

func TestSummarizeReturnsErrorOnHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "some document")
	if err == nil {
		t.Fatalf("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error should carry the status, got %v", err)
	}
}

func TestSummarizeReturnsErrorOnEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "some document")
	if err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}
