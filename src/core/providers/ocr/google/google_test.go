package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"receipt-scanner-go/src/core/providers/ocr"
	"receipt-scanner-go/src/core/utils"
)

func TestRecognizeReturnsRawBody(t *testing.T) {
	const upstream = `{"responses":[{"fullTextAnnotation":{"text":"COFFEE 3.50"}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			http.Error(w, "bad key", http.StatusForbidden)
			return
		}
		var req annotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Requests) != 1 || req.Requests[0].Image.Content != "aGVsbG8=" || req.Requests[0].Features[0].Type != "TEXT_DETECTION" {
			http.Error(w, "unexpected body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, upstream)
	}))
	defer srv.Close()

	logger := utils.NewWriterLogger(io.Discard, utils.InfoLevel)
	p, err := NewProvider(&ocr.Config{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, logger)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	raw, err := p.Recognize(context.Background(), "aGVsbG8=")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if string(raw) != upstream {
		t.Errorf("raw = %s, want verbatim upstream body", raw)
	}
}

func TestRecognizeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	logger := utils.NewWriterLogger(io.Discard, utils.InfoLevel)
	p, _ := NewProvider(&ocr.Config{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, logger)
	if _, err := p.Recognize(context.Background(), "aGVsbG8="); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestNewProviderRequiresKey(t *testing.T) {
	logger := utils.NewWriterLogger(io.Discard, utils.InfoLevel)
	if _, err := NewProvider(&ocr.Config{}, logger); err == nil {
		t.Fatal("expected error without API key")
	}
}
