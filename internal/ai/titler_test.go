package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func titleServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestOpenAITitler_TrimsQuotesAndWhitespace(t *testing.T) {
	srv := titleServer(t, "  \"Balance Inquiry\"  ")
	defer srv.Close()

	titler := NewOpenAITitlerWithBaseURL("test-key", "gpt-4o-mini", srv.URL+"/v1")
	title, err := titler.GenerateTitle(context.Background(), "What is my balance?")
	if err != nil {
		t.Fatalf("generate title: %v", err)
	}
	if title != "Balance Inquiry" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestOpenAITitler_EmptyTitleIsError(t *testing.T) {
	srv := titleServer(t, "   ")
	defer srv.Close()

	titler := NewOpenAITitlerWithBaseURL("test-key", "gpt-4o-mini", srv.URL+"/v1")
	if _, err := titler.GenerateTitle(context.Background(), "seed"); err == nil {
		t.Fatalf("expected error on empty title")
	}
}

func TestOpenAITitler_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	titler := NewOpenAITitlerWithBaseURL("test-key", "gpt-4o-mini", srv.URL+"/v1")
	if _, err := titler.GenerateTitle(context.Background(), "seed"); err == nil {
		t.Fatalf("expected upstream error")
	}
}

func TestOpenAITitler_CapsLength(t *testing.T) {
	long := make([]rune, 0, 300)
	for i := 0; i < 300; i++ {
		long = append(long, 'x')
	}
	srv := titleServer(t, string(long))
	defer srv.Close()

	titler := NewOpenAITitlerWithBaseURL("test-key", "gpt-4o-mini", srv.URL+"/v1")
	title, err := titler.GenerateTitle(context.Background(), "seed")
	if err != nil {
		t.Fatalf("generate title: %v", err)
	}
	if len([]rune(title)) != maxTitleLen {
		t.Fatalf("expected capped title, got %d runes", len([]rune(title)))
	}
}
