package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRAGClient_Complete(t *testing.T) {
	var gotReq ragChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response":  "Your balance is $42",
			"reasoning": "account lookup",
			"context_used": []map[string]any{
				{"id": "doc-1", "text": "balances", "category": "billing", "score": 0.91},
			},
			"confidence": 0.91,
		})
	}))
	defer srv.Close()

	c := NewRAGClient(srv.URL, 5*time.Second)
	got, err := c.Complete(context.Background(), "What is my balance?", []Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if gotReq.Message != "What is my balance?" || len(gotReq.ConversationHistory) != 2 {
		t.Fatalf("unexpected upstream request: %+v", gotReq)
	}
	if got.Reply != "Your balance is $42" || got.Reasoning != "account lookup" {
		t.Fatalf("unexpected completion: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Category != "billing" {
		t.Fatalf("unexpected sources: %+v", got.Sources)
	}
}

func TestRAGClient_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRAGClient(srv.URL, 5*time.Second)
	if _, err := c.Complete(context.Background(), "hi", nil); err == nil {
		t.Fatalf("expected error on 5xx")
	}
}

func TestRAGClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewRAGClient(srv.URL, 5*time.Second)
	if _, err := c.Complete(context.Background(), "hi", nil); err == nil {
		t.Fatalf("expected error on malformed body")
	}
}

func TestRAGClient_EmptyReplyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": ""})
	}))
	defer srv.Close()

	c := NewRAGClient(srv.URL, 5*time.Second)
	if _, err := c.Complete(context.Background(), "hi", nil); err == nil {
		t.Fatalf("expected error on empty reply")
	}
}

func TestRAGClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Outlast the client's deadline, but return eventually so the server
		// can shut down: the unread request body keeps the context alive.
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewRAGClient(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "hi", nil); err == nil {
		t.Fatalf("expected timeout error")
	}
}
