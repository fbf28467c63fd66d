package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RAGClient talks to the retrieval-augmented completion service over HTTP.
type RAGClient struct {
	BaseURL string
	Client  *http.Client
}

func NewRAGClient(baseURL string, timeout time.Duration) *RAGClient {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RAGClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type ragChatReq struct {
	Message             string `json:"message"`
	ConversationHistory []Turn `json:"conversation_history"`
}

type ragChatResp struct {
	Response    string   `json:"response"`
	Reasoning   string   `json:"reasoning,omitempty"`
	ContextUsed []Source `json:"context_used"`
	Confidence  float64  `json:"confidence"`
}

func (c *RAGClient) Complete(ctx context.Context, message string, history []Turn) (*Completion, error) {
	if c.Client == nil {
		return nil, errors.New("rag: http client is nil")
	}

	if history == nil {
		history = []Turn{}
	}
	b, err := json.Marshal(ragChatReq{
		Message:             message,
		ConversationHistory: history,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/chat", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rag: status %d", resp.StatusCode)
	}

	var decoded ragChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("rag: decode response: %w", err)
	}
	if decoded.Response == "" {
		return nil, errors.New("rag: empty response text")
	}

	return &Completion{
		Reply:      decoded.Response,
		Reasoning:  decoded.Reasoning,
		Sources:    decoded.ContextUsed,
		Confidence: decoded.Confidence,
	}, nil
}
