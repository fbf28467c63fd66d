// Package ai holds the upstream AI contracts: the RAG completion service and
// the title generator. Both are consumed as plain request/response calls; the
// turn orchestrator owns all failure handling.
package ai

import "context"

// Turn is one entry of the bounded conversation history sent upstream.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is one retrieval hit the completion service grounded its reply on.
type Source struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Completion is a successful reply from the completion service.
type Completion struct {
	Reply      string
	Reasoning  string
	Sources    []Source
	Confidence float64
}

type CompletionClient interface {
	Complete(ctx context.Context, message string, history []Turn) (*Completion, error)
}

type TitleClient interface {
	GenerateTitle(ctx context.Context, seed string) (string, error)
}
