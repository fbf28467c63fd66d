package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const titleSystemPrompt = "Generate a concise title (3-5 words) for a customer support conversation that starts with the following message. Reply with the title only, no quotes."

const maxTitleLen = 120

// OpenAITitler generates session titles with a single small chat completion.
type OpenAITitler struct {
	client *openai.Client
	model  string
}

func NewOpenAITitler(apiKey, model string) *OpenAITitler {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAITitler{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAITitlerWithBaseURL points the client at an alternate endpoint
// (local gateways, tests).
func NewOpenAITitlerWithBaseURL(apiKey, model, baseURL string) *OpenAITitler {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	t := NewOpenAITitler(apiKey, model)
	t.client = openai.NewClientWithConfig(cfg)
	return t
}

func (t *OpenAITitler) GenerateTitle(ctx context.Context, seed string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0.2,
		MaxTokens:   24,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: seed},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("titler: no choices returned")
	}

	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("titler: empty title")
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title, nil
}
