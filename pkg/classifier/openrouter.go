package classifier

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultModel is the model slug used when the configuration does not name
// one.
const DefaultModel = "openai/gpt-5"

// OpenRouter is a single-turn chat completion client against the OpenRouter
// API. Each Classify call is an independent request; no conversation state
// is kept between messages.
type OpenRouter struct {
	client *openai.Client
	model  string
}

// NewOpenRouter builds the client. baseURL and model fall back to the
// OpenRouter endpoint and DefaultModel when empty.
func NewOpenRouter(apiKey, baseURL, model string) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter api key required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")

	return &OpenRouter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Classify sends the prompt as a single user message and returns the raw
// response text. The caller owns parsing and the per-call deadline.
func (c *OpenRouter) Classify(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
