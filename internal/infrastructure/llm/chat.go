package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
)

// ChatClient implements ports.Completer for OpenAI-compatible chat completion APIs.
type ChatClient struct {
	name     string
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

var _ ports.Completer = (*ChatClient)(nil)

// ChatMessage is one turn of the conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request body of /chat/completions.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatResponse is the subset of the completion envelope we read.
type ChatResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewChatClient builds a named client. An empty apiKey disables it.
func NewChatClient(name, endpoint, model, apiKey string, client *http.Client) *ChatClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &ChatClient{name: name, endpoint: endpoint, model: model, apiKey: apiKey, http: client}
}

// Name identifies the provider and credential slot in logs and metrics.
func (c *ChatClient) Name() string {
	return c.name
}

// Complete posts prompt as a user message and returns the first choice.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", domain.ErrProviderDisabled
	}

	payload := ChatRequest{
		Model:    c.model,
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	}

	var resp ChatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.http, c.endpoint, headers, payload, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choice list")
	}
	return resp.Choices[0].Message.Content, nil
}
