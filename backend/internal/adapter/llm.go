package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mindgraph/backend/pkg/logger"
)

// LLMAdapter is the generative reasoner. It talks to any OpenAI-compatible endpoint.
type LLMAdapter struct {
	client   *openai.Client
	model    string
	jsonMode bool
	mu       sync.RWMutex // Protects model field for concurrent access
	breaker  *Breaker
	logger   *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(baseURL, apiKey, modelID string, jsonMode bool) *LLMAdapter {
	// Local gateways accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &LLMAdapter{
		client:   openai.NewClientWithConfig(config),
		model:    modelID,
		jsonMode: jsonMode,
		breaker:  NewBreaker("reasoner"),
		logger:   logger.Get(),
	}
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Generate sends one instruction and one context block and returns the raw text.
// There are no retries here; a failed call fails the turn.
func (a *LLMAdapter) Generate(ctx context.Context, instruction, contextBlock string) (string, error) {
	currentModel := a.GetModel()

	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: contextBlock},
		},
		Temperature: 0.4,
	}
	if a.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	err := a.breaker.Do(func() error {
		var callErr error
		resp, callErr = a.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		a.logger.Error("LLM request failed",
			zap.String("model", currentModel),
			zap.Error(err),
		)
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	content := resp.Choices[0].Message.Content
	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("content_length", len(content)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return content, nil
}
