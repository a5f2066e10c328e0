package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mindgraph/backend/pkg/logger"
)

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI-compatible API
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	breaker *Breaker
	logger  *zap.Logger
}

// NewOpenAIEmbedder creates an embedder for the given model
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(config),
		model:   openai.EmbeddingModel(model),
		breaker: NewBreaker("embedding"),
		logger:  logger.Get(),
	}
}

// Embed returns the embedding of text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp openai.EmbeddingResponse
	err := e.breaker.Do(func() error {
		var callErr error
		resp, callErr = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: e.model,
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	e.logger.Debug("Embedding generated",
		zap.String("model", string(e.model)),
		zap.Int("dimensions", len(resp.Data[0].Embedding)),
	)
	return resp.Data[0].Embedding, nil
}

// CachedEmbedder memoizes embeddings of identical text
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with a cache holding roughly maxItems vectors
func NewCachedEmbedder(inner Embedder, maxItems int) (*CachedEmbedder, error) {
	if maxItems < 1 {
		maxItems = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxItems) * 10,
		MaxCost:     int64(maxItems),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed serves from cache or delegates and stores the result
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Wait blocks until buffered cache writes are applied
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
