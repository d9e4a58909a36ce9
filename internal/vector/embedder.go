// Package vector embeds passages and maintains the semantic index those
// embeddings live in.
package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/mfukata/kensho/internal/cache"
	"github.com/mfukata/kensho/internal/client"
	"github.com/mfukata/kensho/internal/model"
)

// Embedder converts text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API. Calls go
// through a rate-limited client; results are cached keyed on model+text
// so resumed runs never re-embed committed passages.
type OpenAIEmbedder struct {
	api     *openai.Client
	model   string
	limiter *client.Client
	cache   cache.Cache
}

// NewOpenAIEmbedder creates an embedder. The cache may be nil to disable
// caching.
func NewOpenAIEmbedder(cfg model.EmbeddingConfig, limiter *client.Client, c cache.Cache) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	embeddingModel := cfg.Model
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbedder{
		api:     openai.NewClientWithConfig(clientConfig),
		model:   embeddingModel,
		limiter: limiter,
		cache:   c,
	}, nil
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed returns the vector for one passage
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.EmbeddingKey(e.model, text)

	if e.cache != nil {
		if data, found := e.cache.Get(key); found {
			var vec []float32
			if err := json.Unmarshal(data, &vec); err == nil && len(vec) > 0 {
				return vec, nil
			}
			// Fall through and re-embed on a corrupt entry
		}
	}

	var vec []float32
	err := e.limiter.Do(ctx, func(ctx context.Context) error {
		resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed passage: %w", err)
	}

	if e.cache != nil {
		if data, err := json.Marshal(vec); err == nil {
			// Cache failures are not fatal, the vector is already in hand
			_ = e.cache.Set(key, data, 0)
		}
	}

	return vec, nil
}
