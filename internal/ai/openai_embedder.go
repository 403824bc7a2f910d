package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type EmbedderConfig struct {
	Model             string
	Dimensions        int
	RequestsPerSecond float64
	Breaker           BreakerConfig
}

// OpenAIEmbedder encodes text with the OpenAI embeddings endpoint. The
// vector dimension is fixed at construction and every response is checked
// against it.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	dim     int
	limiter *rate.Limiter
	breaker *breaker
}

func NewOpenAIEmbedder(client *openai.Client, cfg EmbedderConfig, log logrus.FieldLogger) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &OpenAIEmbedder{
		client:  client,
		model:   openai.EmbeddingModel(cfg.Model),
		dim:     cfg.Dimensions,
		limiter: rate.NewLimiter(limit, 1),
		breaker: newBreaker("openai-embeddings", cfg.Breaker, log),
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dim }

func (e *OpenAIEmbedder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embedding rate limit: %w", err)
	}

	out, err := e.breaker.execute(func() (interface{}, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      e.model,
			Dimensions: e.dim,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, err
	}

	vec := out.([]float32)
	if len(vec) != e.dim {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), e.dim)
	}
	return vec, nil
}
