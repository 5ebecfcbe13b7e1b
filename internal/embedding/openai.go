package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder uses an OpenAI compatible embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an OpenAI embedder. baseURL may be empty for the
// public API, which requires apiKey. A zero dimension uses the model's
// native size.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("embedding api key not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	dim := dimensions
	if dim <= 0 {
		dim = 1536
		if model == "text-embedding-3-large" {
			dim = 3072
		}
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dim:    dim,
	}, nil
}

// GenerateEmbedding calls the embeddings endpoint for a single input.
func (e *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return []float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	if e.dim > 0 {
		req.Dimensions = e.dim
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return []float32{}, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return []float32{}, errors.New("no embedding data returned from API")
	}

	raw := resp.Data[0].Embedding
	v := make([]float32, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}
	if len(v) != e.dim {
		return []float32{}, fmt.Errorf("embedding has %d dimensions, expected %d", len(v), e.dim)
	}

	l2normalize(v)
	return v, nil
}

// Dimensions returns the configured vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dim
}
