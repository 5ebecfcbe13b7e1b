// Package embedding provides text embedding generators.
//
// An Embedder returns a fixed-length vector per deployment. An empty vector is
// the failure signal callers check for; implementations may also return an
// error with more detail.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// GenerateEmbedding returns the embedding of text, or an empty vector when
	// no embedding could be produced.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the length of every non-empty vector returned.
	Dimensions() int
}

// Config selects and configures an Embedder.
type Config struct {
	Provider          string
	Model             string
	Dimensions        int
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
}

// New creates the Embedder described by cfg, wrapped in a rate limiter when
// RequestsPerSecond is positive.
func New(cfg Config) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		h, err := NewHashEmbedder(cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		e = h
	case ProviderOpenAI:
		o, err := NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		e = o
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}

	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimited(e, cfg.RequestsPerSecond)
	}
	return e, nil
}

// l2normalize scales v to unit length in place. Zero vectors are left alone.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
