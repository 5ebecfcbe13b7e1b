package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying Embedder.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with a burst of one second's
// worth of requests.
func NewRateLimited(next Embedder, rps float64) *RateLimited {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GenerateEmbedding waits for a token then delegates.
func (r *RateLimited) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GenerateEmbedding(ctx, text)
}

func (r *RateLimited) Dimensions() int {
	return r.next.Dimensions()
}
