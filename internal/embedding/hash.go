package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of the hashing embedder.
const DefaultHashDimensions = 384

var tokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[0-9]+`)

// HashEmbedder is a deterministic, offline embedder based on feature hashing
// of identifier tokens. Identifiers are split on camelCase and snake_case so
// "parseConfig" and "parse_config" share features.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder. A non-positive dimension uses
// DefaultHashDimensions.
func NewHashEmbedder(dimensions int) (*HashEmbedder, error) {
	if dimensions < 0 {
		return nil, errors.New("dimensions cannot be negative")
	}
	if dimensions == 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dim: dimensions}, nil
}

// GenerateEmbedding returns a unit vector, or an empty vector for text
// without tokens.
func (e *HashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := tokenPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return []float32{}, nil
	}

	vec := make([]float32, e.dim)
	for _, token := range tokens {
		for _, part := range splitIdentifier(token) {
			h := fnv.New64a()
			_, _ = h.Write([]byte(part))
			sum := h.Sum64()
			idx := int(sum % uint64(e.dim))
			if sum&(1<<63) != 0 {
				vec[idx]--
			} else {
				vec[idx]++
			}
		}
	}

	l2normalize(vec)
	return vec, nil
}

// Dimensions returns the vector size.
func (e *HashEmbedder) Dimensions() int {
	return e.dim
}

// splitIdentifier lower-cases token and splits it on '_' and case changes.
// The whole token is kept as an extra feature.
func splitIdentifier(token string) []string {
	lower := strings.ToLower(token)
	parts := []string{lower}

	var current []rune
	flush := func() {
		if len(current) > 1 {
			part := strings.ToLower(string(current))
			if part != lower {
				parts = append(parts, part)
			}
		}
		current = current[:0]
	}

	runes := []rune(token)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
		}
		current = append(current, r)
	}
	flush()
	return parts
}
