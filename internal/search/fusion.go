package search

import "sort"

// Weights are the hybrid fusion weights of the lexical and vector scores.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights weighs both retrieval paths equally.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Vector: 0.5}
}

// fused is a candidate of a hybrid search with its normalised components.
type fused struct {
	ID         string
	Score      float64
	Lexical    float64
	Vector     float64
	Highlights []string
}

// fuse merges lexical and vector candidates. Each score set is divided by
// its maximum, then combined as wl*lexical + wv*vector. A candidate missing
// from one path contributes 0 for it. The result is ordered by score
// descending then id ascending.
func fuse(lexical []LexicalHit, vector []ScoredID, w Weights) []fused {
	maxLex := 0.0
	for _, h := range lexical {
		if h.Score > maxLex {
			maxLex = h.Score
		}
	}
	maxVec := 0.0
	for _, s := range vector {
		if s.Score > maxVec {
			maxVec = s.Score
		}
	}

	byID := make(map[string]*fused, len(lexical)+len(vector))
	get := func(id string) *fused {
		f, ok := byID[id]
		if !ok {
			f = &fused{ID: id}
			byID[id] = f
		}
		return f
	}

	for _, h := range lexical {
		f := get(h.ID)
		f.Lexical = normalise(h.Score, maxLex)
		f.Highlights = h.Highlights
	}
	for _, s := range vector {
		get(s.ID).Vector = normalise(s.Score, maxVec)
	}

	out := make([]fused, 0, len(byID))
	for _, f := range byID {
		f.Score = w.Lexical*f.Lexical + w.Vector*f.Vector
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func normalise(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max
}

// page returns the [skip, skip+top) window of n items as bounds.
func page(n, skip, top int) (int, int) {
	if skip >= n {
		return n, n
	}
	end := skip + top
	if end > n {
		end = n
	}
	return skip, end
}
