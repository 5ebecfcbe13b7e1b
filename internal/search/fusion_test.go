package search

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFuse(t *testing.T) {
	lexical := []LexicalHit{
		{ID: "a", Score: 4, Highlights: []string{"<mark>a</mark>"}},
		{ID: "b", Score: 2},
	}
	vector := []ScoredID{
		{ID: "b", Score: 0.8},
		{ID: "c", Score: 0.4},
	}

	got := fuse(lexical, vector, DefaultWeights())
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}

	// a: 0.5*1 + 0 = 0.5; b: 0.5*0.5 + 0.5*1 = 0.75; c: 0 + 0.5*0.5 = 0.25
	want := []struct {
		id    string
		score float64
	}{{"b", 0.75}, {"a", 0.5}, {"c", 0.25}}
	for i, w := range want {
		if got[i].ID != w.id || !almostEqual(got[i].Score, w.score) {
			t.Errorf("got[%d] = %s/%f, want %s/%f", i, got[i].ID, got[i].Score, w.id, w.score)
		}
	}
	if len(got[1].Highlights) != 1 {
		t.Error("lexical highlights should be carried over")
	}
}

func TestFuse_Weights(t *testing.T) {
	lexical := []LexicalHit{{ID: "a", Score: 1}}
	vector := []ScoredID{{ID: "b", Score: 1}}

	got := fuse(lexical, vector, Weights{Lexical: 0.2, Vector: 0.8})
	if got[0].ID != "b" || !almostEqual(got[0].Score, 0.8) {
		t.Errorf("got %+v, want b first with 0.8", got[0])
	}
}

func TestFuse_TiesOrderedByID(t *testing.T) {
	vector := []ScoredID{{ID: "z", Score: 0.5}, {ID: "m", Score: 0.5}, {ID: "a", Score: 0.5}}
	got := fuse(nil, vector, DefaultWeights())
	if got[0].ID != "a" || got[1].ID != "m" || got[2].ID != "z" {
		t.Errorf("tie order = %s %s %s, want a m z", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestFuse_Empty(t *testing.T) {
	if got := fuse(nil, nil, DefaultWeights()); len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
}

func TestPage(t *testing.T) {
	tests := []struct {
		n, skip, top int
		from, to     int
	}{
		{10, 0, 3, 0, 3},
		{10, 8, 5, 8, 10},
		{10, 10, 5, 10, 10},
		{10, 20, 5, 10, 10},
		{0, 0, 50, 0, 0},
	}
	for _, tt := range tests {
		from, to := page(tt.n, tt.skip, tt.top)
		if from != tt.from || to != tt.to {
			t.Errorf("page(%d, %d, %d) = %d, %d; want %d, %d", tt.n, tt.skip, tt.top, from, to, tt.from, tt.to)
		}
	}
}
