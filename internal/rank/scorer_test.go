package rank

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/encoder"
	"github.com/hyperjump/umekomi/internal/pipeline"
)

func newTestScorer(t *testing.T, scale float64) *Scorer {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	sched := pipeline.NewScheduler(encoder.NewMockModel(64), &cfg.Encode)
	return NewScorer(sched, scale)
}

func anchorWithMatches(anchorText string, matchTexts ...string) *docs.Document {
	matches := make([]*docs.Document, len(matchTexts))
	for i, text := range matchTexts {
		matches[i] = &docs.Document{ID: fmt.Sprintf("m%d", i), Text: text}
	}
	return &docs.Document{ID: "anchor", Text: anchorText, Matches: matches}
}

func TestRankScoresEveryMatch(t *testing.T) {
	r := newTestScorer(t, 1.0)
	anchor := anchorWithMatches("a picture of a dog",
		"a photo of a dog", "a photo of a cat", "an empty street")
	if err := r.Rank(context.Background(), []*docs.Document{anchor}, 0, false); err != nil {
		t.Fatal(err)
	}
	for _, m := range anchor.Matches {
		cos, ok := m.Score(docs.ScoreCLIPCosine)
		if !ok {
			t.Fatalf("match %s missing %s", m.ID, docs.ScoreCLIPCosine)
		}
		if cos < -1.0000001 || cos > 1.0000001 {
			t.Errorf("match %s cosine out of range: %v", m.ID, cos)
		}
		if _, ok := m.Score(docs.ScoreCLIP); !ok {
			t.Fatalf("match %s missing %s", m.ID, docs.ScoreCLIP)
		}
	}
}

func TestRankSoftmaxSumsToOne(t *testing.T) {
	r := newTestScorer(t, 100.0)
	anchor := anchorWithMatches("query", "one", "two", "three", "four")
	if err := r.Rank(context.Background(), []*docs.Document{anchor}, 0, false); err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, m := range anchor.Matches {
		s, _ := m.Score(docs.ScoreCLIP)
		sum += s
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("softmax scores sum to %v, want 1", sum)
	}
}

func TestRankSortsDescending(t *testing.T) {
	r := newTestScorer(t, 1.0)
	anchor := anchorWithMatches("query",
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot")
	if err := r.Rank(context.Background(), []*docs.Document{anchor}, 0, false); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(anchor.Matches); i++ {
		prev, _ := anchor.Matches[i-1].Score(docs.ScoreCLIP)
		cur, _ := anchor.Matches[i].Score(docs.ScoreCLIP)
		if cur > prev {
			t.Fatalf("matches not sorted: position %d (%v) > position %d (%v)", i, cur, i-1, prev)
		}
	}
}

func TestRankExactDuplicateWins(t *testing.T) {
	r := newTestScorer(t, 10.0)
	anchor := anchorWithMatches("hello, world!",
		"a lazy dog jumps", "hello, world!", "completely unrelated text",
		"some other sentence", "yet another candidate")
	if err := r.Rank(context.Background(), []*docs.Document{anchor}, 0, false); err != nil {
		t.Fatal(err)
	}
	top := anchor.Matches[0]
	if top.Text != "hello, world!" {
		t.Errorf("top match = %q, want the exact duplicate", top.Text)
	}
	cos, _ := top.Score(docs.ScoreCLIPCosine)
	if math.Abs(cos-1.0) > 1e-5 {
		t.Errorf("duplicate cosine = %v, want 1", cos)
	}
}

func TestRankZeroMatchesNoOp(t *testing.T) {
	r := newTestScorer(t, 1.0)
	anchor := &docs.Document{ID: "lonely", Text: "no candidates"}
	if err := r.Rank(context.Background(), []*docs.Document{anchor}, 0, false); err != nil {
		t.Fatal(err)
	}
	if !anchor.HasEmbedding() {
		t.Error("anchor should still be embedded")
	}
}

func TestRankAnchorFailureIsIsolated(t *testing.T) {
	r := newTestScorer(t, 1.0)
	// The second anchor carries a pre-set embedding of the wrong dimension,
	// which survives overwrite=false and breaks its cosine computation.
	good := anchorWithMatches("good anchor", "first", "second")
	bad := anchorWithMatches("bad anchor", "candidate")
	bad.Embedding = []float32{1, 2, 3}

	err := r.Rank(context.Background(), []*docs.Document{good, bad}, 0, false)
	if err == nil {
		t.Fatal("expected the dimension mismatch to surface")
	}
	// The healthy anchor is fully scored and sorted.
	for _, m := range good.Matches {
		if _, ok := m.Score(docs.ScoreCLIP); !ok {
			t.Errorf("healthy anchor match %s not scored", m.ID)
		}
	}
	// The failed anchor's matches carry no partial scores.
	if _, ok := bad.Matches[0].Score(docs.ScoreCLIPCosine); ok {
		t.Error("failed anchor must not leave partial scores")
	}
}

func TestRankUnembeddableAnchorFails(t *testing.T) {
	r := newTestScorer(t, 1.0)
	anchor := &docs.Document{ID: "empty", Matches: []*docs.Document{
		{ID: "m0", Text: "candidate"},
	}}
	err := r.Rank(context.Background(), []*docs.Document{anchor}, 0, false)
	if err == nil {
		t.Fatal("content-free anchor cannot be ranked")
	}
}
