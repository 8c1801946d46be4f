package executor

import (
	"context"
	"testing"

	"github.com/hyperjump/umekomi/internal/classify"
	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/encoder"
	"github.com/hyperjump/umekomi/internal/pipeline"
	"github.com/hyperjump/umekomi/internal/rank"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	sched := pipeline.NewScheduler(encoder.NewMockModel(32), &cfg.Encode)
	return New(sched, rank.NewScorer(sched, cfg.Model.LogitScale), nil)
}

func TestExecuteEncode(t *testing.T) {
	e := newTestExecutor(t)
	collection := []*docs.Document{
		{Text: "first"},
		{Text: "second"},
	}
	if err := e.Encode(context.Background(), collection, Params{}); err != nil {
		t.Fatal(err)
	}
	for i, d := range collection {
		if !d.HasEmbedding() {
			t.Errorf("document %d not embedded", i)
		}
		if d.ID == "" {
			t.Errorf("document %d missing generated ID", i)
		}
	}
}

func TestExecuteRank(t *testing.T) {
	e := newTestExecutor(t)
	anchor := &docs.Document{Text: "query text", Matches: []*docs.Document{
		{Text: "query text"},
		{Text: "something else"},
	}}
	if err := e.Rank(context.Background(), []*docs.Document{anchor}, Params{}); err != nil {
		t.Fatal(err)
	}
	if anchor.Matches[0].Text != "query text" {
		t.Errorf("exact duplicate should rank first, got %q", anchor.Matches[0].Text)
	}
	if _, ok := anchor.Matches[0].Score(docs.ScoreCLIP); !ok {
		t.Error("match missing clip_score")
	}
}

func TestExecuteAssignsMatchIDs(t *testing.T) {
	e := newTestExecutor(t)
	anchor := &docs.Document{Text: "query", Matches: []*docs.Document{
		{Text: "first candidate"},
		{Text: "second candidate"},
	}}
	if err := e.Rank(context.Background(), []*docs.Document{anchor}, Params{}); err != nil {
		t.Fatal(err)
	}
	if anchor.ID == "" {
		t.Error("anchor missing generated ID")
	}
	for i, m := range anchor.Matches {
		if m.ID == "" {
			t.Errorf("match %d missing generated ID", i)
		}
	}
}

func TestExecuteEncodeScope(t *testing.T) {
	e := newTestExecutor(t)
	anchor := &docs.Document{Text: "root", Matches: []*docs.Document{{Text: "child"}}}

	if err := e.Encode(context.Background(), []*docs.Document{anchor}, Params{TraversalScope: classify.RootOnly}); err != nil {
		t.Fatal(err)
	}
	if anchor.Matches[0].HasEmbedding() {
		t.Error("root-only scope must not touch matches")
	}

	if err := e.Encode(context.Background(), []*docs.Document{anchor}, Params{TraversalScope: classify.RootAndMatches}); err != nil {
		t.Fatal(err)
	}
	if !anchor.Matches[0].HasEmbedding() {
		t.Error("widened scope should embed matches")
	}
}

func TestExecuteUnknownOperation(t *testing.T) {
	e := newTestExecutor(t)
	err := e.Execute(context.Background(), "summarize", nil, Params{})
	if err == nil {
		t.Fatal("unknown operation must fail")
	}
}
