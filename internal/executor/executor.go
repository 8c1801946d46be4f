// Package executor exposes the encode and rank operations behind a single
// dispatch surface shared by the HTTP API and the CLI.
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/classify"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/metrics"
	"github.com/hyperjump/umekomi/internal/pipeline"
	"github.com/hyperjump/umekomi/internal/rank"
)

// Operation names accepted by Execute.
const (
	OpEncode = "encode"
	OpRank   = "rank"
)

// Params are the per-request knobs shared by both operations.
type Params struct {
	// TraversalScope selects which documents participate: roots only, or
	// roots plus their matches. Rank always widens to roots plus matches.
	TraversalScope classify.TraversalScope
	// BatchSize overrides the configured minibatch size; 0 keeps the default.
	BatchSize int
	// OverwriteEmbeddings re-encodes documents that already carry an embedding.
	OverwriteEmbeddings bool
}

// Executor routes operations to the pipeline components.
type Executor struct {
	scheduler *pipeline.Scheduler
	scorer    *rank.Scorer
	logger    *zap.Logger
	ops       map[string]func(context.Context, []*docs.Document, Params) error
}

// New creates an executor over the given scheduler and scorer.
func New(scheduler *pipeline.Scheduler, scorer *rank.Scorer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{scheduler: scheduler, scorer: scorer, logger: logger}
	e.ops = map[string]func(context.Context, []*docs.Document, Params) error{
		OpEncode: e.encode,
		OpRank:   e.rank,
	}
	return e
}

// Execute runs the named operation against the collection, mutating it in
// place. Unknown operation names are an error, never a silent no-op.
func (e *Executor) Execute(ctx context.Context, op string, collection []*docs.Document, p Params) error {
	fn, ok := e.ops[op]
	if !ok {
		metrics.RequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("unknown operation %q", op)
	}
	for _, d := range collection {
		if d == nil {
			continue
		}
		d.EnsureID()
		for _, m := range d.Matches {
			if m != nil {
				m.EnsureID()
			}
		}
	}
	err := fn(ctx, collection, p)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RequestsTotal.WithLabelValues(op, status).Inc()
	return err
}

// Encode embeds the collection at the requested traversal scope.
func (e *Executor) Encode(ctx context.Context, collection []*docs.Document, p Params) error {
	return e.Execute(ctx, OpEncode, collection, p)
}

// Rank embeds anchors and matches, then scores and reorders each anchor's
// matches.
func (e *Executor) Rank(ctx context.Context, collection []*docs.Document, p Params) error {
	return e.Execute(ctx, OpRank, collection, p)
}

func (e *Executor) encode(ctx context.Context, collection []*docs.Document, p Params) error {
	e.logger.Debug("encode operation",
		zap.Int("documents", len(collection)),
		zap.Bool("overwrite", p.OverwriteEmbeddings),
	)
	return e.scheduler.Encode(ctx, collection, p.TraversalScope, p.BatchSize, p.OverwriteEmbeddings)
}

func (e *Executor) rank(ctx context.Context, collection []*docs.Document, p Params) error {
	e.logger.Debug("rank operation",
		zap.Int("anchors", len(collection)),
		zap.Bool("overwrite", p.OverwriteEmbeddings),
	)
	return e.scorer.Rank(ctx, collection, p.BatchSize, p.OverwriteEmbeddings)
}
