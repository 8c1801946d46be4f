// Package rank orders each anchor's candidate matches by embedding similarity.
package rank

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/classify"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/pipeline"
	"github.com/hyperjump/umekomi/internal/vector"
)

// Scorer embeds anchors and their matches through the encode pipeline, then
// scores and reorders each anchor's match list in place.
//
// Each anchor moves through collected -> embedded -> scored -> sorted; an
// anchor that fails scoring (embedding dimension mismatch) is skipped
// without affecting the others, and the per-anchor errors are returned
// joined so callers can report the partial failure.
type Scorer struct {
	scheduler *pipeline.Scheduler
	// scale is the softmax temperature applied to cosine similarities:
	// the model's learned logit scale when available, else 1.0.
	scale  float64
	logger *zap.Logger
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithLogger sets a logger for per-anchor failure warnings.
func WithLogger(l *zap.Logger) ScorerOption {
	return func(r *Scorer) { r.logger = l }
}

// NewScorer creates a scorer that encodes through scheduler and normalizes
// with the given logit scale.
func NewScorer(scheduler *pipeline.Scheduler, scale float64, opts ...ScorerOption) *Scorer {
	if scale <= 0 {
		scale = 1.0
	}
	r := &Scorer{scheduler: scheduler, scale: scale}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank encodes the union of anchors and matches (already-embedded documents
// are skipped unless overwrite is set), writes clip_score_cosine and
// clip_score onto every match, and stably sorts each anchor's matches
// descending by clip_score. An encode failure aborts the call; scoring
// failures are per-anchor and joined into the returned error while the
// remaining anchors complete normally.
func (r *Scorer) Rank(ctx context.Context, collection []*docs.Document, batchSize int, overwrite bool) error {
	if err := r.scheduler.Encode(ctx, collection, classify.RootAndMatches, batchSize, overwrite); err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	var errs error
	for _, anchor := range collection {
		if err := r.scoreAnchor(anchor); err != nil {
			if r.logger != nil {
				r.logger.Warn("anchor scoring failed", zap.String("id", anchor.ID), zap.Error(err))
			}
			errs = multierr.Append(errs, fmt.Errorf("anchor %q: %w", anchor.ID, err))
		}
	}
	return errs
}

// scoreAnchor computes the score algebra for one anchor and sorts its
// matches. An anchor with zero matches is trivially sorted.
func (r *Scorer) scoreAnchor(anchor *docs.Document) error {
	if anchor == nil || len(anchor.Matches) == 0 {
		return nil
	}
	if !anchor.HasEmbedding() {
		return fmt.Errorf("anchor has no embedding")
	}
	// Compute all cosines before writing any score so a failed anchor
	// leaves its matches untouched.
	cosines := make([]float64, len(anchor.Matches))
	for i, m := range anchor.Matches {
		c, err := vector.Cosine(anchor.Embedding, m.Embedding)
		if err != nil {
			return fmt.Errorf("match %q: %w", m.ID, err)
		}
		cosines[i] = c
	}
	soft := vector.Softmax(cosines, r.scale)
	for i, m := range anchor.Matches {
		m.SetScore(docs.ScoreCLIPCosine, cosines[i])
		m.SetScore(docs.ScoreCLIP, soft[i])
	}
	// Stable: ties keep their original relative order.
	sort.SliceStable(anchor.Matches, func(i, j int) bool {
		return anchor.Matches[i].Scores[docs.ScoreCLIP] > anchor.Matches[j].Scores[docs.ScoreCLIP]
	})
	return nil
}
