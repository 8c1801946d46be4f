// Package pipeline schedules minibatched preprocessing and inference over
// modality buckets, hiding per-item preprocessing latency behind the model's
// forward passes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/umekomi/internal/classify"
	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/encoder"
	"github.com/hyperjump/umekomi/internal/metrics"
	"github.com/hyperjump/umekomi/internal/preprocess"
)

// Scheduler owns the preprocessing pool and drives the embedding model.
// Preprocessing of minibatch N+1 overlaps inference of minibatch N;
// inference itself is serialized because the model is a single-owner
// sequential resource. The worker count and in-flight minibatch cap are
// fixed at construction.
type Scheduler struct {
	model      encoder.Model
	imagePre   *preprocess.ImagePreprocessor
	textPre    *preprocess.TextPreprocessor
	cache      *encoder.TextCache
	numWorkers int
	batchSize  int
	logger     *zap.Logger // optional; when set, logs debug events
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets a logger for debug output (minibatch sizes, bucket splits).
func WithLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithTextCache enables LRU caching of text embeddings.
func WithTextCache(c *encoder.TextCache) SchedulerOption {
	return func(s *Scheduler) { s.cache = c }
}

// NewScheduler creates a scheduler around the given model with the encode
// settings from cfg.
func NewScheduler(model encoder.Model, cfg *config.EncodeConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		model: model,
		imagePre: &preprocess.ImagePreprocessor{
			Size:       cfg.ImageSize,
			UseDefault: cfg.UseDefaultPreprocessingOrDefault(),
		},
		textPre: &preprocess.TextPreprocessor{
			Tokenizer: &preprocess.SimpleTokenizer{},
			MaxTokens: cfg.MaxTokens,
		},
		numWorkers: cfg.NumWorkerPreprocess,
		batchSize:  cfg.MinibatchSize,
	}
	if s.numWorkers <= 0 {
		s.numWorkers = 4
	}
	if s.batchSize <= 0 {
		s.batchSize = 32
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Encode embeds every content-bearing document in the collection at the
// given traversal scope. Documents are mutated in place by reference, so
// collection order and identity are untouched regardless of how buckets and
// minibatches are scheduled. Documents that already carry an embedding are
// skipped unless overwrite is set. A batchSize of 0 uses the configured
// default. On error, documents from completed minibatches keep their
// embeddings; the error reports which bucket failed.
func (s *Scheduler) Encode(ctx context.Context, collection []*docs.Document, scope classify.TraversalScope, batchSize int, overwrite bool) error {
	buckets := classify.Split(collection, scope)
	if s.logger != nil {
		s.logger.Debug("encode buckets split",
			zap.Int("text", len(buckets.Text)),
			zap.Int("image", len(buckets.Image)),
		)
	}
	var err error
	if e := s.encodeImages(ctx, buckets.Image, batchSize, overwrite); e != nil {
		err = multierr.Append(err, fmt.Errorf("image bucket: %w", e))
		// Preprocess failures stay bucket-local, but a failed forward pass
		// means the model itself is unhealthy: abort instead of feeding it
		// the remaining bucket.
		var me *modelError
		if errors.As(e, &me) {
			return err
		}
	}
	if e := s.encodeTexts(ctx, buckets.Text, batchSize, overwrite); e != nil {
		err = multierr.Append(err, fmt.Errorf("text bucket: %w", e))
	}
	return err
}

// modelError marks a failed or malformed forward pass.
type modelError struct {
	err error
}

func (e *modelError) Error() string { return e.err.Error() }

func (e *modelError) Unwrap() error { return e.err }

func (s *Scheduler) encodeTexts(ctx context.Context, bucket []*docs.Document, batchSize int, overwrite bool) error {
	pending := make([]*docs.Document, 0, len(bucket))
	for _, d := range bucket {
		if d.HasEmbedding() && !overwrite {
			continue
		}
		if s.cache != nil {
			if emb, ok := s.cache.Get(d.Text); ok {
				d.Embedding = cloneVector(emb)
				metrics.TextCacheTotal.WithLabelValues("hit").Inc()
				continue
			}
			metrics.TextCacheTotal.WithLabelValues("miss").Inc()
		}
		pending = append(pending, d)
	}
	err := s.run(ctx, classify.ModalityText, pending, batchSize,
		func(ctx context.Context, mb []*docs.Document) (any, error) {
			return s.textPre.Preprocess(ctx, mb)
		},
		func(ctx context.Context, input any) ([][]float32, error) {
			return s.model.EncodeText(ctx, input.(*preprocess.TextBatch))
		},
	)
	if err != nil {
		return err
	}
	if s.cache != nil {
		for _, d := range pending {
			if d.HasEmbedding() {
				s.cache.Set(d.Text, cloneVector(d.Embedding))
			}
		}
	}
	return nil
}

func (s *Scheduler) encodeImages(ctx context.Context, bucket []*docs.Document, batchSize int, overwrite bool) error {
	pending := make([]*docs.Document, 0, len(bucket))
	for _, d := range bucket {
		if d.HasEmbedding() && !overwrite {
			continue
		}
		pending = append(pending, d)
	}
	return s.run(ctx, classify.ModalityImage, pending, batchSize,
		func(ctx context.Context, mb []*docs.Document) (any, error) {
			return s.imagePre.Preprocess(ctx, mb)
		},
		func(ctx context.Context, input any) ([][]float32, error) {
			return s.model.EncodeImage(ctx, input.(*preprocess.ImageBatch))
		},
	)
}

// prepped carries a minibatch's model input from the pool to the encoder.
type prepped struct {
	input any
	err   error
}

// inflight pairs a minibatch with the channel its model input arrives on.
type inflight struct {
	mb []*docs.Document
	ch chan prepped
}

// run pipelines one modality bucket: minibatches are preprocessed by up to
// numWorkers concurrent workers and consumed in order by the serialized
// encode step. The bounded queue caps the minibatches held in memory, so
// preprocessing never runs unboundedly ahead of inference.
func (s *Scheduler) run(
	ctx context.Context,
	modality classify.Modality,
	pending []*docs.Document,
	batchSize int,
	prep func(context.Context, []*docs.Document) (any, error),
	enc func(context.Context, any) ([][]float32, error),
) error {
	if len(pending) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	minibatches := splitMinibatches(pending, batchSize)
	if s.logger != nil {
		s.logger.Debug("bucket scheduled",
			zap.String("modality", modality.String()),
			zap.Int("documents", len(pending)),
			zap.Int("minibatches", len(minibatches)),
			zap.Int("batch_size", batchSize),
		)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)

	queue := make(chan inflight, s.numWorkers)
	go func() {
		defer close(queue)
		for _, mb := range minibatches {
			item := inflight{mb: mb, ch: make(chan prepped, 1)}
			select {
			case queue <- item:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				start := time.Now()
				input, err := prep(gctx, item.mb)
				metrics.PreprocessSeconds.WithLabelValues(modality.String()).Observe(time.Since(start).Seconds())
				item.ch <- prepped{input: input, err: err}
				return err
			})
		}
	}()

	var runErr error
	for item := range queue {
		p := <-item.ch
		if runErr != nil {
			continue // drain so the pool can finish
		}
		if p.err != nil {
			runErr = fmt.Errorf("preprocess minibatch: %w", p.err)
			cancel()
			continue
		}
		start := time.Now()
		rows, err := enc(ctx, p.input)
		metrics.EncodeSeconds.WithLabelValues(modality.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			runErr = &modelError{err: fmt.Errorf("encode minibatch: %w", err)}
			cancel()
			continue
		}
		if len(rows) != len(item.mb) {
			runErr = &modelError{err: fmt.Errorf("model returned %d rows for %d documents", len(rows), len(item.mb))}
			cancel()
			continue
		}
		// Merge by reference, in minibatch order. Preprocessed tensors are
		// dropped with the model input; documents keep only the embedding.
		for j, d := range item.mb {
			d.Embedding = rows[j]
		}
		metrics.DocumentsEncodedTotal.WithLabelValues(modality.String()).Add(float64(len(item.mb)))
	}
	if werr := g.Wait(); runErr == nil && werr != nil {
		runErr = fmt.Errorf("preprocess minibatch: %w", werr)
	}
	return runErr
}

// splitMinibatches cuts pending into ordered groups of at most batchSize.
func splitMinibatches(pending []*docs.Document, batchSize int) [][]*docs.Document {
	out := make([][]*docs.Document, 0, (len(pending)+batchSize-1)/batchSize)
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		out = append(out, pending[start:end])
	}
	return out
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
