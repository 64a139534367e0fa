// Package classifier scores texts in bounded chunks and applies per-class
// thresholds.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/toxiclens/internal/metrics"
	"github.com/bdougie/toxiclens/internal/models"
	"github.com/bdougie/toxiclens/internal/scorecache"
	"github.com/bdougie/toxiclens/internal/scorer"
	"github.com/bdougie/toxiclens/internal/vectorizer"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// Classifier is built once at startup and shared by all requests. It holds no
// per-request state.
type Classifier struct {
	tokenizer vectorizer.Tokenizer
	scorer    scorer.Scorer
	cache     *scorecache.Cache
	batchSize int
	workers   int
	logger    *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithBatchSize sets the maximum number of texts per scoring call.
func WithBatchSize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithWorkers sets how many chunks may be scored at once.
func WithWorkers(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCache consults cache before calling the scorer.
func WithCache(cache *scorecache.Cache) Option {
	return func(c *Classifier) { c.cache = cache }
}

// New creates a classifier with the default batch size and worker count.
func New(tokenizer vectorizer.Tokenizer, s scorer.Scorer, logger *slog.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		tokenizer: tokenizer,
		scorer:    s,
		batchSize: DefaultBatchSize,
		workers:   DefaultWorkers,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health reports whether the underlying model can serve.
func (c *Classifier) Health(ctx context.Context) error {
	return c.scorer.Health(ctx)
}

type chunk struct {
	num        int
	start, end int
}

// Classify returns one result per text, in input order. Chunk boundaries do
// not affect the output.
func (c *Classifier) Classify(ctx context.Context, texts []string, thresholds models.ThresholdVector) ([]models.ClassificationResult, error) {
	results := make([]models.ClassificationResult, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	start := time.Now()
	chunks := partition(len(texts), c.batchSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workChan := make(chan chunk, len(chunks))
	errorsChan := make(chan error, len(chunks))

	for _, ch := range chunks {
		workChan <- ch
	}
	close(workChan)

	workers := min(c.workers, len(chunks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				if ctx.Err() != nil {
					return
				}
				scores, err := c.scoreChunk(ctx, texts[work.start:work.end])
				if err != nil {
					errorsChan <- fmt.Errorf("chunk %d/%d: %w", work.num+1, len(chunks), err)
					cancel()
					return
				}
				for i, s := range scores {
					idx := work.start + i
					results[idx] = models.ClassificationResult{
						Text:      texts[idx],
						RawScores: s,
						Labels:    thresholds.Apply(s),
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errorsChan)

	if err := <-errorsChan; err != nil {
		metrics.Failures.WithLabelValues(models.KindOf(err).String()).Inc()
		c.logger.Error("classification failed", slog.Int("texts", len(texts)), slog.Any("error", err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	record(results)
	c.logger.Debug("texts classified",
		slog.Int("texts", len(texts)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// scoreChunk scores texts, sending only cache misses to the model.
func (c *Classifier) scoreChunk(ctx context.Context, texts []string) ([]models.Scores, error) {
	scores := make([]models.Scores, len(texts))

	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if c.cache != nil {
			if s, ok := c.cache.Get(ctx, text); ok {
				scores[i] = s
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return scores, nil
	}

	pending := make([]string, len(missing))
	for i, idx := range missing {
		pending[i] = texts[idx]
	}

	batch, err := c.tokenizer.Vectorize(pending)
	if err != nil {
		return nil, models.InferenceErr("classifier.vectorize", err)
	}

	began := time.Now()
	scored, err := c.scorer.Score(ctx, batch)
	metrics.InferenceDuration.Observe(time.Since(began).Seconds())
	metrics.ChunksScored.Inc()
	if err != nil {
		if models.KindOf(err) == models.KindUnknown {
			err = models.InferenceErr("classifier.score", err)
		}
		return nil, err
	}
	if len(scored) != len(pending) {
		return nil, models.InferenceErr("classifier.score",
			fmt.Errorf("scorer returned %d rows for %d texts", len(scored), len(pending)))
	}

	for i, idx := range missing {
		scores[idx] = scored[i]
		if c.cache != nil {
			c.cache.Set(ctx, texts[idx], scored[i])
		}
	}
	return scores, nil
}

// partition splits n items into contiguous chunks of at most size items.
func partition(n, size int) []chunk {
	var chunks []chunk
	for start := 0; start < n; start += size {
		chunks = append(chunks, chunk{num: len(chunks), start: start, end: min(start+size, n)})
	}
	return chunks
}

func record(results []models.ClassificationResult) {
	metrics.TextsClassified.Add(float64(len(results)))
	for _, r := range results {
		for i, on := range r.Labels {
			if on {
				metrics.PositiveLabels.WithLabelValues(models.ClassNames[i]).Inc()
			}
		}
	}
}
