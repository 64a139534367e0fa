// Package analyzer ties comment collection and classification together for
// one request.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdougie/toxiclens/internal/metrics"
	"github.com/bdougie/toxiclens/internal/models"
	"github.com/bdougie/toxiclens/internal/storage"
	"github.com/bdougie/toxiclens/internal/videoref"
)

// Collector gathers the unique comments of a video.
type Collector interface {
	Collect(ctx context.Context, videoID string) (*models.CommentSet, error)
}

// Classifier scores texts against per-class thresholds.
type Classifier interface {
	Classify(ctx context.Context, texts []string, thresholds models.ThresholdVector) ([]models.ClassificationResult, error)
}

// Processor analyzes videos and texts on behalf of the API and the CLI.
type Processor struct {
	collector  Collector
	classifier Classifier
	storage    storage.Storage // nil disables history
	thresholds models.ThresholdVector
	logger     *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithStorage records every classified text in store.
func WithStorage(store storage.Storage) Option {
	return func(p *Processor) { p.storage = store }
}

// WithThresholds overrides the cutoffs used for video analysis.
func WithThresholds(t models.ThresholdVector) Option {
	return func(p *Processor) { p.thresholds = t }
}

// NewProcessor creates a processor that uses DefaultThresholds unless
// WithThresholds is given.
func NewProcessor(collector Collector, classifier Classifier, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		collector:  collector,
		classifier: classifier,
		thresholds: models.DefaultThresholds,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AnalyzeVideos collects and classifies the comments of every URL, in request
// order. A failing video is reported in its own result and does not stop the
// others; only an empty request fails as a whole.
func (p *Processor) AnalyzeVideos(ctx context.Context, urls []string) (*models.AnalysisBatchResult, error) {
	if len(urls) == 0 {
		return nil, models.EmptyInputErr("analyzer.AnalyzeVideos", "no video URLs supplied")
	}

	// Every URL is parsed before the first platform call.
	refs := make([]models.VideoReference, len(urls))
	parseErrs := make([]error, len(urls))
	for i, raw := range urls {
		refs[i], parseErrs[i] = videoref.Reference(raw)
	}

	batch := &models.AnalysisBatchResult{Videos: make([]models.VideoAnalysisResult, len(urls))}
	for i, ref := range refs {
		if parseErrs[i] != nil {
			batch.Videos[i] = p.failed(ref, parseErrs[i])
			continue
		}
		batch.Videos[i] = p.analyzeVideo(ctx, ref)
	}
	return batch, nil
}

func (p *Processor) analyzeVideo(ctx context.Context, ref models.VideoReference) models.VideoAnalysisResult {
	start := time.Now()
	p.logger.Info("analyzing video", slog.String("video_id", ref.VideoID))

	set, err := p.collector.Collect(ctx, ref.VideoID)
	if err != nil {
		return p.failed(ref, err)
	}

	predictions, err := p.classifier.Classify(ctx, set.Comments, p.thresholds)
	if err != nil {
		return p.failed(ref, err)
	}

	p.save(ctx, ref.VideoID, predictions)

	p.logger.Info("video analyzed",
		slog.String("video_id", ref.VideoID),
		slog.Int64("fetched", set.TotalFetched),
		slog.Int("flagged", countFlagged(predictions)),
		slog.Duration("duration", time.Since(start)),
	)
	return models.VideoAnalysisResult{
		Reference:   ref,
		Stats:       set,
		Predictions: predictions,
	}
}

func (p *Processor) failed(ref models.VideoReference, err error) models.VideoAnalysisResult {
	metrics.Failures.WithLabelValues(models.KindOf(err).String()).Inc()
	p.logger.Warn("video analysis failed",
		slog.String("url", ref.URL),
		slog.String("video_id", ref.VideoID),
		slog.Any("error", err),
	)
	return models.VideoAnalysisResult{Reference: ref, Error: models.NewErrorInfo(err)}
}

// ClassifyTexts classifies caller-supplied texts directly.
func (p *Processor) ClassifyTexts(ctx context.Context, texts []string, thresholds models.ThresholdVector) ([]models.ClassificationResult, error) {
	if len(texts) == 0 {
		return nil, models.EmptyInputErr("analyzer.ClassifyTexts", "no texts supplied")
	}

	results, err := p.classifier.Classify(ctx, texts, thresholds)
	if err != nil {
		return nil, err
	}

	p.save(ctx, storage.DirectSource, results)
	return results, nil
}

// save writes results to history. Failures are logged only.
func (p *Processor) save(ctx context.Context, source string, results []models.ClassificationResult) {
	if p.storage == nil || len(results) == 0 {
		return
	}

	for i, r := range results {
		if err := p.storage.AddResult(ctx, storage.NewRecord(source, r)); err != nil {
			p.logger.Warn("failed to store results",
				slog.String("source", source),
				slog.Int("stored", i),
				slog.Int("dropped", len(results)-i),
				slog.Any("error", err),
			)
			break
		}
	}
	if err := p.storage.Flush(); err != nil {
		p.logger.Warn("failed to flush results", slog.String("source", source), slog.Any("error", err))
	}
}

func countFlagged(results []models.ClassificationResult) int {
	n := 0
	for _, r := range results {
		if r.Labels.Any() {
			n++
		}
	}
	return n
}
