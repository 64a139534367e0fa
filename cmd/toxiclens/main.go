package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bdougie/toxiclens/internal/analyzer"
	"github.com/bdougie/toxiclens/internal/api"
	"github.com/bdougie/toxiclens/internal/classifier"
	"github.com/bdougie/toxiclens/internal/collector"
	"github.com/bdougie/toxiclens/internal/config"
	"github.com/bdougie/toxiclens/internal/logging"
	"github.com/bdougie/toxiclens/internal/models"
	"github.com/bdougie/toxiclens/internal/scorecache"
	"github.com/bdougie/toxiclens/internal/scorer"
	"github.com/bdougie/toxiclens/internal/storage"
	"github.com/bdougie/toxiclens/internal/vectorizer"
)

const usage = `Usage:
  toxiclens [--config config.yml]                       start the HTTP API
  toxiclens --text "some comment" [--text ...]          classify texts and print JSON
  toxiclens --input-file comments.txt                   classify texts split on newlines, commas and pipes
  toxiclens --video https://youtu.be/ID [--video ...]   analyze video comments and print JSON
  toxiclens --video-file urls.txt                       analyze one video URL per line`

type options struct {
	configPath string
	texts      []string
	videos     []string
	textFile   string
	videoFile  string
}

func (o options) oneShot() bool {
	return len(o.texts) > 0 || len(o.videos) > 0 || o.textFile != "" || o.videoFile != ""
}

func parseArgs(args []string) (options, error) {
	var opts options
	for i := 0; i < len(args); i++ {
		flag := args[i]
		switch flag {
		case "-h", "--help":
			return opts, errors.New("help requested")
		case "--config", "--text", "--video", "--input-file", "--video-file":
		default:
			return opts, fmt.Errorf("unknown argument %q", flag)
		}

		if i+1 >= len(args) {
			return opts, fmt.Errorf("%s requires a value", flag)
		}
		value := args[i+1]
		i++

		switch flag {
		case "--config":
			opts.configPath = value
		case "--text":
			opts.texts = append(opts.texts, value)
		case "--video":
			opts.videos = append(opts.videos, value)
		case "--input-file":
			opts.textFile = value
		case "--video-file":
			opts.videoFile = value
		}
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("toxiclens failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	tokenizer, err := vectorizer.Load(cfg.Model.Vocabulary, vectorizer.Options{
		SequenceLength: cfg.Model.SequenceLength,
		MaxTokens:      cfg.Model.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	logger.Info("vocabulary loaded",
		slog.String("path", cfg.Model.Vocabulary),
		slog.Int("tokens", tokenizer.Size()),
	)

	cache := scorecache.New(scorecache.Config{
		RedisURL:   cfg.Cache.RedisURL,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, logger)
	defer cache.Close()

	cls := classifier.New(tokenizer,
		scorer.NewModelServer(cfg.Model.URL, cfg.Model.Name, cfg.Model.Timeout),
		logger,
		classifier.WithBatchSize(cfg.Classifier.BatchSize),
		classifier.WithWorkers(cfg.Classifier.Workers),
		classifier.WithCache(cache),
	)

	platform, err := newPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	if _, ok := platform.(collector.Unavailable); ok {
		logger.Warn("YOUTUBE_API_KEY is not set, video analysis is disabled")
	}

	store, searcher, closeStore, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	processor := analyzer.NewProcessor(collector.New(platform, logger), cls, logger, processorOptions(cfg, store)...)

	if opts.oneShot() {
		return runOnce(ctx, processor, cfg.Thresholds(), opts)
	}
	return serve(ctx, cfg, api.NewHandler(processor, cls, searcher, cfg.Thresholds(), logger), logger)
}

// processorOptions applies the configured thresholds to video analysis and
// attaches history when store is set.
func processorOptions(cfg *config.Config, store storage.Storage) []analyzer.Option {
	opts := []analyzer.Option{analyzer.WithThresholds(cfg.Thresholds())}
	if store != nil {
		opts = append(opts, analyzer.WithStorage(store))
	}
	return opts
}

func newPlatform(ctx context.Context, cfg *config.Config) (collector.Platform, error) {
	if cfg.YouTube.APIKey == "" {
		return collector.Unavailable{Reason: "YOUTUBE_API_KEY is not set"}, nil
	}
	yt, err := collector.NewYouTube(ctx, collector.YouTubeConfig{
		APIKey:            cfg.YouTube.APIKey,
		Endpoint:          cfg.YouTube.Endpoint,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Timeout:           cfg.YouTube.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return yt, nil
}

// newStorage opens the configured history store. The returned store writes
// asynchronously; searcher is nil unless the driver supports it.
func newStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, storage.Searcher, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverFile:
		async := storage.NewAsync(storage.NewFile(cfg.Storage.Dir), cfg.Storage.QueueSize, logger)
		logger.Info("history enabled", slog.String("driver", "file"), slog.String("dir", cfg.Storage.Dir))
		return async, nil, func() { _ = async.Close() }, nil

	case config.DriverPostgres:
		pg, err := storage.NewPostgres(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.InitSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
		async := storage.NewAsync(pg, cfg.Storage.QueueSize, logger)
		logger.Info("history enabled", slog.String("driver", "postgres"))
		return async, pg, func() {
			_ = async.Close()
			pg.Close()
		}, nil

	default:
		return nil, nil, func() {}, nil
	}
}

func runOnce(ctx context.Context, processor *analyzer.Processor, thresholds models.ThresholdVector, opts options) error {
	texts := opts.texts
	if opts.textFile != "" {
		data, err := os.ReadFile(opts.textFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		texts = append(texts, analyzer.SplitTexts(string(data))...)
	}

	videos := opts.videos
	if opts.videoFile != "" {
		data, err := os.ReadFile(opts.videoFile)
		if err != nil {
			return fmt.Errorf("failed to read video file: %w", err)
		}
		videos = append(videos, analyzer.SplitURLs(string(data))...)
	}

	var out any
	if len(videos) > 0 {
		batch, err := processor.AnalyzeVideos(ctx, videos)
		if err != nil {
			return err
		}
		out = api.AnalyzeResponse{Classes: models.ClassNames[:], Videos: batch.Videos}
	} else {
		results, err := processor.ClassifyTexts(ctx, texts, thresholds)
		if err != nil {
			return err
		}
		out = api.PredictResponse{Classes: models.ClassNames[:], Predictions: results}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func serve(ctx context.Context, cfg *config.Config, handler *api.Handler, logger *slog.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server.CORSOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
