// Package collector gathers the unique comment text of a video by walking the
// platform's comment threads and their replies.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdougie/toxiclens/internal/metrics"
	"github.com/bdougie/toxiclens/internal/models"
)

// PageSize is the number of items requested per platform call.
const PageSize = 100

// Thread is a top-level comment and the number of replies it reports.
type Thread struct {
	ID         string
	Text       string
	ReplyCount int64
}

// ThreadPage is one page of top-level comment threads. An empty NextPageToken
// marks the last page.
type ThreadPage struct {
	Threads       []Thread
	NextPageToken string
}

// ReplyPage is one page of replies to a single thread.
type ReplyPage struct {
	Texts         []string
	NextPageToken string
}

// Platform is the external comment-thread API.
type Platform interface {
	// CommentCount returns the comment count the platform reports for a video.
	CommentCount(ctx context.Context, videoID string) (int64, error)

	// CommentThreads returns one page of threads, most recent first.
	CommentThreads(ctx context.Context, videoID, pageToken string) (ThreadPage, error)

	// Replies returns one page of replies for a thread.
	Replies(ctx context.Context, threadID, pageToken string) (ReplyPage, error)
}

// Collector collects comments for one video at a time.
type Collector struct {
	platform Platform
	logger   *slog.Logger
}

// New creates a collector backed by platform.
func New(platform Platform, logger *slog.Logger) *Collector {
	return &Collector{platform: platform, logger: logger}
}

// Collect fetches every reachable comment and reply for videoID and returns
// the deduplicated set. Any platform failure aborts the video and discards
// what was gathered so far.
func (c *Collector) Collect(ctx context.Context, videoID string) (*models.CommentSet, error) {
	start := time.Now()

	reported, err := c.platform.CommentCount(ctx, videoID)
	if err != nil {
		return nil, c.fail(videoID, err)
	}

	seen := newTextSet()
	pageToken := ""
	pages := 0
	for {
		page, err := c.platform.CommentThreads(ctx, videoID, pageToken)
		if err != nil {
			return nil, c.fail(videoID, err)
		}
		pages++

		for _, thread := range page.Threads {
			seen.add(thread.Text)
			if thread.ReplyCount > 0 {
				if err := c.collectReplies(ctx, thread.ID, seen); err != nil {
					return nil, c.fail(videoID, err)
				}
			}
		}

		c.logger.Debug("comment page fetched",
			slog.String("video_id", videoID),
			slog.Int("page", pages),
			slog.Int("fetched", seen.len()),
		)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	fetched := int64(seen.len())
	set := &models.CommentSet{
		Comments:         seen.items(),
		TotalReported:    reported,
		TotalFetched:     fetched,
		UnavailableCount: reported - fetched,
	}
	metrics.CommentsFetched.Add(float64(fetched))

	c.logger.Info("comments collected",
		slog.String("video_id", videoID),
		slog.Int64("reported", set.TotalReported),
		slog.Int64("fetched", set.TotalFetched),
		slog.Int64("unavailable", set.UnavailableCount),
		slog.Duration("duration", time.Since(start)),
	)
	return set, nil
}

// collectReplies pages through one thread's replies into the shared set.
func (c *Collector) collectReplies(ctx context.Context, threadID string, seen *textSet) error {
	pageToken := ""
	for {
		page, err := c.platform.Replies(ctx, threadID, pageToken)
		if err != nil {
			return fmt.Errorf("replies for thread %s: %w", threadID, err)
		}
		for _, text := range page.Texts {
			seen.add(text)
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Collector) fail(videoID string, err error) error {
	c.logger.Warn("comment collection failed",
		slog.String("video_id", videoID),
		slog.Any("error", err),
	)
	if models.KindOf(err) == models.KindUnknown {
		err = models.UpstreamErr("collector.Collect", 0, err.Error(), err)
	}
	return err
}

// textSet is an append-only set of comment text that remembers first-seen order.
type textSet struct {
	index map[string]struct{}
	order []string
}

func newTextSet() *textSet {
	return &textSet{index: make(map[string]struct{})}
}

func (s *textSet) add(text string) {
	if _, ok := s.index[text]; ok {
		return
	}
	s.index[text] = struct{}{}
	s.order = append(s.order, text)
}

func (s *textSet) len() int { return len(s.order) }

func (s *textSet) items() []string {
	return append([]string(nil), s.order...)
}
