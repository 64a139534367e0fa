package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/bdougie/toxiclens/internal/metrics"
	"github.com/bdougie/toxiclens/internal/models"
)

// YouTubeConfig holds connection details for the YouTube Data API.
type YouTubeConfig struct {
	APIKey            string
	Endpoint          string // empty uses the public API
	RequestsPerSecond float64
	Timeout           time.Duration
}

// YouTube implements Platform on top of the YouTube Data API v3.
type YouTube struct {
	service *ytapi.Service
	limiter *rate.Limiter
}

// NewYouTube creates a Data API client. The API key is attached to every
// request by the transport.
func NewYouTube(ctx context.Context, cfg YouTubeConfig) (*YouTube, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("youtube API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &transport.APIKey{Key: cfg.APIKey, Transport: http.DefaultTransport},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &YouTube{
		service: service,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// CommentCount reads statistics.commentCount for the video.
func (y *YouTube) CommentCount(ctx context.Context, videoID string) (int64, error) {
	const op = "videos.list"
	if err := y.wait(ctx, op); err != nil {
		return 0, err
	}

	resp, err := y.service.Videos.List([]string{"statistics"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return 0, upstream(op, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return 0, models.UpstreamErr(op, http.StatusNotFound, "video not found: "+videoID, nil)
	}
	return int64(resp.Items[0].Statistics.CommentCount), nil
}

// CommentThreads returns one page of top-level comments, most recent first.
func (y *YouTube) CommentThreads(ctx context.Context, videoID, pageToken string) (ThreadPage, error) {
	const op = "commentThreads.list"
	if err := y.wait(ctx, op); err != nil {
		return ThreadPage{}, err
	}

	call := y.service.CommentThreads.List([]string{"snippet"}).
		VideoId(videoID).
		TextFormat("plainText").
		MaxResults(PageSize).
		Order("time").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return ThreadPage{}, upstream(op, err)
	}

	page := ThreadPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		page.Threads = append(page.Threads, Thread{
			ID:         item.Id,
			Text:       item.Snippet.TopLevelComment.Snippet.TextDisplay,
			ReplyCount: item.Snippet.TotalReplyCount,
		})
	}
	return page, nil
}

// Replies returns one page of replies to threadID.
func (y *YouTube) Replies(ctx context.Context, threadID, pageToken string) (ReplyPage, error) {
	const op = "comments.list"
	if err := y.wait(ctx, op); err != nil {
		return ReplyPage{}, err
	}

	call := y.service.Comments.List([]string{"snippet"}).
		ParentId(threadID).
		TextFormat("plainText").
		MaxResults(PageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return ReplyPage{}, upstream(op, err)
	}

	page := ReplyPage{NextPageToken: resp.NextPageToken}
	for _, reply := range resp.Items {
		if reply.Snippet == nil {
			continue
		}
		page.Texts = append(page.Texts, reply.Snippet.TextDisplay)
	}
	return page, nil
}

func (y *YouTube) wait(ctx context.Context, op string) error {
	metrics.PlatformCalls.WithLabelValues(op).Inc()
	if err := y.limiter.Wait(ctx); err != nil {
		return models.UpstreamErr(op, 0, "rate limiter: "+err.Error(), err)
	}
	return nil
}

// upstream converts a client error into an UpstreamError carrying the
// provider's status code and payload.
func upstream(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Body
		if msg == "" {
			msg = apiErr.Message
		}
		return models.UpstreamErr(op, apiErr.Code, msg, err)
	}
	return models.UpstreamErr(op, 0, err.Error(), err)
}

// Unavailable is a Platform that fails every call, used when no platform
// credentials are configured.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	return models.UpstreamErr("collector.Unavailable", http.StatusServiceUnavailable, u.Reason, nil)
}

func (u Unavailable) CommentCount(context.Context, string) (int64, error) { return 0, u.err() }

func (u Unavailable) CommentThreads(context.Context, string, string) (ThreadPage, error) {
	return ThreadPage{}, u.err()
}

func (u Unavailable) Replies(context.Context, string, string) (ReplyPage, error) {
	return ReplyPage{}, u.err()
}
