// Package scorecache remembers model scores by text. The model is frozen, so
// a cached score is always the score the model would return.
package scorecache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdougie/toxiclens/internal/metrics"
	"github.com/bdougie/toxiclens/internal/models"
)

const keyPrefix = "toxiclens:scores:"

// Cache is an in-memory L1 in front of an optional Redis L2.
type Cache struct {
	l1         sync.Map // key -> models.Scores
	entries    atomic.Int64
	maxEntries int
	rdb        *redis.Client // nil when Redis is disabled
	ttl        time.Duration
	logger     *slog.Logger
}

// Config holds cache settings.
type Config struct {
	RedisURL   string
	TTL        time.Duration
	MaxEntries int
}

// New creates a cache. An empty or unreachable Redis URL leaves only the L1.
func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	c := &Cache{maxEntries: cfg.MaxEntries, ttl: cfg.TTL, logger: logger}

	if cfg.RedisURL == "" {
		return c
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("score cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		return c
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("score cache: redis unreachable, L2 disabled", slog.Any("error", err))
		_ = rdb.Close()
		return c
	}

	c.rdb = rdb
	logger.Info("score cache: redis connected", slog.String("addr", opts.Addr))
	return c
}

// Key builds the cache key for a text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

// Get looks up L1, then L2. An L2 hit is copied into L1.
func (c *Cache) Get(ctx context.Context, text string) (models.Scores, bool) {
	key := Key(text)
	if v, ok := c.l1.Load(key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return v.(models.Scores), true
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var scores models.Scores
			if err := json.Unmarshal(data, &scores); err == nil {
				c.storeL1(key, scores)
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				return scores, true
			}
		} else if err != redis.Nil {
			c.logger.Debug("score cache: redis get failed", slog.Any("error", err))
		}
	}

	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return models.Scores{}, false
}

// Set stores scores in both tiers. L2 failures are logged and ignored.
func (c *Cache) Set(ctx context.Context, text string, scores models.Scores) {
	key := Key(text)
	c.storeL1(key, scores)

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("score cache: redis set failed", slog.Any("error", err))
	}
}

func (c *Cache) storeL1(key string, scores models.Scores) {
	if c.entries.Load() >= int64(c.maxEntries) {
		return
	}
	if _, loaded := c.l1.LoadOrStore(key, scores); !loaded {
		c.entries.Add(1)
	}
}

// Len returns the number of L1 entries.
func (c *Cache) Len() int { return int(c.entries.Load()) }

// Close shuts down the Redis connection.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
