package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the writer cannot accept more work within
// the enqueue wait.
var ErrQueueFull = errors.New("history queue is full, record dropped")

const (
	writeTimeout = 10 * time.Second
	enqueueWait  = 5 * time.Second
)

type work struct {
	record Record
	flush  bool
}

// Async moves history writes off the request path. A single writer keeps
// records in submission order.
type Async struct {
	store  Storage
	queue  chan work
	wait   time.Duration
	logger *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAsync starts a writer for store with room for queueSize pending items.
func NewAsync(store Storage, queueSize int, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = 100
	}
	a := &Async{
		store:  store,
		queue:  make(chan work, queueSize),
		wait:   enqueueWait,
		logger: logger,
	}

	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for w := range a.queue {
		if w.flush {
			if err := a.store.Flush(); err != nil {
				a.logger.Warn("history flush failed", slog.Any("error", err))
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := a.store.AddResult(ctx, w.record); err != nil {
			a.logger.Warn("history write failed", slog.String("source", w.record.Source), slog.Any("error", err))
		}
		cancel()
	}
}

// AddResult queues a record. When the queue is full it waits for the writer
// to make room, up to the enqueue wait or until ctx is done.
func (a *Async) AddResult(ctx context.Context, record Record) error {
	return a.enqueue(ctx, work{record: record})
}

// Flush queues a flush behind every record already submitted.
func (a *Async) Flush() error {
	return a.enqueue(context.Background(), work{flush: true})
}

func (a *Async) enqueue(ctx context.Context, w work) error {
	select {
	case a.queue <- w:
		return nil
	default:
	}

	timer := time.NewTimer(a.wait)
	defer timer.Stop()

	select {
	case a.queue <- w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrQueueFull
	}
}

// Close drains the queue, flushes the underlying store and stops the writer.
func (a *Async) Close() error {
	a.once.Do(func() {
		close(a.queue)
	})
	a.wg.Wait()
	return a.store.Flush()
}
