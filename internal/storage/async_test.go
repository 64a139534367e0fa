package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type memoryStore struct {
	mu      sync.Mutex
	records []Record
	flushes int
	block   chan struct{}
	delay   time.Duration
}

func (m *memoryStore) AddResult(_ context.Context, r Record) error {
	if m.block != nil {
		<-m.block
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memoryStore) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAsync_WritesInOrder(t *testing.T) {
	mem := &memoryStore{}
	a := NewAsync(mem, 10, quietLogger())

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, a.AddResult(context.Background(), record("vid", text)))
	}
	require.NoError(t, a.Flush())
	require.NoError(t, a.Close())

	require.Len(t, mem.records, 3)
	assert.Equal(t, "a", mem.records[0].Text)
	assert.Equal(t, "c", mem.records[2].Text)
	assert.Equal(t, 2, mem.flushes)
}

func TestAsync_DropsWhenFull(t *testing.T) {
	mem := &memoryStore{block: make(chan struct{})}
	a := NewAsync(mem, 1, quietLogger())
	a.wait = 20 * time.Millisecond

	// The writer picks up the first record and blocks on it; the second fills
	// the queue.
	require.NoError(t, a.AddResult(context.Background(), record("vid", "one")))
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, timeout, tick)
	require.NoError(t, a.AddResult(context.Background(), record("vid", "two")))

	assert.ErrorIs(t, a.AddResult(context.Background(), record("vid", "three")), ErrQueueFull)

	close(mem.block)
	require.NoError(t, a.Close())
	assert.Len(t, mem.records, 2)
}

func TestAsync_WaitsForRoom(t *testing.T) {
	mem := &memoryStore{delay: time.Millisecond}
	a := NewAsync(mem, 10, quietLogger())

	for i := range 200 {
		require.NoError(t, a.AddResult(context.Background(), record("vid", fmt.Sprintf("comment %d", i))))
	}
	require.NoError(t, a.Flush())
	require.NoError(t, a.Close())

	require.Len(t, mem.records, 200)
	assert.Equal(t, "comment 0", mem.records[0].Text)
	assert.Equal(t, "comment 199", mem.records[199].Text)
}

func TestAsync_WaitRespectsContext(t *testing.T) {
	mem := &memoryStore{block: make(chan struct{})}
	a := NewAsync(mem, 1, quietLogger())

	require.NoError(t, a.AddResult(context.Background(), record("vid", "one")))
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, timeout, tick)
	require.NoError(t, a.AddResult(context.Background(), record("vid", "two")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.AddResult(ctx, record("vid", "three")), context.Canceled)

	close(mem.block)
	require.NoError(t, a.Close())
}
