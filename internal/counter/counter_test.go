package counter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFlusher records every batch it receives and can be toggled to fail.
type fakeFlusher struct {
	mu      sync.Mutex
	fail    bool
	batches []map[string]int64
}

func (f *fakeFlusher) IncrRetrievalCounts(ctx context.Context, counts map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("database unavailable")
	}
	copied := make(map[string]int64, len(counts))
	for id, n := range counts {
		copied[id] = n
	}
	f.batches = append(f.batches, copied)
	return nil
}

func (f *fakeFlusher) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeFlusher) total(knowledgeID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, batch := range f.batches {
		sum += batch[knowledgeID]
	}
	return sum
}

// TestCounter_FlushAggregates verifies increments across shards land in one
// combined batch.
func TestCounter_FlushAggregates(t *testing.T) {
	flusher := &fakeFlusher{}
	c := New(flusher, Config{Shards: 4, FlushInterval: time.Hour})

	c.Incr("k1", 3)
	c.Incr("k2", 1)
	c.Incr("k1", 2)
	c.Flush(context.Background())

	require.Len(t, flusher.batches, 1)
	assert.Equal(t, int64(5), flusher.batches[0]["k1"])
	assert.Equal(t, int64(1), flusher.batches[0]["k2"])
}

// TestCounter_FlushEmptyIsNoop verifies no batch is written when nothing
// accumulated.
func TestCounter_FlushEmptyIsNoop(t *testing.T) {
	flusher := &fakeFlusher{}
	c := New(flusher, Config{Shards: 4, FlushInterval: time.Hour})

	c.Flush(context.Background())
	assert.Empty(t, flusher.batches)
}

// TestCounter_RetainsCountsOnFlushFailure verifies counts drained during a
// failed flush are merged into the next successful one.
func TestCounter_RetainsCountsOnFlushFailure(t *testing.T) {
	flusher := &fakeFlusher{}
	c := New(flusher, Config{Shards: 4, FlushInterval: time.Hour})

	c.Incr("k1", 3)
	flusher.setFail(true)
	c.Flush(context.Background())
	assert.Empty(t, flusher.batches)

	c.Incr("k1", 2)
	flusher.setFail(false)
	c.Flush(context.Background())

	require.Len(t, flusher.batches, 1)
	assert.Equal(t, int64(5), flusher.batches[0]["k1"])

	// A further flush must not replay the already persisted counts.
	c.Flush(context.Background())
	assert.Equal(t, int64(5), flusher.total("k1"))
}

// TestCounter_IgnoresInvalidIncrements verifies empty ids and non-positive
// deltas are dropped.
func TestCounter_IgnoresInvalidIncrements(t *testing.T) {
	flusher := &fakeFlusher{}
	c := New(flusher, Config{Shards: 4, FlushInterval: time.Hour})

	c.Incr("", 3)
	c.Incr("k1", 0)
	c.Incr("k1", -5)
	c.Flush(context.Background())

	assert.Empty(t, flusher.batches)
}

// TestCounter_ConcurrentIncrements hammers Incr from many goroutines and
// checks nothing is lost.
func TestCounter_ConcurrentIncrements(t *testing.T) {
	flusher := &fakeFlusher{}
	c := New(flusher, Config{Shards: 8, FlushInterval: time.Hour})

	const goroutines = 20
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.Incr("k1", 1)
			}
		}()
	}
	wg.Wait()
	c.Flush(context.Background())

	assert.Equal(t, int64(goroutines*perGoroutine), flusher.total("k1"))
}

// TestCounter_StopFlushesPendingCounts verifies the shutdown path drains
// accumulated counts.
func TestCounter_StopFlushesPendingCounts(t *testing.T) {
	flusher := &fakeFlusher{}
	c := New(flusher, Config{Shards: 4, FlushInterval: time.Hour})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Start(context.Background())
	}()

	c.Incr("k1", 7)
	c.Stop()
	wg.Wait()

	assert.Equal(t, int64(7), flusher.total("k1"))
}
