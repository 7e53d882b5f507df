package counter

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Flusher persists accumulated retrieval counts in one batch.
type Flusher interface {
	IncrRetrievalCounts(ctx context.Context, counts map[string]int64) error
}

// Config tunes the counter's sharding and flush cadence.
type Config struct {
	Shards        int
	FlushInterval time.Duration
}

// DefaultConfig returns the counter defaults.
func DefaultConfig() Config {
	return Config{
		Shards:        16,
		FlushInterval: 30 * time.Second,
	}
}

// shard holds a double-buffered slice of the count space. The active buffer
// absorbs increments; flush swaps it into backup so the persistence write
// happens outside the increment hot path's critical section.
type shard struct {
	mu     sync.Mutex
	active map[string]int64
	backup map[string]int64
}

func (s *shard) incr(knowledgeID string, delta int64) {
	s.mu.Lock()
	s.active[knowledgeID] += delta
	s.mu.Unlock()
}

// drain merges active into backup and resets active. Counts already in
// backup from a failed flush are retained and retried.
func (s *shard) drain() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.active {
		s.backup[id] += n
	}
	s.active = make(map[string]int64)
	return s.backup
}

func (s *shard) clearBackup() {
	s.mu.Lock()
	s.backup = make(map[string]int64)
	s.mu.Unlock()
}

// Counter aggregates retrieval hit counts in memory, sharded to keep lock
// contention off the query path, and flushes them to the Flusher on an
// interval. Counts survive a failed flush and are merged into the next one.
type Counter struct {
	shards  []*shard
	flusher Flusher
	cfg     Config

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}
}

// New creates a Counter. Zero config fields fall back to defaults.
func New(flusher Flusher, cfg Config) *Counter {
	def := DefaultConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{
			active: make(map[string]int64),
			backup: make(map[string]int64),
		}
	}

	return &Counter{
		shards:   shards,
		flusher:  flusher,
		cfg:      cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Incr records count retrieval hits for a knowledge item. It never blocks on
// persistence.
func (c *Counter) Incr(knowledgeID string, count int64) {
	if knowledgeID == "" || count <= 0 {
		return
	}
	c.shards[c.shardFor(knowledgeID)].incr(knowledgeID, count)
}

func (c *Counter) shardFor(knowledgeID string) int {
	h := fnv.New32a()
	h.Write([]byte(knowledgeID))
	return int(h.Sum32() % uint32(len(c.shards)))
}

// Start runs the flush loop until Stop is called or ctx is canceled. A final
// flush runs on shutdown so accumulated counts are not lost.
func (c *Counter) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	defer close(c.doneChan)

	log.Printf("retrieval counter started: shards=%d interval=%v", len(c.shards), c.cfg.FlushInterval)

	for {
		select {
		case <-ctx.Done():
			c.Flush(context.WithoutCancel(ctx))
			return
		case <-c.stopChan:
			c.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// Stop signals the flush loop and waits for the final flush.
func (c *Counter) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.doneChan
}

// Flush drains every shard and writes the combined counts in one batch. On
// failure the drained counts stay in each shard's backup buffer and are
// merged into the next attempt.
func (c *Counter) Flush(ctx context.Context) {
	combined := make(map[string]int64)
	for _, s := range c.shards {
		for id, n := range s.drain() {
			combined[id] += n
		}
	}
	if len(combined) == 0 {
		return
	}

	if err := c.flusher.IncrRetrievalCounts(ctx, combined); err != nil {
		log.Printf("retrieval count flush failed, retaining %d entries: %v", len(combined), err)
		return
	}

	for _, s := range c.shards {
		s.clearBackup()
	}
}
