package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/loader"
)

// Gateway is the narrow persistence contract the executor writes through.
// Task, knowledge, and chunk records are durable in the gateway; the executor
// only keeps transient in-memory working copies.
type Gateway interface {
	// GetKnowledgeList returns every knowledge record matching the equality
	// conditions, across all pages.
	GetKnowledgeList(ctx context.Context, tenantID string, eqConditions map[string]any) ([]*domain.Knowledge, error)
	GetKnowledgeByID(ctx context.Context, tenantID, knowledgeID string) (*domain.Knowledge, error)
	// AddKnowledgeList bulk-inserts items, assigning identity where absent,
	// and returns the persisted records.
	AddKnowledgeList(ctx context.Context, tenantID string, items []*domain.Knowledge) ([]*domain.Knowledge, error)
	// DeleteKnowledge cascades to the items' tasks and chunks.
	DeleteKnowledge(ctx context.Context, tenantID string, knowledgeIDs []string) error
	GetTaskByID(ctx context.Context, tenantID, taskID string) (*domain.Task, error)
	// UpdateTaskList upserts tasks keyed by task_id.
	UpdateTaskList(ctx context.Context, tasks []*domain.Task) error
	SaveChunkList(ctx context.Context, chunks []*domain.Chunk) error
	DeleteKnowledgeChunks(ctx context.Context, knowledgeID string) error
}

// Embedder turns loaded documents into embedded chunks.
type Embedder interface {
	Embed(ctx context.Context, k *domain.Knowledge, docs []*domain.Document) ([]*domain.Chunk, error)
}

// Config tunes the executor's concurrency and timing.
type Config struct {
	// Concurrency bounds in-flight processing operations, independent of the
	// pool's cost budget. It primarily limits concurrent outbound calls to
	// loaders and the embedding provider.
	Concurrency int64
	// TaskTimeout is the wall-clock budget for one processing attempt.
	TaskTimeout time.Duration
	// TimeoutCooldown holds a timed-out task's pool slot before release, as
	// backpressure against immediately re-admitting an expensive failure.
	TimeoutCooldown time.Duration
	// PollInterval is the scheduling loop's backoff when nothing is
	// admissible.
	PollInterval time.Duration
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		TaskTimeout:     120 * time.Second,
		TimeoutCooldown: 10 * time.Second,
		PollInterval:    3 * time.Second,
	}
}

// Executor drives admitted tasks through the ingestion state machine:
// pending -> running -> {success, failed, pending_retry, canceled}. Every
// submitted task gets exactly one terminal status write and releases its pool
// slot exactly once, on every exit path.
type Executor struct {
	pool     *TaskPool
	gateway  Gateway
	loaders  *loader.Registry
	embedder Embedder
	sem      *semaphore.Weighted
	cfg      Config

	mu          sync.Mutex
	cancels     map[string]context.CancelFunc // running task_id -> cancel
	precanceled map[string]struct{}           // admitted task_id canceled before its attempt registered

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}
	inflight sync.WaitGroup
}

// NewExecutor creates an Executor. Zero config fields fall back to defaults.
func NewExecutor(pool *TaskPool, gateway Gateway, loaders *loader.Registry, embedder Embedder, cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.TimeoutCooldown <= 0 {
		cfg.TimeoutCooldown = def.TimeoutCooldown
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	return &Executor{
		pool:        pool,
		gateway:     gateway,
		loaders:     loaders,
		embedder:    embedder,
		sem:         semaphore.NewWeighted(cfg.Concurrency),
		cfg:         cfg,
		cancels:     make(map[string]context.CancelFunc),
		precanceled: make(map[string]struct{}),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Submit enqueues one (task, knowledge) pair. A payload whose cost exceeds
// the pool's total capacity fails immediately with a terminal status write
// and never enters the waiting queue.
func (e *Executor) Submit(ctx context.Context, task *domain.Task, knowledge *domain.Knowledge) error {
	if err := domain.ValidateTask(task); err != nil {
		return err
	}
	if err := domain.ValidateKnowledge(knowledge); err != nil {
		return err
	}

	if err := e.pool.AddWaiting(task, knowledge); err != nil {
		if errors.Is(err, domain.ErrCostExceedsCapacity) {
			task.MarkFailed(fmt.Sprintf("payload cost %d exceeds pool capacity %d", knowledge.FileSize, e.pool.Capacity()))
			if persistErr := e.gateway.UpdateTaskList(ctx, []*domain.Task{task}); persistErr != nil {
				return fmt.Errorf("failed to persist admission failure for task %s: %w", task.TaskID, persistErr)
			}
		}
		return err
	}

	return e.gateway.UpdateTaskList(ctx, []*domain.Task{task})
}

// Restart moves restartable tasks (failed, canceled, or pending_retry) back
// to pending and re-enqueues them as fresh execution attempts. The prior
// error message survives until the new attempt's terminal write.
func (e *Executor) Restart(ctx context.Context, tenantID string, taskIDs []string) error {
	var errs []error
	for _, taskID := range taskIDs {
		task, err := e.gateway.GetTaskByID(ctx, tenantID, taskID)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", taskID, err))
			continue
		}
		if !task.CanRestart() {
			errs = append(errs, fmt.Errorf("task %s in status %s: %w", taskID, task.Status, domain.ErrTaskNotRestartable))
			continue
		}

		knowledge, err := e.gateway.GetKnowledgeByID(ctx, tenantID, task.KnowledgeID)
		if err != nil {
			errs = append(errs, fmt.Errorf("knowledge for task %s: %w", taskID, err))
			continue
		}

		task.MarkPending()
		if err := e.Submit(ctx, task, knowledge); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", taskID, err))
		}
	}
	return errors.Join(errs...)
}

// Cancel cancels tasks. A waiting task is removed from the queue and
// terminally persisted as canceled; a running task is signaled and observes
// cancellation at the next pipeline stage boundary.
func (e *Executor) Cancel(ctx context.Context, tenantID string, taskIDs []string) error {
	var errs []error
	for _, taskID := range taskIDs {
		if entry, ok := e.pool.RemoveWaiting(taskID); ok {
			entry.Task.MarkCanceled()
			if err := e.gateway.UpdateTaskList(ctx, []*domain.Task{entry.Task}); err != nil {
				errs = append(errs, fmt.Errorf("task %s: %w", taskID, err))
			}
			continue
		}

		e.mu.Lock()
		cancel, running := e.cancels[taskID]
		if !running && e.pool.IsRunning(taskID) {
			// Admitted, but the attempt has not registered its cancel func
			// yet. Leave a mark the attempt consumes on registration.
			e.precanceled[taskID] = struct{}{}
			running = true
		}
		e.mu.Unlock()
		if running {
			if cancel != nil {
				cancel()
			}
			continue
		}

		errs = append(errs, fmt.Errorf("task %s: %w", taskID, domain.ErrTaskNotFound))
	}
	return errors.Join(errs...)
}

// Start runs the scheduling loop until Stop is called or ctx is canceled.
func (e *Executor) Start(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	defer close(e.doneChan)

	log.Printf("executor started: concurrency=%d capacity=%d timeout=%v", e.cfg.Concurrency, e.pool.Capacity(), e.cfg.TaskTimeout)

	for {
		select {
		case <-ctx.Done():
			log.Println("executor stopped: context canceled")
			return
		case <-e.stopChan:
			log.Println("executor stopped: stop signal received")
			return
		case <-ticker.C:
			e.dispatch(ctx)
		}
	}
}

// Stop signals the scheduling loop and waits for it and all in-flight tasks.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	<-e.doneChan
	e.inflight.Wait()
	log.Println("executor shutdown complete")
}

// dispatch admits executable entries one at a time, re-evaluating the budget
// per admission so that a snapshot whose candidates collectively exceed
// capacity is not over-admitted.
func (e *Executor) dispatch(ctx context.Context) {
	for _, entry := range e.pool.Executable() {
		if !e.pool.StartTask(entry.Task, entry.Knowledge) {
			continue
		}

		if err := e.sem.Acquire(ctx, 1); err != nil {
			// Shutting down: return the entry and stop admitting.
			e.pool.FinishTask(entry.Task)
			if addErr := e.pool.AddWaiting(entry.Task, entry.Knowledge); addErr != nil {
				log.Printf("failed to requeue task %s during shutdown: %v", entry.Task.TaskID, addErr)
			}
			return
		}

		e.inflight.Add(1)
		go func(entry Entry) {
			defer e.inflight.Done()
			defer e.sem.Release(1)
			e.process(ctx, entry)
		}(entry)
	}
}

// process runs one execution attempt through the state machine and
// finalizes it on every exit path.
func (e *Executor) process(ctx context.Context, entry Entry) {
	task := entry.Task
	knowledge := entry.Knowledge

	taskCtx, cancelTask := context.WithCancel(ctx)
	defer cancelTask()
	e.mu.Lock()
	e.cancels[task.TaskID] = cancelTask
	if _, ok := e.precanceled[task.TaskID]; ok {
		delete(e.precanceled, task.TaskID)
		cancelTask()
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, task.TaskID)
		e.mu.Unlock()
	}()

	runCtx, cancelTimeout := context.WithTimeout(taskCtx, e.cfg.TaskTimeout)
	defer cancelTimeout()

	// Persistence must outlive the attempt's own deadline so terminal writes
	// still land after a timeout or cancellation.
	persistCtx := context.WithoutCancel(ctx)

	log.Printf("=== start task %s (knowledge %s, cost %d) ===", task.TaskID, knowledge.KnowledgeID, knowledge.FileSize)

	task.MarkRunning()
	if err := e.gateway.UpdateTaskList(runCtx, []*domain.Task{task}); err != nil {
		task.MarkFailed(fmt.Sprintf("failed to persist running status: %v", err))
		e.finalize(persistCtx, entry, nil, false)
		return
	}

	chunks, err := e.runPipeline(runCtx, knowledge)

	cooldown := false
	switch {
	case err == nil:
		task.MarkSuccess()
	case taskCtx.Err() == context.Canceled:
		task.MarkCanceled()
		chunks = nil
	// Only the attempt's own deadline counts as a task timeout. Loaders and
	// the embedding provider carry internal timeouts whose deadline errors
	// must surface as ordinary failures.
	case runCtx.Err() == context.DeadlineExceeded:
		task.MarkFailed(fmt.Sprintf("task timed out after %v; retry or adjust the split config", e.cfg.TaskTimeout))
		chunks = nil
		cooldown = true
	default:
		task.MarkFailed(err.Error())
		chunks = nil
	}

	e.finalize(persistCtx, entry, chunks, cooldown)
}

// finalize releases the pool slot, persists produced chunks, and writes the
// terminal status, in that order, so a poller never observes success before
// the chunks it depends on were at least attempted.
func (e *Executor) finalize(ctx context.Context, entry Entry, chunks []*domain.Chunk, cooldown bool) {
	task := entry.Task
	log.Printf("=== end task %s: %s ===", task.TaskID, task.Status)

	if cooldown {
		time.Sleep(e.cfg.TimeoutCooldown)
	}
	e.pool.FinishTask(task)

	if len(chunks) > 0 {
		if err := e.gateway.SaveChunkList(ctx, chunks); err != nil {
			log.Printf("failed to save %d chunks for task %s: %v", len(chunks), task.TaskID, err)
			task.MarkFailed(fmt.Sprintf("failed to persist chunks: %v", err))
		}
	}

	if err := e.gateway.UpdateTaskList(ctx, []*domain.Task{task}); err != nil {
		log.Printf("failed to persist terminal status for task %s: %v", task.TaskID, err)
	}
}

// runPipeline executes the loading and embedding stages for one knowledge
// item. Container items are decomposed and reconciled against the persisted
// child set first; only additions are loaded and embedded.
func (e *Executor) runPipeline(ctx context.Context, knowledge *domain.Knowledge) ([]*domain.Chunk, error) {
	if knowledge.IsContainer() {
		return e.processContainer(ctx, knowledge)
	}
	return e.processLeaf(ctx, knowledge)
}

func (e *Executor) processLeaf(ctx context.Context, knowledge *domain.Knowledge) ([]*domain.Chunk, error) {
	l, ok := e.loaders.Loader(knowledge.SourceType)
	if !ok {
		return nil, fmt.Errorf("source type %s: %w", knowledge.SourceType, domain.ErrUnknownSourceType)
	}

	// Re-ingestion replaces the previous chunk set.
	if err := e.gateway.DeleteKnowledgeChunks(ctx, knowledge.KnowledgeID); err != nil {
		return nil, fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	docs, err := l.Load(ctx, knowledge)
	if err != nil {
		return nil, fmt.Errorf("loader failed: %w", err)
	}

	chunks, err := e.embedder.Embed(ctx, knowledge, docs)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return chunks, nil
}

func (e *Executor) processContainer(ctx context.Context, knowledge *domain.Knowledge) ([]*domain.Chunk, error) {
	lister, ok := e.loaders.Lister(knowledge.SourceType)
	if !ok {
		return nil, fmt.Errorf("source type %s cannot be decomposed: %w", knowledge.SourceType, domain.ErrUnknownSourceType)
	}

	discovered, err := lister.ListItems(ctx, knowledge)
	if err != nil {
		return nil, fmt.Errorf("failed to discover container items: %w", err)
	}

	previous, err := e.gateway.GetKnowledgeList(ctx, knowledge.TenantID, map[string]any{
		"space_id":  knowledge.SpaceID,
		"parent_id": knowledge.KnowledgeID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch persisted items: %w", err)
	}

	diff, err := Reconcile(previous, discovered)
	if err != nil {
		return nil, fmt.Errorf("reconciliation failed: %w", err)
	}
	log.Printf("reconciled knowledge %s: add=%d delete=%d unchanged=%d",
		knowledge.KnowledgeID, len(diff.ToAdd), len(diff.ToDelete), len(diff.Unchanged))

	if len(diff.ToDelete) > 0 {
		deleteIDs := make([]string, 0, len(diff.ToDelete))
		for _, item := range diff.ToDelete {
			deleteIDs = append(deleteIDs, item.KnowledgeID)
		}
		if err := e.gateway.DeleteKnowledge(ctx, knowledge.TenantID, deleteIDs); err != nil {
			return nil, fmt.Errorf("failed to delete stale items: %w", err)
		}
	}

	if len(diff.ToAdd) == 0 {
		return nil, nil
	}

	added, err := e.gateway.AddKnowledgeList(ctx, knowledge.TenantID, diff.ToAdd)
	if err != nil {
		return nil, fmt.Errorf("failed to persist discovered items: %w", err)
	}

	var chunks []*domain.Chunk
	for _, item := range added {
		// Cooperative cancellation point between items.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.IsContainer() {
			continue
		}

		l, ok := e.loaders.Loader(item.SourceType)
		if !ok {
			return nil, fmt.Errorf("source type %s: %w", item.SourceType, domain.ErrUnknownSourceType)
		}

		docs, err := l.Load(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("loader failed for %s: %w", item.Name, err)
		}

		itemChunks, err := e.embedder.Embed(ctx, item, docs)
		if err != nil {
			return nil, fmt.Errorf("embedding failed for %s: %w", item.Name, err)
		}
		chunks = append(chunks, itemChunks...)
	}

	return chunks, nil
}
