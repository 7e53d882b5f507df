package ingest

import (
	"sync"

	"github.com/burrow-ai/burrow/internal/domain"
)

// Entry pairs a task with the knowledge payload it processes. The payload's
// FileSize is the admission-control cost.
type Entry struct {
	Task      *domain.Task
	Knowledge *domain.Knowledge
}

func (e Entry) cost() int64 {
	return e.Knowledge.FileSize
}

// TaskPool gates concurrent execution by aggregate payload cost rather than
// raw task count. Waiting entries are admitted into the running set only while
// the cumulative cost of running entries stays within the capacity budget.
type TaskPool struct {
	mu          sync.Mutex
	capacity    int64
	runningCost int64
	waiting     []Entry
	running     map[string]Entry // keyed by task_id
}

// NewTaskPool creates a pool with the given cost budget.
func NewTaskPool(capacity int64) *TaskPool {
	return &TaskPool{
		capacity: capacity,
		running:  make(map[string]Entry),
	}
}

// Capacity returns the total cost budget.
func (p *TaskPool) Capacity() int64 {
	return p.capacity
}

// RunningCost returns the cumulative cost of all running entries.
func (p *TaskPool) RunningCost() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningCost
}

// AddWaiting appends the pair to the waiting queue. A payload whose cost
// exceeds the total capacity can never be admitted and is rejected with
// domain.ErrCostExceedsCapacity; the caller must fail the task immediately
// instead of enqueueing it.
func (p *TaskPool) AddWaiting(task *domain.Task, knowledge *domain.Knowledge) error {
	if knowledge.FileSize > p.capacity {
		return domain.ErrCostExceedsCapacity
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting = append(p.waiting, Entry{Task: task, Knowledge: knowledge})
	return nil
}

// Executable returns a snapshot of every waiting entry whose cost fits the
// remaining budget at the time of the call. Nothing is admitted here; callers
// admit entries one at a time through StartTask, which re-evaluates the budget
// so that candidates that collectively exceed capacity are not over-admitted.
func (p *TaskPool) Executable() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var executable []Entry
	for _, e := range p.waiting {
		if p.runningCost+e.cost() <= p.capacity {
			executable = append(executable, e)
		}
	}
	return executable
}

// StartTask moves the entry from waiting to running and charges its cost
// against the budget. It returns false without mutating state when the entry
// is no longer waiting (already admitted or removed) or when admitting it now
// would exceed capacity.
func (p *TaskPool) StartTask(task *domain.Task, knowledge *domain.Knowledge) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, e := range p.waiting {
		if e.Task.TaskID == task.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	if _, ok := p.running[task.TaskID]; ok {
		return false
	}

	e := p.waiting[idx]
	if p.runningCost+e.cost() > p.capacity {
		return false
	}

	p.waiting = append(p.waiting[:idx], p.waiting[idx+1:]...)
	p.running[task.TaskID] = e
	p.runningCost += e.cost()
	return true
}

// FinishTask removes the entry from the running set and releases its cost.
func (p *TaskPool) FinishTask(task *domain.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.running[task.TaskID]
	if !ok {
		return
	}
	delete(p.running, task.TaskID)
	p.runningCost -= e.cost()
}

// RemoveWaiting removes a not-yet-admitted entry from the waiting queue, for
// cancellation before execution starts.
func (p *TaskPool) RemoveWaiting(taskID string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.waiting {
		if e.Task.TaskID == taskID {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// IsRunning reports whether the task currently holds a running slot.
func (p *TaskPool) IsRunning(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[taskID]
	return ok
}

// IsEmpty reports whether the waiting queue is empty. Running entries are not
// considered.
func (p *TaskPool) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting) == 0
}
