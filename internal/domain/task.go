package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the status of an ingestion task
type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "pending"
	TaskStatusRunning      TaskStatus = "running"
	TaskStatusSuccess      TaskStatus = "success"
	TaskStatusFailed       TaskStatus = "failed"
	TaskStatusPendingRetry TaskStatus = "pending_retry"
	TaskStatusCanceled     TaskStatus = "canceled"
)

// Task represents one unit of asynchronous ingestion work bound 1:1 to a
// Knowledge item. Container items (folders) are decomposed by their task
// rather than embedded directly.
type Task struct {
	TaskID       string
	TenantID     string
	KnowledgeID  string
	SpaceID      string
	Status       TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTask creates a pending Task for the given knowledge item.
func NewTask(taskID string, k *Knowledge, createdAt time.Time) *Task {
	return &Task{
		TaskID:      taskID,
		TenantID:    k.TenantID,
		KnowledgeID: k.KnowledgeID,
		SpaceID:     k.SpaceID,
		Status:      TaskStatusPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// IsTerminal reports whether no further automatic transition occurs without
// explicit operator action.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

// CanRestart reports whether an operator may start a fresh execution attempt.
func (t *Task) CanRestart() bool {
	switch t.Status {
	case TaskStatusFailed, TaskStatusCanceled, TaskStatusPendingRetry:
		return true
	}
	return false
}

// MarkRunning transitions the task to running.
func (t *Task) MarkRunning() {
	t.Status = TaskStatusRunning
	t.UpdatedAt = time.Now().UTC()
}

// MarkSuccess transitions the task to the terminal success state and clears
// any prior error message.
func (t *Task) MarkSuccess() {
	t.Status = TaskStatusSuccess
	t.ErrorMessage = ""
	t.UpdatedAt = time.Now().UTC()
}

// MarkFailed transitions the task to the terminal failed state.
func (t *Task) MarkFailed(errMsg string) {
	t.Status = TaskStatusFailed
	t.ErrorMessage = errMsg
	t.UpdatedAt = time.Now().UTC()
}

// MarkCanceled transitions the task to the terminal canceled state.
func (t *Task) MarkCanceled() {
	t.Status = TaskStatusCanceled
	t.ErrorMessage = "task was canceled"
	t.UpdatedAt = time.Now().UTC()
}

// MarkPending resets the task for a fresh execution attempt. The prior
// error message is kept until the new attempt's terminal write overwrites it.
func (t *Task) MarkPending() {
	t.Status = TaskStatusPending
	t.UpdatedAt = time.Now().UTC()
}

// MarkPendingRetry parks a task for an operator-triggered restart. The prior
// error message, if any, is kept until the restarted attempt's terminal
// write.
func (t *Task) MarkPendingRetry() {
	t.Status = TaskStatusPendingRetry
	t.UpdatedAt = time.Now().UTC()
}

// ValidateTask validates a Task instance
func ValidateTask(t *Task) error {
	if t == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if t.TaskID == "" {
		return fmt.Errorf("task TaskID is required")
	}

	if t.TenantID == "" {
		return fmt.Errorf("task TenantID is required")
	}

	if t.KnowledgeID == "" {
		return fmt.Errorf("task KnowledgeID is required")
	}

	if !isValidTaskStatus(t.Status) {
		return fmt.Errorf("task Status is invalid: %s", t.Status)
	}

	return nil
}

// isValidTaskStatus checks if a TaskStatus is valid
func isValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSuccess,
		TaskStatusFailed, TaskStatusPendingRetry, TaskStatusCanceled:
		return true
	}
	return false
}
