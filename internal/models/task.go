package models

import "time"

// TaskPriority orders tasks in the queue; lower values are served first.
type TaskPriority int

const (
	PriorityHigh   TaskPriority = 1
	PriorityNormal TaskPriority = 2
	PriorityLow    TaskPriority = 3
)

// String returns the human-readable priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a unit of asynchronous work. Tasks live only in memory and are
// discarded once they reach a terminal status.
type Task struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  TaskPriority   `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Status    TaskStatus     `json:"status"`
}
