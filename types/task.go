package types

import "time"

// TaskStatus is the lifecycle state of a task. Any status may be set
// directly; there are no restricted transitions.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "New"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusCompleted  TaskStatus = "Completed"
	TaskStatusPending    TaskStatus = "Pending"
)

// DefaultTaskStatus is assigned when a task is created without a status.
const DefaultTaskStatus = TaskStatusNew

// TaskStatuses lists every valid status in display order.
var TaskStatuses = []TaskStatus{
	TaskStatusNew,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusPending,
}

// Valid reports whether s is a member of the fixed status set.
func (s TaskStatus) Valid() bool {
	for _, status := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Task represents a personal to-do item owned by exactly one account.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// Title is never blank after trimming whitespace.
	Title string `json:"title" db:"title"`

	// Description is optional free text.
	Description string `json:"description" db:"description"`

	// Status is always one of TaskStatuses.
	Status TaskStatus `json:"status" db:"status"`

	// OwnerID references the account that created the task.
	// It is set once at creation and never changes.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// Owner is the username of the owning account. It is read-only
	// and populated by the store.
	Owner string `json:"owner" db:"-"`

	// CreatedAt is the timestamp when the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is refreshed on every successful mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskFilter restricts a task listing. An empty Status matches every task;
// otherwise only tasks whose status equals it exactly are returned.
type TaskFilter struct {
	Status TaskStatus
}
