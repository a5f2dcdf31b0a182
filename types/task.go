package types

import "encoding/json"

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	// TaskPending means the task has been planned but not dispatched.
	TaskPending TaskStatus = "pending"
	// TaskExecuting means the task's remote call is in flight.
	TaskExecuting TaskStatus = "executing"
	// TaskCompleted means the task finished and its result is stored.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the task's remote call failed or a dependency failed.
	TaskFailed TaskStatus = "failed"
)

// Task is one unit of work in an orchestration run. Tasks are created by
// the planning phase with status pending and mutated only by the execution
// phase; they are never deleted within a run.
type Task struct {
	// ID uniquely identifies the task within one plan.
	ID string `json:"id"`
	// Description is the natural-language instruction for the executor.
	Description string `json:"description"`
	// Dependencies lists the IDs of tasks that must complete first.
	Dependencies []string `json:"dependencies"`
	// Tools names the catalog tools the task declared it needs.
	Tools []string `json:"tools"`
	// SystemRole is the agent role assigned at planning time.
	SystemRole string `json:"systemRole,omitempty"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Result is the opaque executor result, absent until completion.
	Result json.RawMessage `json:"result,omitempty"`
	// Error carries the failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// ExecutionOrder is the 0-based index of the task's parallel group.
	ExecutionOrder int `json:"executionOrder"`
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}
