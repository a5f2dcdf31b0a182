package scheduler

import (
	"fmt"

	"github.com/agentmesh/agentmesh/types"
)

// ExecutionPlan is the scheduler's output: a topologically ordered task list
// packed into parallel groups.
//
// Invariant: the concatenation of ParallelGroups, in order, equals Tasks and
// is a valid topological order; every task appears in exactly one group, and
// no two tasks in the same group are related by the transitive dependency
// relation in either direction.
type ExecutionPlan struct {
	// Tasks in topological order.
	Tasks []*types.Task `json:"tasks"`
	// TotalSteps is the number of parallel groups.
	TotalSteps int `json:"totalSteps"`
	// ParallelGroups are batches safe to dispatch concurrently, executed
	// strictly in sequence.
	ParallelGroups [][]*types.Task `json:"parallelGroups"`
}

// ValidationIssue is one structural violation found in a task list.
type ValidationIssue struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("task %q: %s", v.TaskID, v.Reason)
}
