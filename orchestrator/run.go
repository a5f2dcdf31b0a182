package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/scheduler"
	"github.com/agentmesh/agentmesh/types"
)

// run is the per-run context: it owns the task registry, the result store
// (both inside the scheduler), the execution log, and the tool snapshot for
// exactly one ProcessQuery call. Nothing in a run is shared across runs, so
// one Orchestrator can serve concurrent queries.
type run struct {
	id    string
	query string
	opts  Options
	sched *scheduler.Scheduler
	plan  *scheduler.ExecutionPlan
	tools []types.ToolDescriptor

	mu  sync.Mutex
	log []string
}

func newRun(query string, opts Options, logger *zap.Logger) *run {
	return &run{
		id:    uuid.New().String(),
		query: query,
		opts:  opts,
		sched: scheduler.New(logger),
	}
}

// logf appends one timestamped line to the execution log.
func (r *run) logf(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	r.mu.Lock()
	r.log = append(r.log, line)
	r.mu.Unlock()
}

// executionLog returns a copy of the accumulated log lines.
func (r *run) executionLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}

// tasks returns the planned tasks in topological order, or nil before a plan
// exists.
func (r *run) tasks() []*types.Task {
	if r.plan == nil {
		return nil
	}
	return r.plan.Tasks
}

// completedTasks returns the tasks that finished successfully, in plan order.
func (r *run) completedTasks() []*types.Task {
	var out []*types.Task
	for _, t := range r.tasks() {
		if t.Status == types.TaskCompleted {
			out = append(out, t)
		}
	}
	return out
}
