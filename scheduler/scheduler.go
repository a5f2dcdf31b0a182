package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/types"
)

// Scheduler validates task lists, computes execution plans, and holds the
// per-run task registry and result store. One Scheduler serves exactly one
// orchestration run at a time; CreateExecutionPlan clears all prior state.
type Scheduler struct {
	mu      sync.RWMutex
	tasks   map[string]*types.Task
	results *ResultStore
	logger  *zap.Logger
}

// New creates a Scheduler. A nil logger falls back to a noop logger.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tasks:   make(map[string]*types.Task),
		results: NewResultStore(),
		logger:  logger.With(zap.String("component", "scheduler")),
	}
}

// Validate checks the task list for structural violations: unknown dependency
// IDs, duplicate IDs across the whole list, and self-dependencies. It returns
// every violation found, not just the first. Cycle detection is a separate
// step (HasCycle).
func Validate(tasks []*types.Task) []ValidationIssue {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	var issues []ValidationIssue
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if !known[dep] {
				issues = append(issues, ValidationIssue{
					TaskID: t.ID,
					Reason: fmt.Sprintf("depends on unknown task %q", dep),
				})
			}
		}
		if seen[t.ID] {
			issues = append(issues, ValidationIssue{
				TaskID: t.ID,
				Reason: "duplicate task id",
			})
		}
		seen[t.ID] = true
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				issues = append(issues, ValidationIssue{
					TaskID: t.ID,
					Reason: "depends on itself",
				})
			}
		}
	}
	return issues
}

// HasCycle reports whether the dependency relation contains a cycle. It runs
// a depth-first traversal with a visited set and a recursion-stack set over
// every connected component; re-encountering a task still on the recursion
// stack signals a cycle.
func HasCycle(tasks []*types.Task) bool {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}

	visited := make(map[string]bool, len(tasks))
	onStack := make(map[string]bool, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			if onStack[dep] {
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, t := range tasks {
		if !visited[t.ID] && visit(t.ID) {
			return true
		}
	}
	return false
}

// CreateExecutionPlan validates the task list, rebuilds the per-run registry
// and result store, and computes the execution plan: a Kahn topological order
// with FIFO tie-break, greedily packed into parallel groups. Each task's
// ExecutionOrder is set to its group index.
//
// It fails with a VALIDATION_ERROR when Validate finds violations and with a
// CYCLE_ERROR when the dependency relation is cyclic; in both cases no task
// state is touched.
func (s *Scheduler) CreateExecutionPlan(tasks []*types.Task) (*ExecutionPlan, error) {
	if issues := Validate(tasks); len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		return nil, types.Errorf(types.ErrValidation,
			"invalid task plan: %s", strings.Join(msgs, "; "))
	}
	if HasCycle(tasks) {
		return nil, types.NewError(types.ErrCycle, "circular dependency detected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*types.Task, len(tasks))
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	s.results.Clear()

	order := topologicalOrder(tasks)
	groups := packParallelGroups(order)
	for i, group := range groups {
		for _, t := range group {
			t.ExecutionOrder = i
		}
	}

	s.logger.Debug("execution plan created",
		zap.Int("tasks", len(order)),
		zap.Int("parallel_groups", len(groups)),
	)

	return &ExecutionPlan{
		Tasks:          order,
		TotalSteps:     len(groups),
		ParallelGroups: groups,
	}, nil
}

// topologicalOrder computes Kahn's in-degree ordering. Tasks with in-degree 0
// seed a FIFO queue in input-list order; dequeuing a task decrements the
// in-degree of every dependent, requeueing those that reach 0. The FIFO
// processing makes the order a deterministic function of the input ordering.
func topologicalOrder(tasks []*types.Task) []*types.Task {
	byID := make(map[string]*types.Task, len(tasks))
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, t := range tasks {
		byID[t.ID] = t
		indegree[t.ID] = len(t.Dependencies)
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	queue := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	order := make([]*types.Task, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, byID[id])
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return order
}

// packParallelGroups greedily packs a topological order into parallel groups.
// Each task is placed in the first existing group none of whose members is
// related to it by the direct-or-transitive dependency relation; when no
// group fits, a new one is appended.
func packParallelGroups(order []*types.Task) [][]*types.Task {
	// ancestors[id] is the transitive dependency closure of id. Computed in
	// topological order, so every dependency's closure is already final.
	ancestors := make(map[string]map[string]bool, len(order))
	for _, t := range order {
		closure := make(map[string]bool, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			closure[dep] = true
			for a := range ancestors[dep] {
				closure[a] = true
			}
		}
		ancestors[t.ID] = closure
	}

	related := func(a, b *types.Task) bool {
		return ancestors[a.ID][b.ID] || ancestors[b.ID][a.ID]
	}

	var groups [][]*types.Task
	for _, t := range order {
		placed := false
		for i, group := range groups {
			conflict := false
			for _, member := range group {
				if related(t, member) {
					conflict = true
					break
				}
			}
			if !conflict {
				groups[i] = append(groups[i], t)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*types.Task{t})
		}
	}
	return groups
}

// Task returns the registered task by ID, or nil when unknown.
func (s *Scheduler) Task(id string) *types.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

// SetTaskResult records a task's result for later dependents. Overwrites are
// idempotent.
func (s *Scheduler) SetTaskResult(taskID string, result []byte) {
	s.results.Set(taskID, result)
}

// GetDependencyResults returns the stored results of the task's dependencies,
// keyed by dependency ID. Dependencies without a stored result at call time
// are absent from the map.
func (s *Scheduler) GetDependencyResults(taskID string) map[string][]byte {
	s.mu.RLock()
	task := s.tasks[taskID]
	s.mu.RUnlock()

	out := make(map[string][]byte)
	if task == nil {
		return out
	}
	for _, dep := range task.Dependencies {
		if result, ok := s.results.Get(dep); ok {
			out[dep] = result
		}
	}
	return out
}

// CriticalPath returns the longest dependency chain in the registered plan,
// ordered dependencies-first. Diagnostic only; execution ordering never uses
// it.
func (s *Scheduler) CriticalPath() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// depth[id] is the length of the longest chain starting at id and
	// following dependency edges; next[id] is the dependency continuing it.
	depth := make(map[string]int, len(s.tasks))
	next := make(map[string]string, len(s.tasks))

	var walk func(id string) int
	walk = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		best := 1
		task := s.tasks[id]
		for _, dep := range task.Dependencies {
			if _, known := s.tasks[dep]; !known {
				continue
			}
			if d := walk(dep) + 1; d > best {
				best = d
				next[id] = dep
			}
		}
		depth[id] = best
		return best
	}

	var start string
	longest := 0
	for id := range s.tasks {
		if d := walk(id); d > longest || (d == longest && (start == "" || id < start)) {
			longest = d
			start = id
		}
	}
	if start == "" {
		return nil
	}

	chain := make([]string, 0, longest)
	for id := start; ; {
		chain = append(chain, id)
		dep, ok := next[id]
		if !ok {
			break
		}
		id = dep
	}
	// The walk follows dependency edges; reverse so dependencies come first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
