package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/agents"
	"github.com/agentmesh/agentmesh/tools"
	"github.com/agentmesh/agentmesh/types"
)

// stubAgents is a scriptable AgentClient that records every call.
type stubAgents struct {
	mu sync.Mutex

	planResp *agents.PlanResponse
	planErr  error

	execFn  func(req *agents.ExecuteRequest) (*agents.ExecuteResponse, error)
	batchFn func(req *agents.BatchExecuteRequest) (*agents.BatchExecuteResponse, error)

	verifyResp *agents.VerifyResponse
	verifyErr  error

	critiqueResp *agents.CritiqueResponse
	critiqueErr  error

	multi bool

	execCalls     []*agents.ExecuteRequest
	batchCalls    []*agents.BatchExecuteRequest
	verifyCalls   []*agents.VerifyRequest
	critiqueCalls []*agents.CritiqueRequest
}

func (s *stubAgents) Plan(_ context.Context, _ *agents.PlanRequest) (*agents.PlanResponse, error) {
	return s.planResp, s.planErr
}

func (s *stubAgents) ExecuteTask(_ context.Context, req *agents.ExecuteRequest) (*agents.ExecuteResponse, error) {
	s.mu.Lock()
	s.execCalls = append(s.execCalls, req)
	s.mu.Unlock()
	if s.execFn != nil {
		return s.execFn(req)
	}
	return &agents.ExecuteResponse{Result: json.RawMessage(`"ok"`)}, nil
}

func (s *stubAgents) ExecuteBatch(_ context.Context, req *agents.BatchExecuteRequest) (*agents.BatchExecuteResponse, error) {
	s.mu.Lock()
	s.batchCalls = append(s.batchCalls, req)
	s.mu.Unlock()
	if s.batchFn != nil {
		return s.batchFn(req)
	}
	results := make(map[string]json.RawMessage, len(req.Tasks))
	for _, t := range req.Tasks {
		results[t.ID] = json.RawMessage(`"ok"`)
	}
	return &agents.BatchExecuteResponse{TaskResults: results, Success: true}, nil
}

func (s *stubAgents) Verify(_ context.Context, req *agents.VerifyRequest) (*agents.VerifyResponse, error) {
	s.mu.Lock()
	s.verifyCalls = append(s.verifyCalls, req)
	s.mu.Unlock()
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	if s.verifyResp != nil {
		return s.verifyResp, nil
	}
	return &agents.VerifyResponse{FinalAnswer: "verified draft", Confidence: 0.8}, nil
}

func (s *stubAgents) Critique(_ context.Context, req *agents.CritiqueRequest) (*agents.CritiqueResponse, error) {
	s.mu.Lock()
	s.critiqueCalls = append(s.critiqueCalls, req)
	s.mu.Unlock()
	if s.critiqueErr != nil {
		return nil, s.critiqueErr
	}
	if s.critiqueResp != nil {
		return s.critiqueResp, nil
	}
	return &agents.CritiqueResponse{FinalAnswer: "polished answer"}, nil
}

func (s *stubAgents) HasMultiExecutor() bool { return s.multi }

func (s *stubAgents) executedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.execCalls))
	for i, req := range s.execCalls {
		ids[i] = req.Task.ID
	}
	return ids
}

func plannedTasks(tasks ...agents.PlannedTask) *agents.PlanResponse {
	return &agents.PlanResponse{Tasks: tasks}
}

func newTestOrchestrator(stub *stubAgents) *Orchestrator {
	return New(Params{
		Agents:  stub,
		Catalog: tools.NewStaticCatalog(nil),
	})
}

func taskByID(tasks []*types.Task, id string) *types.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func TestProcessQueryHappyPath(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "gather"},
			agents.PlannedTask{ID: "b", Description: "summarize", Dependencies: []string{"a"}},
		),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "what happened", Options{})

	assert.True(t, resp.Success)
	assert.Equal(t, "polished answer", resp.FinalAnswer)
	require.Len(t, resp.Tasks, 2)
	for _, tk := range resp.Tasks {
		assert.Equal(t, types.TaskCompleted, tk.Status)
		assert.Equal(t, json.RawMessage(`"ok"`), json.RawMessage(tk.Result))
	}
	assert.NotEmpty(t, resp.ExecutionLog)

	// Chain of two means two single-task executor calls, in order.
	assert.Equal(t, []string{"a", "b"}, stub.executedIDs())
	require.Len(t, stub.verifyCalls, 1)
	assert.Equal(t, "what happened", stub.verifyCalls[0].OriginalQuery)
	assert.Len(t, stub.critiqueCalls, 1)
}

func TestProcessQuerySynthesizesTaskIDs(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{Description: "first"},
			agents.PlannedTask{Description: "second"},
		),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	require.True(t, resp.Success)
	require.NotNil(t, taskByID(resp.Tasks, "task_0"))
	require.NotNil(t, taskByID(resp.Tasks, "task_1"))
}

func TestProcessQuerySkipCritique(t *testing.T) {
	stub := &stubAgents{
		planResp:   plannedTasks(agents.PlannedTask{ID: "a", Description: "only"}),
		verifyResp: &agents.VerifyResponse{FinalAnswer: "the verifier said so", Confidence: 1},
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{SkipCritique: true})

	assert.True(t, resp.Success)
	assert.Equal(t, "the verifier said so", resp.FinalAnswer)
	assert.Empty(t, stub.critiqueCalls, "critic must not be called when skipped")
}

func TestProcessQueryDependencyCascade(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "left"},
			agents.PlannedTask{ID: "b", Description: "right"},
			agents.PlannedTask{ID: "c", Description: "join", Dependencies: []string{"a", "b"}},
		),
	}
	stub.execFn = func(req *agents.ExecuteRequest) (*agents.ExecuteResponse, error) {
		if req.Task.ID == "b" {
			return nil, errors.New("executor exploded")
		}
		return &agents.ExecuteResponse{Result: json.RawMessage(`"ok"`)}, nil
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	// Task failures are data; the run still verifies the completed subset.
	assert.True(t, resp.Success)

	require.Len(t, resp.Tasks, 3)
	assert.Equal(t, types.TaskCompleted, taskByID(resp.Tasks, "a").Status)
	assert.Equal(t, types.TaskFailed, taskByID(resp.Tasks, "b").Status)
	assert.Contains(t, taskByID(resp.Tasks, "b").Error, "executor exploded")

	c := taskByID(resp.Tasks, "c")
	assert.Equal(t, types.TaskFailed, c.Status)
	assert.Equal(t, "Dependency task failed", c.Error)
	assert.NotContains(t, stub.executedIDs(), "c", "no executor call for a cascaded task")

	// Only the completed task reaches the verifier.
	require.Len(t, stub.verifyCalls, 1)
	require.Len(t, stub.verifyCalls[0].Tasks, 1)
	assert.Equal(t, "a", stub.verifyCalls[0].Tasks[0].ID)
}

func TestProcessQueryBatchesParallelGroups(t *testing.T) {
	stub := &stubAgents{
		multi: true,
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "one"},
			agents.PlannedTask{ID: "b", Description: "two"},
			agents.PlannedTask{ID: "c", Description: "three"},
		),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.True(t, resp.Success)
	require.Len(t, stub.batchCalls, 1, "one group means one batch call")
	assert.Len(t, stub.batchCalls[0].Tasks, 3)
	assert.Empty(t, stub.execCalls)
}

func TestProcessQueryBatchMissingResult(t *testing.T) {
	stub := &stubAgents{
		multi: true,
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "one"},
			agents.PlannedTask{ID: "b", Description: "two"},
		),
	}
	stub.batchFn = func(_ *agents.BatchExecuteRequest) (*agents.BatchExecuteResponse, error) {
		return &agents.BatchExecuteResponse{
			TaskResults: map[string]json.RawMessage{"a": json.RawMessage(`"ok"`)},
			Success:     true,
		}, nil
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.True(t, resp.Success)
	assert.Equal(t, types.TaskCompleted, taskByID(resp.Tasks, "a").Status)
	b := taskByID(resp.Tasks, "b")
	assert.Equal(t, types.TaskFailed, b.Status)
	assert.Equal(t, "No result returned for task", b.Error)
}

func TestProcessQueryLoneTaskUsesSingleExecutor(t *testing.T) {
	stub := &stubAgents{
		multi:    true,
		planResp: plannedTasks(agents.PlannedTask{ID: "a", Description: "only"}),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.True(t, resp.Success)
	assert.Equal(t, []string{"a"}, stub.executedIDs())
	assert.Empty(t, stub.batchCalls)
}

func TestProcessQueryFanOutWithoutMultiExecutor(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "one"},
			agents.PlannedTask{ID: "b", Description: "two"},
			agents.PlannedTask{ID: "c", Description: "three"},
		),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.True(t, resp.Success)
	assert.Empty(t, stub.batchCalls)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, stub.executedIDs())
}

func TestProcessQueryDependencyResultsReachExecutors(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "produce"},
			agents.PlannedTask{ID: "b", Description: "consume", Dependencies: []string{"a"}},
		),
	}
	stub.execFn = func(req *agents.ExecuteRequest) (*agents.ExecuteResponse, error) {
		if req.Task.ID == "a" {
			return &agents.ExecuteResponse{Result: json.RawMessage(`{"value": 7}`)}, nil
		}
		return &agents.ExecuteResponse{Result: json.RawMessage(`"done"`)}, nil
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})
	require.True(t, resp.Success)

	require.Len(t, stub.execCalls, 2)
	consume := stub.execCalls[1]
	require.Equal(t, "b", consume.Task.ID)
	assert.JSONEq(t, `{"value": 7}`, string(consume.Task.DependencyResults["a"]))
}

func TestProcessQueryPlannerFailure(t *testing.T) {
	stub := &stubAgents{planErr: errors.New("planner down")}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, apologyText, resp.FinalAnswer)
	assert.Empty(t, resp.Tasks)
	assert.NotEmpty(t, resp.ExecutionLog)
	assert.Empty(t, stub.execCalls, "no task executes after a planning failure")
	assert.Empty(t, stub.verifyCalls)
}

func TestProcessQueryCyclicPlanFails(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "one", Dependencies: []string{"b"}},
			agents.PlannedTask{ID: "b", Description: "two", Dependencies: []string{"a"}},
		),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, apologyText, resp.FinalAnswer)
	assert.Empty(t, stub.execCalls)
}

func TestProcessQueryVerifierFailure(t *testing.T) {
	stub := &stubAgents{
		planResp:  plannedTasks(agents.PlannedTask{ID: "a", Description: "only"}),
		verifyErr: errors.New("verifier down"),
	}
	o := newTestOrchestrator(stub)

	resp := o.ProcessQuery(context.Background(), "q", Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, apologyText, resp.FinalAnswer)
	assert.Empty(t, stub.critiqueCalls)
}

func TestProcessQueryConcurrentRunsAreIsolated(t *testing.T) {
	stub := &stubAgents{
		planResp: plannedTasks(
			agents.PlannedTask{ID: "a", Description: "one"},
			agents.PlannedTask{ID: "b", Description: "two", Dependencies: []string{"a"}},
		),
	}
	o := newTestOrchestrator(stub)

	var wg sync.WaitGroup
	responses := make([]*MultiAgentResponse, 8)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = o.ProcessQuery(context.Background(), "q", Options{})
		}(i)
	}
	wg.Wait()

	for _, resp := range responses {
		require.True(t, resp.Success)
		require.Len(t, resp.Tasks, 2)
	}
}
