// Package orchestrator drives the four-phase state machine that turns one
// user query into a final answer: planning, execution, verification, and an
// optional critique pass. Each phase delegates to a remote agent service;
// this package itself never calls a language model.
package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/agentmesh/agents"
	"github.com/agentmesh/agentmesh/events"
	"github.com/agentmesh/agentmesh/internal/metrics"
	"github.com/agentmesh/agentmesh/tools"
	"github.com/agentmesh/agentmesh/types"
)

// Phase identifies one stage of the orchestration state machine.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseExecution    Phase = "execution"
	PhaseVerification Phase = "verification"
	PhaseCritique     Phase = "critique"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// apologyText is the fixed answer returned whenever a run fails; callers
// never observe a raw error or stack trace.
const apologyText = "I apologize, but I encountered an error while processing your request. Please try again."

// reasons recorded on tasks the execution phase fails without calling an
// executor for them.
const (
	reasonDependencyFailed = "Dependency task failed"
	reasonNoResult         = "No result returned for task"
)

// AgentClient is the remote agent surface the orchestrator depends on.
// *agents.Client satisfies it.
type AgentClient interface {
	Plan(ctx context.Context, req *agents.PlanRequest) (*agents.PlanResponse, error)
	ExecuteTask(ctx context.Context, req *agents.ExecuteRequest) (*agents.ExecuteResponse, error)
	ExecuteBatch(ctx context.Context, req *agents.BatchExecuteRequest) (*agents.BatchExecuteResponse, error)
	Verify(ctx context.Context, req *agents.VerifyRequest) (*agents.VerifyResponse, error)
	Critique(ctx context.Context, req *agents.CritiqueRequest) (*agents.CritiqueResponse, error)
	HasMultiExecutor() bool
}

// Options are the caller-controlled knobs of one query.
type Options struct {
	SessionID      string
	ModelSelection string
	Temperature    *float32
	Seed           *int64
	// SkipCritique uses the verifier's finalAnswer verbatim and never calls
	// the critic agent.
	SkipCritique bool
}

func (o Options) modelOptions() agents.ModelOptions {
	return agents.ModelOptions{
		ModelSelection: o.ModelSelection,
		Temperature:    o.Temperature,
		Seed:           o.Seed,
	}
}

// MultiAgentResponse is the top-level result of ProcessQuery. It is always
// well-formed; on failure Success is false and FinalAnswer carries a fixed
// apology.
type MultiAgentResponse struct {
	FinalAnswer  string        `json:"finalAnswer"`
	ExecutionLog []string      `json:"executionLog"`
	Tasks        []*types.Task `json:"tasks"`
	Success      bool          `json:"success"`
}

// Params collects the collaborators an Orchestrator needs.
type Params struct {
	Agents  AgentClient
	Catalog tools.Catalog
	Emitter events.Emitter
	Metrics *metrics.Collector
	// MaxConcurrency bounds the concurrent single-task executor calls in
	// fan-out mode. Defaults to 5.
	MaxConcurrency int
	Logger         *zap.Logger
}

// Orchestrator runs queries through the phase state machine. It holds no
// per-run state; every ProcessQuery call constructs its own run context, so
// one Orchestrator serves concurrent queries.
type Orchestrator struct {
	agents         AgentClient
	catalog        tools.Catalog
	emitter        events.Emitter
	metrics        *metrics.Collector
	tracer         trace.Tracer
	logger         *zap.Logger
	maxConcurrency int
}

// New creates an Orchestrator from the given collaborators.
func New(p Params) *Orchestrator {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := p.Emitter
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	maxConcurrency := p.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Orchestrator{
		agents:         p.Agents,
		catalog:        p.Catalog,
		emitter:        emitter,
		metrics:        p.Metrics,
		tracer:         otel.Tracer("github.com/agentmesh/agentmesh/orchestrator"),
		logger:         logger.With(zap.String("component", "orchestrator")),
		maxConcurrency: maxConcurrency,
	}
}

// ProcessQuery decomposes the query into tasks, executes them with maximum
// safe parallelism, verifies the aggregate result, and synthesizes a final
// answer. It never returns a raw error: any failure yields a response with
// Success=false and the fixed apology text.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, opts Options) *MultiAgentResponse {
	r := newRun(query, opts, o.logger)
	logger := o.logger.With(zap.String("run_id", r.id))
	logger.Info("processing query", zap.String("session_id", opts.SessionID))
	r.logf("run %s started", r.id)

	answer, err := o.runPhases(ctx, r)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		r.logf("run failed: %v", err)
		o.emit(r, events.RunError, PhaseFailed, map[string]any{"error": err.Error()})
		o.metrics.RecordQuery("failure")
		return &MultiAgentResponse{
			FinalAnswer:  apologyText,
			ExecutionLog: r.executionLog(),
			Tasks:        []*types.Task{},
			Success:      false,
		}
	}

	logger.Info("run completed", zap.Int("tasks", len(r.tasks())))
	r.logf("run completed")
	o.metrics.RecordQuery("success")
	return &MultiAgentResponse{
		FinalAnswer:  answer,
		ExecutionLog: r.executionLog(),
		Tasks:        r.tasks(),
		Success:      true,
	}
}

// runPhases walks PLANNING → EXECUTION → VERIFICATION → CRITIQUE. Phases run
// strictly in sequence; an error from any phase aborts the run.
func (o *Orchestrator) runPhases(ctx context.Context, r *run) (string, error) {
	if err := o.planning(ctx, r); err != nil {
		return "", err
	}
	if err := o.execution(ctx, r); err != nil {
		return "", err
	}
	verification, err := o.verification(ctx, r)
	if err != nil {
		return "", err
	}
	return o.critique(ctx, r, verification)
}

// beginPhase emits phase_start, opens a span, and returns a completion
// callback that records metrics and emits phase_complete. The callback is
// invoked only on success; failed phases surface through the run error path.
func (o *Orchestrator) beginPhase(ctx context.Context, r *run, phase Phase) (context.Context, func(payload map[string]any)) {
	o.emit(r, events.PhaseStart, phase, nil)
	r.logf("phase %s started", phase)
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator."+string(phase))
	return ctx, func(payload map[string]any) {
		span.End()
		o.metrics.ObservePhase(string(phase), time.Since(start))
		o.emit(r, events.PhaseComplete, phase, payload)
		r.logf("phase %s completed", phase)
	}
}

// planning calls the planner agent, maps its task descriptors into internal
// Task records, and obtains the execution plan from the scheduler. Planner
// and scheduler errors are fatal: no task executes and no executor call is
// made.
func (o *Orchestrator) planning(ctx context.Context, r *run) error {
	ctx, done := o.beginPhase(ctx, r, PhasePlanning)

	catalogTools, err := o.catalog.List(ctx)
	if err != nil {
		return types.NewError(types.ErrPhase, "tool catalog lookup failed").
			WithPhase(string(PhasePlanning)).WithCause(err)
	}
	r.tools = catalogTools

	resp, err := o.agents.Plan(ctx, &agents.PlanRequest{
		Query:          r.query,
		AvailableTools: catalogTools,
		ModelOptions:   r.opts.modelOptions(),
	})
	if err != nil {
		return types.NewError(types.ErrPhase, "planner call failed").
			WithPhase(string(PhasePlanning)).WithCause(err)
	}

	planned := mapPlannedTasks(resp.Tasks)
	plan, err := r.sched.CreateExecutionPlan(planned)
	if err != nil {
		return err
	}
	r.plan = plan

	r.logf("planned %d task(s) in %d parallel group(s)", len(plan.Tasks), plan.TotalSteps)
	if path := r.sched.CriticalPath(); len(path) > 1 {
		r.logf("critical path: %v", path)
	}

	done(map[string]any{"tasks": len(plan.Tasks), "groups": plan.TotalSteps})
	return nil
}

// mapPlannedTasks converts raw planner descriptors into internal Task
// records, synthesizing task_<index> IDs and defaulting dependencies and
// tools when the planner omitted them.
func mapPlannedTasks(planned []agents.PlannedTask) []*types.Task {
	tasks := make([]*types.Task, len(planned))
	for i, p := range planned {
		id := p.ID
		if id == "" {
			id = "task_" + strconv.Itoa(i)
		}
		deps := p.Dependencies
		if deps == nil {
			deps = []string{}
		}
		toolNames := p.Tools
		if toolNames == nil {
			toolNames = []string{}
		}
		tasks[i] = &types.Task{
			ID:           id,
			Description:  p.Description,
			Dependencies: deps,
			Tools:        toolNames,
			SystemRole:   "executor",
			Status:       types.TaskPending,
		}
	}
	return tasks
}

// execution dispatches parallel groups strictly in sequence: group k+1 never
// starts before group k fully resolves, because later groups consume earlier
// results. Within one group all tasks are awaited to completion before the
// group-level failure check; once a group contains a failed task, every
// still-pending task is failed and no further group is dispatched.
func (o *Orchestrator) execution(ctx context.Context, r *run) error {
	ctx, done := o.beginPhase(ctx, r, PhaseExecution)

	for i, group := range r.plan.ParallelGroups {
		o.metrics.ObserveGroupSize(len(group))
		o.executeGroup(ctx, r, group)

		failed := 0
		for _, t := range group {
			if t.Status == types.TaskFailed {
				failed++
			}
		}
		if failed > 0 {
			o.logger.Warn("parallel group finished with failures",
				zap.Int("group", i),
				zap.Int("failed", failed),
			)
			r.logf("group %d finished with %d failed task(s); skipping remaining groups", i, failed)
			o.cascadeFailure(r)
			break
		}
		r.logf("group %d completed (%d task(s))", i, len(group))
	}

	completed, failed := 0, 0
	for _, t := range r.tasks() {
		switch t.Status {
		case types.TaskCompleted:
			completed++
		case types.TaskFailed:
			failed++
		}
	}
	done(map[string]any{"completed": completed, "failed": failed})
	return nil
}

// executeGroup dispatches one parallel group and waits for every member to
// settle. Group size 1 uses the single-task executor; larger groups use one
// batched multi-executor call, or bounded concurrent single calls when no
// multi-executor endpoint is configured.
func (o *Orchestrator) executeGroup(ctx context.Context, r *run, group []*types.Task) {
	for _, t := range group {
		t.Status = types.TaskExecuting
		o.emit(r, events.TaskStart, PhaseExecution, map[string]any{
			"taskId":      t.ID,
			"description": t.Description,
		})
	}

	switch {
	case len(group) == 1:
		o.executeSingle(ctx, r, group[0])
	case o.agents.HasMultiExecutor():
		o.executeBatch(ctx, r, group)
	default:
		o.executeFanOut(ctx, r, group)
	}

	for _, t := range group {
		switch t.Status {
		case types.TaskCompleted:
			o.metrics.RecordTask(string(types.TaskCompleted))
			o.emit(r, events.TaskComplete, PhaseExecution, map[string]any{"taskId": t.ID})
			r.logf("task %s completed", t.ID)
		case types.TaskFailed:
			o.metrics.RecordTask(string(types.TaskFailed))
			o.emit(r, events.TaskError, PhaseExecution, map[string]any{
				"taskId": t.ID,
				"error":  t.Error,
			})
			r.logf("task %s failed: %s", t.ID, t.Error)
		}
	}
}

// executeSingle runs one task against the single-task executor. Failures
// become task state, never errors.
func (o *Orchestrator) executeSingle(ctx context.Context, r *run, t *types.Task) {
	resp, err := o.agents.ExecuteTask(ctx, &agents.ExecuteRequest{
		Task:             o.taskPayload(r, t),
		PreFilteredTools: tools.FilterByName(r.tools, t.Tools),
		ModelOptions:     r.opts.modelOptions(),
	})
	if err != nil {
		t.Status = types.TaskFailed
		t.Error = err.Error()
		return
	}
	t.Status = types.TaskCompleted
	t.Result = resp.Result
	r.sched.SetTaskResult(t.ID, resp.Result)
}

// executeBatch runs a whole group with one multi-executor call. Task IDs
// missing from the response are failed; present IDs are completed and their
// results stored.
func (o *Orchestrator) executeBatch(ctx context.Context, r *run, group []*types.Task) {
	payloads := make([]agents.TaskPayload, len(group))
	for i, t := range group {
		payloads[i] = o.taskPayload(r, t)
	}

	resp, err := o.agents.ExecuteBatch(ctx, &agents.BatchExecuteRequest{
		Tasks:            payloads,
		PreFilteredTools: tools.UnionForTasks(r.tools, group),
		ModelOptions:     r.opts.modelOptions(),
	})
	if err != nil {
		for _, t := range group {
			t.Status = types.TaskFailed
			t.Error = err.Error()
		}
		return
	}

	for _, t := range group {
		result, ok := resp.TaskResults[t.ID]
		if !ok {
			t.Status = types.TaskFailed
			t.Error = reasonNoResult
			continue
		}
		t.Status = types.TaskCompleted
		t.Result = result
		r.sched.SetTaskResult(t.ID, result)
	}
}

// executeFanOut issues concurrent single-task executor calls for the group,
// bounded by MaxConcurrency. All calls are awaited to completion; no task is
// cancelled because a sibling failed.
func (o *Orchestrator) executeFanOut(ctx context.Context, r *run, group []*types.Task) {
	g := new(errgroup.Group)
	g.SetLimit(o.maxConcurrency)
	for _, t := range group {
		g.Go(func() error {
			o.executeSingle(ctx, r, t)
			return nil
		})
	}
	// Workers record failures as task state and never return errors.
	_ = g.Wait()
}

// cascadeFailure fails every still-pending task after a group-level failure.
func (o *Orchestrator) cascadeFailure(r *run) {
	for _, t := range r.tasks() {
		if t.Status != types.TaskPending {
			continue
		}
		t.Status = types.TaskFailed
		t.Error = reasonDependencyFailed
		o.metrics.RecordTask(string(types.TaskFailed))
		o.emit(r, events.TaskError, PhaseExecution, map[string]any{
			"taskId": t.ID,
			"error":  t.Error,
		})
		r.logf("task %s failed: %s", t.ID, t.Error)
	}
}

// taskPayload builds the executor wire payload for a task, injecting the
// stored results of its completed dependencies.
func (o *Orchestrator) taskPayload(r *run, t *types.Task) agents.TaskPayload {
	deps := r.sched.GetDependencyResults(t.ID)
	results := make(map[string]json.RawMessage, len(deps))
	for id, raw := range deps {
		results[id] = json.RawMessage(raw)
	}
	return agents.TaskPayload{
		ID:                t.ID,
		Description:       t.Description,
		Tools:             t.Tools,
		DependencyResults: results,
	}
}

// verification sends the completed tasks and the original query to the
// verifier agent and returns its consolidated draft.
func (o *Orchestrator) verification(ctx context.Context, r *run) (*agents.VerifyResponse, error) {
	ctx, done := o.beginPhase(ctx, r, PhaseVerification)

	completed := r.completedTasks()
	verified := make([]agents.VerifiedTask, len(completed))
	for i, t := range completed {
		verified[i] = agents.VerifiedTask{
			ID:          t.ID,
			Description: t.Description,
			Result:      t.Result,
		}
	}

	resp, err := o.agents.Verify(ctx, &agents.VerifyRequest{
		OriginalQuery: r.query,
		Tasks:         verified,
		ModelOptions:  r.opts.modelOptions(),
	})
	if err != nil {
		return nil, types.NewError(types.ErrPhase, "verifier call failed").
			WithPhase(string(PhaseVerification)).WithCause(err)
	}

	r.logf("verification: confidence=%.2f", resp.Confidence)
	done(map[string]any{"confidence": resp.Confidence})
	return resp, nil
}

// critique polishes the verifier's draft through the critic agent, unless
// the caller skipped it, in which case the verifier's finalAnswer is used
// verbatim and the critic receives zero calls.
func (o *Orchestrator) critique(ctx context.Context, r *run, verification *agents.VerifyResponse) (string, error) {
	if r.opts.SkipCritique {
		r.logf("critique skipped; using verifier answer")
		return verification.FinalAnswer, nil
	}

	ctx, done := o.beginPhase(ctx, r, PhaseCritique)

	taskResults := make(map[string]json.RawMessage)
	for _, t := range r.completedTasks() {
		taskResults[t.ID] = t.Result
	}

	resp, err := o.agents.Critique(ctx, &agents.CritiqueRequest{
		OriginalQuery: r.query,
		Verification:  *verification,
		TaskResults:   taskResults,
		ModelOptions:  r.opts.modelOptions(),
	})
	if err != nil {
		return "", types.NewError(types.ErrPhase, "critic call failed").
			WithPhase(string(PhaseCritique)).WithCause(err)
	}

	done(nil)
	return resp.Text(), nil
}

func (o *Orchestrator) emit(r *run, typ events.EventType, phase Phase, payload map[string]any) {
	o.emitter.Emit(events.Event{
		Type:    typ,
		RunID:   r.id,
		Phase:   string(phase),
		Payload: payload,
	})
}
