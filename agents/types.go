package agents

import (
	"encoding/json"

	"github.com/agentmesh/agentmesh/types"
)

// ModelOptions are caller-controlled generation knobs forwarded verbatim to
// every remote agent. Absent fields are omitted from the wire payload.
type ModelOptions struct {
	ModelSelection string   `json:"modelSelection,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
}

// PlanRequest asks the planner agent to decompose a query into tasks.
type PlanRequest struct {
	Query          string                 `json:"query"`
	AvailableTools []types.ToolDescriptor `json:"availableTools"`
	ModelOptions
}

// PlannedTask is one raw task descriptor returned by the planner. The
// orchestrator maps it into an internal Task record, synthesizing an ID and
// defaulting dependencies/tools when the planner omitted them.
type PlannedTask struct {
	ID           string   `json:"id,omitempty"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
	Tools        []string `json:"tools,omitempty"`
}

// PlanResponse is the planner agent's reply.
type PlanResponse struct {
	Tasks     []PlannedTask `json:"tasks"`
	Reasoning string        `json:"reasoning,omitempty"`
}

func (r *PlanResponse) validate() error {
	if r.Tasks == nil {
		return types.NewError(types.ErrMalformedResponse, "planner response has no tasks field")
	}
	for i, t := range r.Tasks {
		if t.Description == "" {
			return types.Errorf(types.ErrMalformedResponse, "planner task %d has no description", i)
		}
	}
	return nil
}

// TaskPayload is the task shape sent to executor agents.
type TaskPayload struct {
	ID                string                     `json:"id"`
	Description       string                     `json:"description"`
	Tools             []string                   `json:"tools"`
	DependencyResults map[string]json.RawMessage `json:"dependencyResults"`
}

// ExecuteRequest asks the single-task executor agent to run one task.
type ExecuteRequest struct {
	Task             TaskPayload            `json:"task"`
	PreFilteredTools []types.ToolDescriptor `json:"preFilteredTools"`
	ModelOptions
}

// ToolCall reports one tool invocation an executor made while working.
type ToolCall struct {
	Name      string          `json:"name"`
	ServerID  string          `json:"serverId,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ExecuteResponse is the single-task executor's reply.
type ExecuteResponse struct {
	Result    json.RawMessage `json:"result"`
	ToolCalls []ToolCall      `json:"toolCalls,omitempty"`
}

func (r *ExecuteResponse) validate() error {
	if len(r.Result) == 0 {
		return types.NewError(types.ErrMalformedResponse, "executor response has no result")
	}
	return nil
}

// BatchExecuteRequest asks the multi-task executor agent to run a whole
// parallel group in one call.
type BatchExecuteRequest struct {
	Tasks            []TaskPayload          `json:"tasks"`
	PreFilteredTools []types.ToolDescriptor `json:"preFilteredTools"`
	ModelOptions
}

// BatchExecuteResponse is the multi-task executor's reply. Task IDs missing
// from TaskResults are treated as failed by the orchestrator.
type BatchExecuteResponse struct {
	TaskResults map[string]json.RawMessage `json:"taskResults"`
	ToolCalls   []ToolCall                 `json:"toolCalls,omitempty"`
	Success     bool                       `json:"success"`
}

func (r *BatchExecuteResponse) validate() error {
	if r.TaskResults == nil {
		return types.NewError(types.ErrMalformedResponse, "multi-executor response has no taskResults field")
	}
	return nil
}

// VerifiedTask is one completed task forwarded to the verifier.
type VerifiedTask struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// VerifyRequest asks the verifier agent to consolidate completed tasks into
// a draft answer.
type VerifyRequest struct {
	OriginalQuery string         `json:"originalQuery"`
	Tasks         []VerifiedTask `json:"tasks"`
	ModelOptions
}

// VerifyResponse is the verifier agent's reply.
type VerifyResponse struct {
	FinalAnswer    string                     `json:"finalAnswer"`
	Confidence     float64                    `json:"confidence,omitempty"`
	OverallCorrect *bool                      `json:"overallCorrect,omitempty"`
	TaskResults    map[string]json.RawMessage `json:"taskResults,omitempty"`
}

func (r *VerifyResponse) validate() error {
	if r.FinalAnswer == "" {
		return types.NewError(types.ErrMalformedResponse, "verifier response has no finalAnswer")
	}
	return nil
}

// CritiqueRequest asks the critic agent to polish the verifier's draft.
type CritiqueRequest struct {
	OriginalQuery string                     `json:"originalQuery"`
	Verification  VerifyResponse             `json:"verification"`
	TaskResults   map[string]json.RawMessage `json:"taskResults"`
	ModelOptions
}

// CritiqueResponse is the critic agent's reply. Some critic implementations
// reply with finalAnswer, others with answer; Text resolves either.
type CritiqueResponse struct {
	FinalAnswer string `json:"finalAnswer,omitempty"`
	Answer      string `json:"answer,omitempty"`
}

// Text returns the critic's answer text, preferring finalAnswer.
func (r *CritiqueResponse) Text() string {
	if r.FinalAnswer != "" {
		return r.FinalAnswer
	}
	return r.Answer
}

func (r *CritiqueResponse) validate() error {
	if r.Text() == "" {
		return types.NewError(types.ErrMalformedResponse, "critic response has neither finalAnswer nor answer")
	}
	return nil
}
