// Package agents is the transport layer for the remote agent services:
// planner, executor, multi-executor, verifier, and critic. Each invocation is
// a single synchronous JSON round-trip; the client performs no retries, rate
// limiting, or caching, and a timed-out call surfaces as an ordinary failed
// call.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/metrics"
	"github.com/agentmesh/agentmesh/types"
)

// Agent kinds, used for logging and metrics labels.
const (
	KindPlanner       = "planner"
	KindExecutor      = "executor"
	KindMultiExecutor = "multi_executor"
	KindVerifier      = "verifier"
	KindCritic        = "critic"
)

// Endpoints holds the URL of each remote agent service. MultiExecutor may be
// empty, in which case the orchestrator falls back to concurrent single-task
// executor calls for groups.
type Endpoints struct {
	Planner       string
	Executor      string
	MultiExecutor string
	Verifier      string
	Critic        string
}

// Client calls the remote agent endpoints. Timeout behavior is whatever the
// underlying http.Client enforces.
type Client struct {
	endpoints Endpoints
	http      *http.Client
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// NewClient creates an agent client. A zero timeout defaults to 120s; nil
// logger and metrics are allowed.
func NewClient(endpoints Endpoints, timeout time.Duration, logger *zap.Logger, collector *metrics.Collector) *Client {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With(zap.String("component", "agent_client")),
		metrics:   collector,
	}
}

// HasMultiExecutor reports whether a multi-task executor endpoint is
// configured.
func (c *Client) HasMultiExecutor() bool {
	return c.endpoints.MultiExecutor != ""
}

// Plan calls the planner agent.
func (c *Client) Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error) {
	var resp PlanResponse
	if err := c.post(ctx, KindPlanner, c.endpoints.Planner, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteTask calls the single-task executor agent.
func (c *Client) ExecuteTask(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.post(ctx, KindExecutor, c.endpoints.Executor, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteBatch calls the multi-task executor agent with a whole parallel
// group.
func (c *Client) ExecuteBatch(ctx context.Context, req *BatchExecuteRequest) (*BatchExecuteResponse, error) {
	var resp BatchExecuteResponse
	if err := c.post(ctx, KindMultiExecutor, c.endpoints.MultiExecutor, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify calls the verifier agent.
func (c *Client) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post(ctx, KindVerifier, c.endpoints.Verifier, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Critique calls the critic agent.
func (c *Client) Critique(ctx context.Context, req *CritiqueRequest) (*CritiqueResponse, error) {
	var resp CritiqueResponse
	if err := c.post(ctx, KindCritic, c.endpoints.Critic, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post performs one synchronous JSON round-trip to an agent endpoint.
func (c *Client) post(ctx context.Context, kind, endpoint string, in, out any) error {
	if endpoint == "" {
		return types.Errorf(types.ErrInvalidRequest, "%s endpoint not configured", kind)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return types.Errorf(types.ErrInvalidRequest, "marshal %s request", kind).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.Errorf(types.ErrInvalidRequest, "build %s request", kind).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	c.metrics.ObserveAgentCall(kind, latency)

	if err != nil {
		c.logger.Warn("agent call failed",
			zap.String("agent", kind),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return types.Errorf(types.ErrAgentUnavailable, "%s call failed", kind).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		c.logger.Warn("agent returned error status",
			zap.String("agent", kind),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return types.Errorf(types.ErrAgentUnavailable, "%s returned status %d: %s", kind, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.Errorf(types.ErrMalformedResponse, "decode %s response", kind).WithCause(err)
	}

	c.logger.Debug("agent call completed",
		zap.String("agent", kind),
		zap.Duration("latency", latency),
	)
	return nil
}

// agentErrorBody is the error envelope agent services reply with on failure.
type agentErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var e agentErrorBody
	if err := json.Unmarshal(data, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fmt.Sprintf("%.512s", string(data))
}
