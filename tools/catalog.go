// Package tools provides access to the tool catalog collaborator. The
// catalog supplies callable tool descriptors and is consumed read-only.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/types"
)

// Catalog lists the callable tools available to executor agents.
type Catalog interface {
	List(ctx context.Context) ([]types.ToolDescriptor, error)
}

// StaticCatalog serves a fixed descriptor list, typically loaded from
// configuration.
type StaticCatalog struct {
	tools []types.ToolDescriptor
}

// NewStaticCatalog creates a catalog over the given descriptors.
func NewStaticCatalog(tools []types.ToolDescriptor) *StaticCatalog {
	return &StaticCatalog{tools: tools}
}

// List returns a copy of the descriptor list.
func (c *StaticCatalog) List(_ context.Context) ([]types.ToolDescriptor, error) {
	out := make([]types.ToolDescriptor, len(c.tools))
	copy(out, c.tools)
	return out, nil
}

// HTTPCatalog fetches descriptors from a catalog service with a GET request.
// The service replies with either a bare array or a {"tools": [...]} object.
type HTTPCatalog struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPCatalog creates an HTTP-backed catalog.
func NewHTTPCatalog(url string, timeout time.Duration, logger *zap.Logger) *HTTPCatalog {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPCatalog{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "tool_catalog")),
	}
}

// List fetches the current tool descriptors.
func (c *HTTPCatalog) List(ctx context.Context) ([]types.ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tool catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool catalog returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	var list []types.ToolDescriptor
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Tools []types.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	if wrapped.Tools == nil {
		return nil, fmt.Errorf("catalog response has no tools field")
	}
	return wrapped.Tools, nil
}

// FilterByName returns the descriptors whose names appear in names,
// preserving catalog order. Unknown names are ignored.
func FilterByName(all []types.ToolDescriptor, names []string) []types.ToolDescriptor {
	if len(names) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []types.ToolDescriptor
	for _, td := range all {
		if wanted[td.Name] {
			out = append(out, td)
		}
	}
	return out
}

// UnionForTasks returns the descriptors needed by any task in the group,
// deduplicated, preserving catalog order.
func UnionForTasks(all []types.ToolDescriptor, tasks []*types.Task) []types.ToolDescriptor {
	wanted := make(map[string]bool)
	for _, t := range tasks {
		for _, n := range t.Tools {
			wanted[n] = true
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	var out []types.ToolDescriptor
	for _, td := range all {
		if wanted[td.Name] {
			out = append(out, td)
		}
	}
	return out
}
