package types

import "encoding/json"

// ToolInputSchema is the JSON Schema fragment describing a tool's input.
type ToolInputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// ToolDescriptor describes one callable tool as read from the tool catalog.
// The catalog is an external collaborator; descriptors are consumed read-only.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ServerID    string          `json:"serverId"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}
