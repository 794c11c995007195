package domain

import (
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool on a provider session.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ParseArguments decodes the call's raw JSON arguments into a map.
// Empty and null arguments yield an empty map.
func (c ToolCall) ParseArguments() (map[string]any, error) {
	args := map[string]any{}
	if len(c.Arguments) == 0 || string(c.Arguments) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, NewDomainError("ToolCall.ParseArguments", ErrInvalidInput, err.Error())
	}
	return args, nil
}
