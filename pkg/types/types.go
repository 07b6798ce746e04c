// Package types provides the public contracts for embedding the cloudbridge
// tool surface: tool metadata shapes and the uniform invoker contract that
// every cloud-API capability implements.
package types

import (
	"context"
)

// Tool describes one invocable cloud-API capability as advertised to clients.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// HasMetadata reports whether the tool carries enough metadata to be listed.
// Tools without a description or input schema are invisible to clients.
func (t Tool) HasMetadata() bool {
	return t.Name != "" && t.Description != "" && t.InputSchema != nil
}

// Invoker is the uniform invocation contract for a tool. The command names a
// concrete cloud-API action (e.g. "ListBuckets"); params carry its arguments.
// The returned string is the raw result payload, usually JSON.
type Invoker interface {
	Invoke(ctx context.Context, command string, params map[string]interface{}) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, command string, params map[string]interface{}) (string, error)

// Invoke calls the wrapped function.
func (f InvokerFunc) Invoke(ctx context.Context, command string, params map[string]interface{}) (string, error) {
	return f(ctx, command, params)
}

// Resource describes a reference document exposed over resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType"`
}

// ResourceContents is one entry of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}
