// Package domain defines the core entities of the cloudbridge session layer
// and the narrow interfaces of its external collaborators.
package domain

import (
	"context"

	"github.com/google/uuid"

	"github.com/FreePeak/cloudbridge/pkg/types"
)

// SessionKind identifies which transport a session arrived on.
type SessionKind string

const (
	// SessionKindLocal is an in-process session backed by a terminal channel.
	SessionKindLocal SessionKind = "local"
	// SessionKindSocket is a session backed by a raw TCP connection.
	SessionKindSocket SessionKind = "socket"
)

// SessionInfo carries the identity of one admitted client attachment.
type SessionInfo struct {
	ID   string
	Kind SessionKind
}

// NewSessionInfo creates session identity with a unique ID.
func NewSessionInfo(kind SessionKind) SessionInfo {
	return SessionInfo{
		ID:   uuid.New().String(),
		Kind: kind,
	}
}

// ToolRecord pairs a tool's advertised metadata with its invoker.
type ToolRecord struct {
	Tool    types.Tool
	Invoker types.Invoker
}

// Registry is the catalog of invocable capabilities keyed by tool name. It
// is constructed once at process start and read-only afterwards.
type Registry map[string]ToolRecord

// Enabled returns the view of the registry with the given tool names
// removed. The result is a snapshot: later changes to the disabled list do
// not affect it.
func (r Registry) Enabled(disabled []string) Registry {
	blocked := make(map[string]struct{}, len(disabled))
	for _, name := range disabled {
		blocked[name] = struct{}{}
	}

	enabled := make(Registry, len(r))
	for name, record := range r {
		if _, ok := blocked[name]; ok {
			continue
		}
		enabled[name] = record
	}
	return enabled
}

// Names returns the tool names present in the registry.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}

// ConfirmationGate decides whether a mutating command may proceed. A false
// result with a nil error means the user declined.
type ConfirmationGate interface {
	Confirm(ctx context.Context, tool, command string, params map[string]interface{}) (bool, error)
}

// SessionContext is the credential/runtime context collaborator. Tool calls
// are refused until it reports initialized.
type SessionContext interface {
	Initialized() bool
}

// ResourceHandler serves the fixed set of reference documents.
type ResourceHandler interface {
	ListResources(ctx context.Context) ([]types.Resource, error)
	ReadResource(ctx context.Context, uri string) ([]types.ResourceContents, error)
}

// StatusNotifier receives user-visible notices from the session layer, such
// as "at capacity, queued" and bridge start/stop events. Host UIs implement
// it; the default implementation logs.
type StatusNotifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the StatusNotifier interface.
type NotifierFunc func(message string)

// Notify calls the wrapped function.
func (f NotifierFunc) Notify(message string) { f(message) }
