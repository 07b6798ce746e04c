// Package guide serves the bridge's fixed set of reference documents over
// the resources surface.
package guide

import (
	"context"
	"fmt"
	"sort"
	"strings"

	bridgeerrors "github.com/FreePeak/cloudbridge/internal/domain/shared/errors"
	"github.com/FreePeak/cloudbridge/pkg/types"
)

const mimeMarkdown = "text/markdown"

// Handler implements the reference-document resource handler
type Handler struct {
	resources map[string]string
}

// NewHandler creates a new reference-document handler
func NewHandler() *Handler {
	return &Handler{
		resources: map[string]string{
			"cloudbridge://guide/getting-started": `# Cloudbridge

Cloudbridge exposes cloud-API actions as tools over newline-delimited
JSON-RPC. Connect over TCP (default 127.0.0.1:8383) or open a local session
from the host, then send one JSON object per line.

## Quick start

1. Send an initialize request:
   {"id":1,"method":"initialize"}
2. List the available tools:
   {"id":2,"method":"tools/list"}
3. Call a tool:
   {"id":3,"method":"tools/call","params":{"tool":"s3","arguments":{"command":"ListBuckets","params":{}}}}

Sessions share a single capacity across both transports. A connection made
while the bridge is at capacity is held in a queue and promoted, oldest
first, as soon as a slot frees.
`,
			"cloudbridge://guide/protocol": `# Wire Protocol

Framing: newline-delimited UTF-8 JSON, one object per line.

Methods (short aliases in parentheses):

- initialize
- initialized (notifications/initialized) - notification, never answered
- tools/list (list_tools)
- resources/list (list_resources)
- resources/read (read_resource) - params: {"uri": "..."}
- tools/call (call_tool) - params: {"tool"|"name", "params"|"arguments": {"command", "params"}}

A request without an id is a notification and produces no response. A line
that fails to parse yields an error response keyed to whatever id could be
recovered; the connection stays open.
`,
			"cloudbridge://guide/safety": `# Confirmation Gate

Commands whose names begin with a mutating verb (Create, Update, Delete,
Send, Publish, Invoke, Start, Execute, Upload, Download, Copy, Insert,
Commit, Rollback and similar) require interactive confirmation before they
run. Declining produces a distinct "cancelled by user" error so clients can
offer a retry-with-confirmation flow.

Read-only commands (List*, Get*, Describe*, Head*) never prompt.

Classification is purely by verb prefix on the command name. Individual
tools can be disabled entirely through the disabled-tools setting; disabled
tools are neither listed nor callable in sessions started after the change.
`,
		},
	}
}

// ListResources returns the fixed reference documents, sorted by URI.
func (h *Handler) ListResources(ctx context.Context) ([]types.Resource, error) {
	resources := make([]types.Resource, 0, len(h.resources))

	for uri := range h.resources {
		name := strings.TrimPrefix(uri, "cloudbridge://guide/")
		resources = append(resources, types.Resource{
			URI:         uri,
			Name:        name,
			Description: "Cloudbridge reference document",
			MIMEType:    mimeMarkdown,
		})
	}

	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })
	return resources, nil
}

// ReadResource returns the content of a reference document
func (h *Handler) ReadResource(ctx context.Context, uri string) ([]types.ResourceContents, error) {
	content, exists := h.resources[uri]
	if !exists {
		return nil, bridgeerrors.NewNotFoundError(fmt.Sprintf("resource '%s' not found", uri), nil)
	}

	return []types.ResourceContents{
		{
			URI:      uri,
			MIMEType: mimeMarkdown,
			Text:     content,
		},
	}, nil
}
