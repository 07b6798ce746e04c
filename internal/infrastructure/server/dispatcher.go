package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/FreePeak/cloudbridge/internal/domain"
	"github.com/FreePeak/cloudbridge/internal/domain/shared"
	bridgeerrors "github.com/FreePeak/cloudbridge/internal/domain/shared/errors"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
)

// Dispatcher translates one parsed RPC request at a time into tool
// invocations. Each session owns its own Dispatcher, constructed from the
// enabled-tool set current at session start; both transports therefore get
// identical enable-filtering and confirmation semantics for free.
type Dispatcher struct {
	info       shared.ServerInfo
	enabled    domain.Registry
	resources  domain.ResourceHandler
	gate       domain.ConfirmationGate
	sessionCtx domain.SessionContext
	log        *logging.Logger
}

// NewDispatcher creates a dispatcher over the given enabled-tool snapshot.
func NewDispatcher(info shared.ServerInfo, enabled domain.Registry, resources domain.ResourceHandler, gate domain.ConfirmationGate, sessionCtx domain.SessionContext, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		info:       info,
		enabled:    enabled,
		resources:  resources,
		gate:       gate,
		sessionCtx: sessionCtx,
		log:        log,
	}
}

// Dispatch handles a single request line. The returned bool reports whether
// a response line should be written; notifications never produce output.
func (d *Dispatcher) Dispatch(ctx context.Context, line []byte) ([]byte, bool) {
	var req shared.JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		// Key the parse error to whatever id can be recovered from the line.
		id := recoverID(line)
		d.log.Debug("unparseable request line", logging.Fields{"error": err.Error()})
		return marshalError(id, shared.ParseError, shared.ErrorMessage(shared.ParseError), err.Error()), true
	}

	// A request with no id is a notification and must never be answered,
	// regardless of method.
	if req.IsNotification() {
		return nil, false
	}

	switch req.Method {
	case shared.MethodInitialize:
		return d.handleInitialize(req), true
	case shared.MethodInitialized, shared.MethodInitializedAlias:
		// Explicit notification even when the client attaches an id.
		return nil, false
	case shared.MethodListTools, shared.MethodListToolsAlias:
		return d.handleListTools(req), true
	case shared.MethodListResources, shared.MethodListResourcesAlias:
		return d.handleListResources(ctx, req), true
	case shared.MethodReadResource, shared.MethodReadResourceAlias:
		return d.handleReadResource(ctx, req), true
	case shared.MethodCallTool, shared.MethodCallToolAlias:
		return d.handleCallTool(ctx, req), true
	default:
		return marshalError(req.ID, shared.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil), true
	}
}

func (d *Dispatcher) handleInitialize(req shared.JSONRPCRequest) []byte {
	result := shared.InitializeResult{
		ProtocolVersion: shared.ProtocolVersion,
		ServerInfo:      d.info,
	}
	return marshalResult(req.ID, result)
}

func (d *Dispatcher) handleListTools(req shared.JSONRPCRequest) []byte {
	descriptors := make([]shared.ToolDescriptor, 0, len(d.enabled))
	for _, record := range d.enabled {
		// Tools without registered metadata are silently excluded.
		if !record.Tool.HasMetadata() {
			continue
		}
		descriptors = append(descriptors, shared.ToolDescriptor{
			Name:        record.Tool.Name,
			Description: record.Tool.Description,
			InputSchema: record.Tool.InputSchema,
		})
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })

	return marshalResult(req.ID, shared.ListToolsResult{Tools: descriptors})
}

func (d *Dispatcher) handleListResources(ctx context.Context, req shared.JSONRPCRequest) []byte {
	resources, err := d.resources.ListResources(ctx)
	if err != nil {
		return marshalBridgeError(req.ID, err)
	}

	descriptors := make([]shared.ResourceDescriptor, 0, len(resources))
	for _, r := range resources {
		descriptors = append(descriptors, shared.ResourceDescriptor{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}

	return marshalResult(req.ID, shared.ListResourcesResult{Resources: descriptors})
}

func (d *Dispatcher) handleReadResource(ctx context.Context, req shared.JSONRPCRequest) []byte {
	var params shared.ReadResourceParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return marshalError(req.ID, shared.InvalidParams, "Invalid params", err.Error())
		}
	}
	if params.URI == "" {
		return marshalError(req.ID, shared.InvalidParams, "missing resource uri", nil)
	}

	contents, err := d.resources.ReadResource(ctx, params.URI)
	if err != nil {
		return marshalBridgeError(req.ID, err)
	}

	result := shared.ReadResourceResult{Contents: make([]shared.ResourceContent, 0, len(contents))}
	for _, c := range contents {
		result.Contents = append(result.Contents, shared.ResourceContent{
			URI:      c.URI,
			MIMEType: c.MIMEType,
			Text:     c.Text,
		})
	}

	return marshalResult(req.ID, result)
}

func (d *Dispatcher) handleCallTool(ctx context.Context, req shared.JSONRPCRequest) []byte {
	call, err := resolveCallPayload(req.Params)
	if err != nil {
		return marshalBridgeError(req.ID, err)
	}

	record, ok := d.enabled[call.tool]
	if !ok {
		// Distinct from not-found: the tool is outside this session's
		// enabled set (or was never registered); either way it is invisible.
		return marshalBridgeError(req.ID, bridgeerrors.NewNotEnabledError(
			fmt.Sprintf("tool '%s' is not enabled for this session", call.tool), nil))
	}

	if d.sessionCtx == nil || !d.sessionCtx.Initialized() {
		return marshalBridgeError(req.ID, bridgeerrors.NewNotReadyError(
			"session context is not initialized yet; retry once the host is ready", nil))
	}

	approved, err := d.gate.Confirm(ctx, call.tool, call.command, call.params)
	if err != nil {
		return marshalBridgeError(req.ID, bridgeerrors.Wrap(err, "confirmation failed"))
	}
	if !approved {
		return marshalBridgeError(req.ID, bridgeerrors.NewCancelledError(
			fmt.Sprintf("command '%s' was cancelled by the user", call.command), nil))
	}

	// Fresh cancellation handle per invocation, tied to the session context
	// so that tearing the session down aborts the in-flight call.
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw, err := record.Invoker.Invoke(callCtx, call.command, call.params)
	if err != nil {
		d.log.Debug("tool invocation failed", logging.Fields{"tool": call.tool, "command": call.command, "error": err.Error()})
		return marshalError(req.ID, shared.ServerError, err.Error(), fmt.Sprintf("%+v", pkgerrors.WithStack(err)))
	}

	result := shared.CallToolResult{
		Content: []shared.TextContent{{Type: "text", Text: readableResult(raw)}},
	}
	return marshalResult(req.ID, result)
}

// callPayload is the normalized shape of a tools/call request.
type callPayload struct {
	tool    string
	command string
	params  map[string]interface{}
}

// resolveCallPayload accepts the flexible parameter aliases clients use: the
// tool may be named via "tool" or "name", the arguments via "params" or
// "arguments", and the {command, params} pair may sit one level deeper
// inside the arguments object.
func resolveCallPayload(raw json.RawMessage) (callPayload, error) {
	var out callPayload

	var fields map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return out, bridgeerrors.NewInvalidInputError("call params must be an object", err.Error())
		}
	}

	out.tool = stringField(fields, "tool", "name")

	args := objectField(fields, "params", "arguments")
	if args != nil {
		if cmd := stringField(args, "command"); cmd != "" {
			out.command = cmd
			out.params = objectField(args, "params")
		} else if nested := objectField(args, "arguments", "params"); nested != nil {
			out.command = stringField(nested, "command")
			out.params = objectField(nested, "params")
		}
	}

	if out.tool == "" {
		return out, bridgeerrors.NewInvalidInputError("missing tool name in call payload", nil)
	}
	if out.command == "" {
		return out, bridgeerrors.NewInvalidInputError("missing command in call payload", nil)
	}
	if out.params == nil {
		out.params = map[string]interface{}{}
	}
	return out, nil
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func objectField(m map[string]interface{}, keys ...string) map[string]interface{} {
	for _, key := range keys {
		if v, ok := m[key].(map[string]interface{}); ok {
			return v
		}
	}
	return nil
}

// readableResult re-indents JSON result payloads so clients get something a
// human can read; non-JSON payloads pass through untouched.
func readableResult(raw string) string {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return raw
	}
	return buf.String()
}

func marshalResult(id json.RawMessage, result interface{}) []byte {
	response := shared.JSONRPCResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
	data, err := json.Marshal(response)
	if err != nil {
		return marshalError(id, shared.InternalError, "failed to encode response", err.Error())
	}
	return data
}

func marshalError(id json.RawMessage, code shared.ErrorCode, message string, data interface{}) []byte {
	response := shared.JSONRPCResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id,
		Error: &shared.JSONRPCError{
			Code:    int(code),
			Message: message,
			Data:    data,
		},
	}
	out, err := json.Marshal(response)
	if err != nil {
		// Error objects are built from plain values, so this cannot fail in
		// practice; fall back to a fixed frame.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal error"}}`)
	}
	return out
}

// marshalBridgeError maps the bridge error taxonomy onto RPC error codes.
func marshalBridgeError(id json.RawMessage, err error) []byte {
	var bridgeErr *bridgeerrors.BridgeError
	if pkgerrors.As(err, &bridgeErr) {
		var code shared.ErrorCode
		switch bridgeErr.Kind {
		case bridgeerrors.KindNotFound:
			code = shared.NotFound
		case bridgeerrors.KindInvalidInput:
			code = shared.InvalidParams
		case bridgeerrors.KindNotEnabled:
			code = shared.ToolNotEnabled
		case bridgeerrors.KindNotReady:
			code = shared.NotReady
		case bridgeerrors.KindCancelled:
			code = shared.Cancelled
		default:
			code = shared.InternalError
		}
		return marshalError(id, code, bridgeErr.Message, bridgeErr.Data)
	}
	return marshalError(id, shared.InternalError, fmt.Sprintf("Internal error: %v", err), nil)
}

// recoverID extracts an id from an otherwise unparseable line, so the error
// response can still be keyed to the request that caused it.
func recoverID(line []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil
	}
	if bytes.Equal(probe.ID, []byte("null")) {
		return nil
	}
	return probe.ID
}
