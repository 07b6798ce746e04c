package shared

// RPC method names. Each protocol operation is reachable under a long
// (MCP-style) name and a short alias; both route identically.
const (
	MethodInitialize = "initialize"

	MethodInitialized      = "initialized"
	MethodInitializedAlias = "notifications/initialized"

	MethodListTools      = "tools/list"
	MethodListToolsAlias = "list_tools"

	MethodCallTool      = "tools/call"
	MethodCallToolAlias = "call_tool"

	MethodListResources      = "resources/list"
	MethodListResourcesAlias = "list_resources"

	MethodReadResource      = "resources/read"
	MethodReadResourceAlias = "read_resource"

	// MethodStatusNotification is the server-originated queued-connection
	// notice sent to sockets held at capacity.
	MethodStatusNotification = "notifications/status"
)

// ProtocolVersion is the protocol revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// ServerInfo identifies the bridge to clients during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises the protocol surfaces the bridge supports.
type Capabilities struct {
	Tools     struct{} `json:"tools"`
	Resources struct{} `json:"resources"`
	Prompts   struct{} `json:"prompts"`
}

// InitializeResult represents the result of the initialize method
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ToolDescriptor is one entry of a tools/list result.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ListToolsResult represents the result of the tools/list method
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ResourceDescriptor is one entry of a resources/list result.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType"`
}

// ListResourcesResult represents the result of the resources/list method
type ListResourcesResult struct {
	Resources []ResourceDescriptor `json:"resources"`
}

// ReadResourceParams represents parameters for the resources/read method
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContent is one entry of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ReadResourceResult represents the result of the resources/read method
type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// TextContent is the uniform content block of a tools/call result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult represents the result of the tools/call method
type CallToolResult struct {
	Content []TextContent `json:"content"`
}

// StatusParams is the payload of a notifications/status frame.
type StatusParams struct {
	Status  string `json:"status"`
	Cap     int    `json:"cap"`
	Message string `json:"message"`
}
