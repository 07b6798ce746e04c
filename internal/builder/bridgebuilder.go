// Package builder assembles a fully wired bridge from parts, with sensible
// defaults for everything a caller does not override.
package builder

import (
	"github.com/FreePeak/cloudbridge/internal/domain"
	"github.com/FreePeak/cloudbridge/internal/domain/shared"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/config"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/server"
	"github.com/FreePeak/cloudbridge/internal/usecases/confirm"
	"github.com/FreePeak/cloudbridge/internal/usecases/guide"
	"github.com/FreePeak/cloudbridge/pkg/tools"
	"github.com/FreePeak/cloudbridge/pkg/types"
)

// BridgeBuilder implements the Builder pattern for creating bridge managers
type BridgeBuilder struct {
	name       string
	version    string
	store      *config.Store
	registry   domain.Registry
	resources  domain.ResourceHandler
	gate       domain.ConfirmationGate
	sessionCtx domain.SessionContext
	notifier   domain.StatusNotifier
	logger     *logging.Logger
}

// alwaysReady is the default session context for hosts that have no
// credential bootstrap of their own.
type alwaysReady struct{}

func (alwaysReady) Initialized() bool { return true }

// NewBridgeBuilder creates a new bridge builder with default values
func NewBridgeBuilder() *BridgeBuilder {
	return &BridgeBuilder{
		name:       "CloudBridge",
		version:    "1.0.0",
		store:      config.NewStore(config.DefaultSettings()),
		registry:   make(domain.Registry),
		resources:  guide.NewHandler(),
		gate:       confirm.NewGate(nil),
		sessionCtx: alwaysReady{},
	}
}

// WithName sets the server name reported during initialize
func (b *BridgeBuilder) WithName(name string) *BridgeBuilder {
	b.name = name
	return b
}

// WithVersion sets the server version reported during initialize
func (b *BridgeBuilder) WithVersion(version string) *BridgeBuilder {
	b.version = version
	return b
}

// WithStore sets the settings store
func (b *BridgeBuilder) WithStore(store *config.Store) *BridgeBuilder {
	b.store = store
	return b
}

// WithResourceHandler sets the resource handler
func (b *BridgeBuilder) WithResourceHandler(handler domain.ResourceHandler) *BridgeBuilder {
	b.resources = handler
	return b
}

// WithConfirmationGate sets the confirmation gate for mutating commands
func (b *BridgeBuilder) WithConfirmationGate(gate domain.ConfirmationGate) *BridgeBuilder {
	b.gate = gate
	return b
}

// WithSessionContext sets the runtime readiness check
func (b *BridgeBuilder) WithSessionContext(sessionCtx domain.SessionContext) *BridgeBuilder {
	b.sessionCtx = sessionCtx
	return b
}

// WithNotifier sets the user-visible status notifier
func (b *BridgeBuilder) WithNotifier(notifier domain.StatusNotifier) *BridgeBuilder {
	b.notifier = notifier
	return b
}

// WithLogger sets the logger
func (b *BridgeBuilder) WithLogger(logger *logging.Logger) *BridgeBuilder {
	b.logger = logger
	return b
}

// AddTool registers a tool. Tools whose schema fails validation are logged
// and kept out of the registry, so they never surface in listings.
func (b *BridgeBuilder) AddTool(tool types.Tool, invoker types.Invoker) *BridgeBuilder {
	log := b.logger
	if log == nil {
		log = logging.Default()
	}
	if err := tools.ValidateSchema(&tool); err != nil {
		log.Warn("tool schema rejected", logging.Fields{"tool": tool.Name, "error": err.Error()})
		return b
	}
	b.registry[tool.Name] = domain.ToolRecord{Tool: tool, Invoker: invoker}
	return b
}

// Build creates the session manager
func (b *BridgeBuilder) Build() *server.SessionManager {
	return server.NewSessionManager(server.ManagerConfig{
		Info:       shared.ServerInfo{Name: b.name, Version: b.version},
		Store:      b.store,
		Registry:   b.registry,
		Resources:  b.resources,
		Gate:       b.gate,
		SessionCtx: b.sessionCtx,
		Notifier:   b.notifier,
		Logger:     b.logger,
	})
}
