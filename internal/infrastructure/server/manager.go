package server

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/FreePeak/cloudbridge/internal/domain"
	"github.com/FreePeak/cloudbridge/internal/domain/shared"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/config"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
)

// statusProbeTimeout bounds the reachability dial in CheckStatus.
const statusProbeTimeout = 500 * time.Millisecond

// ManagerConfig carries the collaborators a SessionManager needs.
type ManagerConfig struct {
	Info       shared.ServerInfo
	Store      *config.Store
	Registry   domain.Registry
	Resources  domain.ResourceHandler
	Gate       domain.ConfirmationGate
	SessionCtx domain.SessionContext
	Notifier   domain.StatusNotifier
	Logger     *logging.Logger
}

// SessionManager owns every live session regardless of transport and is the
// single admission authority: local and socket attachments draw from one
// shared capacity budget, decided under one lock.
type SessionManager struct {
	info       shared.ServerInfo
	store      *config.Store
	registry   domain.Registry
	resources  domain.ResourceHandler
	gate       domain.ConfirmationGate
	sessionCtx domain.SessionContext
	notifier   domain.StatusNotifier
	log        *logging.Logger

	mu         sync.Mutex
	active     map[string]*Session
	localCount int
	localQueue []*SessionPromise
	bridge     *BridgeServer
	stopping   bool
}

// NewSessionManager creates a manager. The bridge itself starts lazily, on
// the first session-producing operation.
func NewSessionManager(cfg ManagerConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = domain.NotifierFunc(func(message string) {
			log.Info(message, nil)
		})
	}
	m := &SessionManager{
		info:       cfg.Info,
		store:      cfg.Store,
		registry:   cfg.Registry,
		resources:  cfg.Resources,
		gate:       cfg.Gate,
		sessionCtx: cfg.SessionCtx,
		notifier:   notifier,
		log:        log,
		active:     make(map[string]*Session),
	}
	m.bridge = NewBridgeServer(m, log)
	return m
}

// effectiveCap is the shared session budget. A configured cap below one is
// treated as one so the bridge never wedges completely.
func (m *SessionManager) effectiveCap() int {
	cap := m.store.Snapshot().SessionCap
	if cap < 1 {
		return 1
	}
	return cap
}

func (m *SessionManager) effectiveLocalCap() int {
	cap := m.store.Snapshot().LocalSessionCap
	if cap < 1 {
		return 1
	}
	return cap
}

func (m *SessionManager) canAdmitLocked(kind domain.SessionKind) bool {
	if m.stopping {
		return false
	}
	if len(m.active) >= m.effectiveCap() {
		return false
	}
	if kind == domain.SessionKindLocal && m.localCount >= m.effectiveLocalCap() {
		return false
	}
	return true
}

// newDispatcherLocked snapshots the enabled-tool set at admission time.
// Later changes to the disabled list only affect sessions started after
// them.
func (m *SessionManager) newDispatcherLocked() *Dispatcher {
	enabled := m.registry.Enabled(m.store.Snapshot().DisabledTools)
	return NewDispatcher(m.info, enabled, m.resources, m.gate, m.sessionCtx, m.log)
}

func (m *SessionManager) registerLocked(session *Session) {
	m.active[session.ID()] = session
	if session.Kind() == domain.SessionKindLocal {
		m.localCount++
	}
}

// StartSession requests a local session. When capacity allows, the returned
// promise is already resolved; otherwise it resolves when a slot frees, in
// arrival order, or to (nil, nil) if the manager shuts down first.
func (m *SessionManager) StartSession() *SessionPromise {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return resolvedSessionPromise(nil)
	}
	m.ensureBridgeLocked()

	// Earlier waiters keep their place: a new request never overtakes the
	// queue even when a slot happens to be free.
	if len(m.localQueue) == 0 && m.canAdmitLocked(domain.SessionKindLocal) {
		session, local := m.beginLocalLocked()
		m.mu.Unlock()
		session.Start()
		return resolvedSessionPromise(local)
	}

	promise := newSessionPromise()
	m.localQueue = append(m.localQueue, promise)
	cap := m.effectiveCap()
	m.mu.Unlock()

	m.notifier.Notify(fmt.Sprintf("bridge is at capacity (%d sessions); session queued", cap))
	return promise
}

func (m *SessionManager) beginLocalLocked() (*Session, *LocalSession) {
	session, local := newLocalPair(m.newDispatcherLocked(), m.log, m.onSessionClosed)
	m.registerLocked(session)
	return session, local
}

// beginSocketSession admits a socket connection if the shared budget allows,
// atomically with registration. The bridge calls it from the accept path
// and from queue promotion.
func (m *SessionManager) beginSocketSession(conn io.ReadWriteCloser) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canAdmitLocked(domain.SessionKindSocket) {
		return nil, false
	}
	info := domain.NewSessionInfo(domain.SessionKindSocket)
	session := NewSession(info, conn, m.newDispatcherLocked(), m.log, m.onSessionClosed)
	m.registerLocked(session)
	return session, true
}

// onSessionClosed releases the slot and promotes waiters: queued local
// session requests first, then the bridge's socket queue.
func (m *SessionManager) onSessionClosed(closed *Session) {
	m.mu.Lock()
	if _, ok := m.active[closed.ID()]; ok {
		delete(m.active, closed.ID())
		if closed.Kind() == domain.SessionKindLocal {
			m.localCount--
		}
	}
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.promoteWaitersLocked()
}

type promotion struct {
	session *Session
	local   *LocalSession
	promise *SessionPromise
}

// promoteWaitersLocked drains waiters into freed slots, local queue first,
// then the bridge's socket queue. It releases the lock.
func (m *SessionManager) promoteWaitersLocked() {
	var promoted []promotion
	for len(m.localQueue) > 0 && m.canAdmitLocked(domain.SessionKindLocal) {
		promise := m.localQueue[0]
		m.localQueue = m.localQueue[1:]
		session, local := m.beginLocalLocked()
		promoted = append(promoted, promotion{session: session, local: local, promise: promise})
	}
	bridge := m.bridge
	m.mu.Unlock()

	for _, p := range promoted {
		p.session.Start()
		p.promise.resolve(p.local)
	}
	bridge.promote()
}

// ensureBridgeLocked starts the socket listener on first use, when the
// bridge is enabled in settings.
func (m *SessionManager) ensureBridgeLocked() {
	settings := m.store.Snapshot()
	if !settings.Enabled || m.bridge.Running() {
		return
	}
	if err := m.bridge.Start(settings.Host, settings.Port); err != nil {
		m.log.Error("failed to start bridge listener", logging.Fields{"error": err.Error()})
		m.notifier.Notify(fmt.Sprintf("failed to start bridge on %s:%d: %v", settings.Host, settings.Port, err))
	}
}

// StartBridge starts the socket listener immediately instead of waiting for
// the first session request.
func (m *SessionManager) StartBridge() error {
	settings := m.store.Snapshot()
	if !settings.Enabled {
		return errors.New("bridge is disabled in settings")
	}
	return m.bridge.Start(settings.Host, settings.Port)
}

// SetEnabled toggles the bridge. Disabling tears everything down: the
// listener, every active session on both transports, and all waiters.
func (m *SessionManager) SetEnabled(enabled bool) error {
	if err := m.store.SetEnabled(enabled); err != nil {
		return err
	}
	if !enabled {
		m.StopAll()
		m.notifier.Notify("bridge disabled")
		return nil
	}
	m.notifier.Notify("bridge enabled")
	return nil
}

// SetSessionCap persists a new shared capacity. Active sessions keep their
// slots; a raised cap is a slot event, so waiters promote immediately.
func (m *SessionManager) SetSessionCap(cap int) error {
	if err := m.store.SetSessionCap(cap); err != nil {
		return err
	}
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.promoteWaitersLocked()
	return nil
}

// SetDisabledTools persists the disabled-tool list. Only sessions started
// afterwards see the change.
func (m *SessionManager) SetDisabledTools(names []string) error {
	return m.store.SetDisabledTools(names)
}

// UpdateEndpoint persists a new host/port and rebinds a running listener.
// Active sessions and queued connections are not disturbed.
func (m *SessionManager) UpdateEndpoint(host string, port int) error {
	previous := m.store.Snapshot()
	if err := m.store.SetEndpoint(host, port); err != nil {
		return err
	}
	if m.bridge.Running() && (previous.Host != host || previous.Port != port) {
		if err := m.bridge.Rebind(host, port); err != nil {
			return errors.Wrap(err, "failed to rebind bridge listener")
		}
		m.notifier.Notify(fmt.Sprintf("bridge moved to %s:%d", host, port))
	}
	return nil
}

// ApplySettings reacts to an externally reloaded settings file.
func (m *SessionManager) ApplySettings(settings config.Settings) {
	if !settings.Enabled {
		if m.bridge.Running() {
			m.StopAll()
			m.notifier.Notify("bridge disabled by settings change")
		}
		return
	}
	if m.bridge.Running() && m.bridge.Addr() != "" {
		host, port := settings.Host, settings.Port
		if boundHost, boundPort, err := splitAddr(m.bridge.Addr()); err == nil {
			// Port 0 means "any free port": the bound port never matches it.
			if port != 0 && (boundHost != host || boundPort != port) {
				if err := m.bridge.Rebind(host, port); err != nil {
					m.log.Error("failed to rebind after settings reload", logging.Fields{"error": err.Error()})
				}
			}
		}
	}
}

// ActiveSessions returns the number of live sessions across both transports.
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// QueuedWaiters returns the number of waiters across both transports.
func (m *SessionManager) QueuedWaiters() int {
	m.mu.Lock()
	localQueued := len(m.localQueue)
	m.mu.Unlock()
	return localQueued + m.bridge.QueueLen()
}

// Metrics returns a load snapshot for diagnostics.
func (m *SessionManager) Metrics() BridgeMetrics {
	return BridgeMetrics{
		ActiveSessions:    m.ActiveSessions(),
		QueuedConnections: m.QueuedWaiters(),
		SessionCap:        m.effectiveCap(),
	}
}

// Status describes the bridge as seen from outside.
type Status struct {
	Running           bool   `json:"running"`
	Reachable         bool   `json:"reachable"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	ActiveSessions    int    `json:"activeSessions"`
	QueuedConnections int    `json:"queuedConnections"`
	SessionCap        int    `json:"sessionCap"`
	Message           string `json:"message,omitempty"`
}

// CheckStatus reports whether the bridge is up and verifies reachability
// with a short probe dial against the bound address.
func (m *SessionManager) CheckStatus() Status {
	settings := m.store.Snapshot()
	status := Status{
		Running:           m.bridge.Running(),
		Host:              settings.Host,
		Port:              settings.Port,
		ActiveSessions:    m.ActiveSessions(),
		QueuedConnections: m.QueuedWaiters(),
		SessionCap:        m.effectiveCap(),
	}

	if !status.Running {
		status.Message = "bridge is not running; enable it or start a session to bring it up"
		return status
	}

	addr := m.bridge.Addr()
	if addr == "" {
		addr = net.JoinHostPort(settings.Host, fmt.Sprintf("%d", settings.Port))
	}
	conn, err := net.DialTimeout("tcp", addr, statusProbeTimeout)
	if err != nil {
		status.Message = fmt.Sprintf("bridge listener bound but unreachable: %v", err)
		return status
	}
	_ = conn.Close()
	status.Reachable = true
	return status
}

// StopAll tears down the listener, every session, and resolves queued local
// waiters to nil so their callers stop waiting. The manager stays usable
// afterwards.
func (m *SessionManager) StopAll() {
	m.mu.Lock()
	m.stopping = true
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	waiters := m.localQueue
	m.localQueue = nil
	m.mu.Unlock()

	m.bridge.Stop()
	for _, s := range sessions {
		s.Close()
	}
	for _, promise := range waiters {
		promise.resolve(nil)
	}

	m.mu.Lock()
	m.active = make(map[string]*Session)
	m.localCount = 0
	m.stopping = false
	m.mu.Unlock()

	m.log.Info("all sessions stopped", nil)
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}
