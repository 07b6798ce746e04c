package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/FreePeak/cloudbridge/internal/domain/shared"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
)

// queuedNoticeTimeout bounds the write of the single queued-status frame so
// a stalled client cannot block the accept path.
const queuedNoticeTimeout = 10 * time.Second

// queuedConn is a socket held at capacity. A monitor goroutine watches it
// for early disconnect; any byte the monitor absorbs before promotion is
// stashed in prefix and replayed to the session reader.
type queuedConn struct {
	conn     net.Conn
	since    time.Time
	prefix   []byte
	promoted bool
	done     chan struct{}
}

// BridgeMetrics is a point-in-time snapshot of socket-side load.
type BridgeMetrics struct {
	ActiveSessions    int
	QueuedConnections int
	SessionCap        int
}

// BridgeServer accepts raw TCP connections and turns them into sessions,
// deferring admission decisions to the manager. Connections that cannot be
// admitted wait in arrival order; each is told once that it is queued.
type BridgeServer struct {
	manager *SessionManager
	log     *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	queue    []*queuedConn
	closed   bool

	wg sync.WaitGroup
}

// NewBridgeServer creates a bridge bound to the given manager.
func NewBridgeServer(manager *SessionManager, log *logging.Logger) *BridgeServer {
	if log == nil {
		log = logging.Default()
	}
	return &BridgeServer{manager: manager, log: log}
}

// Start binds the listener and launches the accept loop. Port 0 asks the
// kernel for a free port; Addr reports what was actually bound.
func (b *BridgeServer) Start(host string, port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener != nil {
		return nil
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	b.listener = listener
	b.closed = false

	b.wg.Add(1)
	go b.acceptLoop(listener)

	b.log.Info("bridge listening", logging.Fields{"addr": listener.Addr().String()})
	return nil
}

// Running reports whether the listener is bound.
func (b *BridgeServer) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener != nil
}

// Addr returns the bound listener address, or "" when not running.
func (b *BridgeServer) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

func (b *BridgeServer) acceptLoop(listener net.Listener) {
	defer b.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			b.mu.Lock()
			closed := b.closed || b.listener != listener
			b.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			b.log.Warn("accept failed", logging.Fields{"error": err.Error()})
			continue
		}
		b.handleConn(conn)
	}
}

func (b *BridgeServer) handleConn(conn net.Conn) {
	if session, ok := b.manager.beginSocketSession(conn); ok {
		session.Start()
		return
	}
	b.enqueue(conn)
}

// enqueue parks a connection at the back of the capacity queue, tells the
// client once, and starts the disconnect monitor.
func (b *BridgeServer) enqueue(conn net.Conn) {
	qc := &queuedConn{conn: conn, since: time.Now(), done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.queue = append(b.queue, qc)
	cap := b.manager.effectiveCap()
	b.mu.Unlock()

	b.writeQueuedNotice(conn, cap)

	b.wg.Add(1)
	go b.monitorQueued(qc)

	b.log.Info("connection queued at capacity", logging.Fields{"remote": conn.RemoteAddr().String(), "cap": cap})
}

func (b *BridgeServer) writeQueuedNotice(conn net.Conn, cap int) {
	frame := shared.JSONRPCNotification{
		JSONRPC: shared.JSONRPCVersion,
		Method:  shared.MethodStatusNotification,
		Params: shared.StatusParams{
			Status:  "queued",
			Cap:     cap,
			Message: fmt.Sprintf("bridge is at capacity (%d sessions); connection queued until a slot frees", cap),
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(queuedNoticeTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		b.log.Debug("queued notice write failed", logging.Fields{"error": err.Error()})
	}
	_ = conn.SetWriteDeadline(time.Time{})
}

// monitorQueued performs a single blocking one-byte read on a queued conn.
// A read error before promotion means the client gave up: drop it from the
// queue with no other effect. A data byte is stashed for replay. Promotion
// wakes a still-blocked monitor with a read deadline.
func (b *BridgeServer) monitorQueued(qc *queuedConn) {
	defer b.wg.Done()
	defer close(qc.done)

	buf := make([]byte, 1)
	n, err := qc.conn.Read(buf)

	b.mu.Lock()
	if n > 0 {
		qc.prefix = append(qc.prefix, buf[:n]...)
	}
	if qc.promoted {
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.removeQueuedLocked(qc)
		b.mu.Unlock()
		_ = qc.conn.Close()
		b.log.Debug("queued connection dropped before admission", nil)
		return
	}
	b.mu.Unlock()

	// The client started sending while queued. The byte is stashed; further
	// input stays buffered in the kernel until promotion hands the conn to a
	// session reader.
}

func (b *BridgeServer) removeQueuedLocked(target *queuedConn) {
	for i, qc := range b.queue {
		if qc == target {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return
		}
	}
}

// promote drains the queue oldest-first for as long as admission succeeds.
// The manager calls it whenever a slot frees.
func (b *BridgeServer) promote() {
	for {
		b.mu.Lock()
		if b.closed || len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		qc := b.queue[0]
		b.queue = b.queue[1:]
		qc.promoted = true
		b.mu.Unlock()

		// Wake the monitor if it is still blocked in Read, then wait for it
		// to exit so the session reader owns the conn exclusively.
		_ = qc.conn.SetReadDeadline(time.Now())
		<-qc.done
		_ = qc.conn.SetReadDeadline(time.Time{})

		conn := promotedConn(qc)
		session, ok := b.manager.beginSocketSession(conn)
		if !ok {
			// The freed slot was taken in the meantime; put the conn back at
			// the head and retry on the next release.
			b.requeueFront(qc)
			return
		}
		session.Start()
		b.log.Info("queued connection promoted", logging.Fields{"waited": time.Since(qc.since).String()})
	}
}

func (b *BridgeServer) requeueFront(qc *queuedConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = qc.conn.Close()
		return
	}
	qc.promoted = false
	qc.done = make(chan struct{})
	b.queue = append([]*queuedConn{qc}, b.queue...)
	b.wg.Add(1)
	go b.monitorQueued(qc)
}

// promotedConn returns the conn to hand to a session, replaying any byte the
// monitor absorbed while the conn was queued.
func promotedConn(qc *queuedConn) io.ReadWriteCloser {
	if len(qc.prefix) == 0 {
		return qc.conn
	}
	return &prefixedConn{
		reader: io.MultiReader(bytes.NewReader(qc.prefix), qc.conn),
		conn:   qc.conn,
	}
}

// prefixedConn replays stashed bytes before reading from the conn proper.
type prefixedConn struct {
	reader io.Reader
	conn   net.Conn
}

func (p *prefixedConn) Read(buf []byte) (int, error)  { return p.reader.Read(buf) }
func (p *prefixedConn) Write(buf []byte) (int, error) { return p.conn.Write(buf) }
func (p *prefixedConn) Close() error                  { return p.conn.Close() }

// QueueLen returns the number of connections waiting for admission.
func (b *BridgeServer) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Rebind moves the listener to a new endpoint without disturbing either the
// active sessions or the queue.
func (b *BridgeServer) Rebind(host string, port int) error {
	b.mu.Lock()
	listener := b.listener
	b.listener = nil
	b.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	return b.Start(host, port)
}

// Stop closes the listener and drops every queued connection. Active
// sessions are owned by the manager and shut down there.
func (b *BridgeServer) Stop() {
	b.mu.Lock()
	if b.closed && b.listener == nil {
		b.mu.Unlock()
		return
	}
	b.closed = true
	listener := b.listener
	b.listener = nil
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, qc := range queued {
		_ = qc.conn.Close()
	}
	b.wg.Wait()
	b.log.Info("bridge stopped", nil)
}
