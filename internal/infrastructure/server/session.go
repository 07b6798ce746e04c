package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/FreePeak/cloudbridge/internal/domain"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
)

// maxLineSize bounds a single request line. Oversized lines terminate the
// session rather than silently truncating a request.
const maxLineSize = 4 * 1024 * 1024

// Session is one admitted client attachment: a read loop over a
// newline-delimited byte stream, a per-session dispatcher, and a serialized
// writer. Both transports use the same type; only the underlying conn
// differs.
type Session struct {
	info       domain.SessionInfo
	conn       io.ReadWriteCloser
	dispatcher *Dispatcher
	log        *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	onClose   func(*Session)
}

// NewSession wraps a connection in a session. onClose fires exactly once,
// after the conn is closed, whether the peer disconnected or the session was
// torn down locally.
func NewSession(info domain.SessionInfo, conn io.ReadWriteCloser, dispatcher *Dispatcher, log *logging.Logger, onClose func(*Session)) *Session {
	if log == nil {
		log = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		info:       info,
		conn:       conn,
		dispatcher: dispatcher,
		log:        log.WithSession(info.ID),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		onClose:    onClose,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.info.ID }

// Kind returns the transport the session arrived on.
func (s *Session) Kind() domain.SessionKind { return s.info.Kind }

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start launches the read loop.
func (s *Session) Start() {
	go s.readLoop()
}

func (s *Session) readLoop() {
	defer s.Close()

	reader := bufio.NewReaderSize(s.conn, 64*1024)
	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF && s.ctx.Err() == nil {
				s.log.Debug("session read ended", logging.Fields{"error": err.Error()})
			}
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		response, ok := s.dispatcher.Dispatch(s.ctx, line)
		if !ok {
			continue
		}
		if err := s.writeLine(response); err != nil {
			s.log.Debug("session write failed", logging.Fields{"error": err.Error()})
			return
		}
	}
}

// writeLine appends the newline terminator and writes the full frame under
// the write lock, so concurrent writers never interleave partial frames.
func (s *Session) writeLine(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ctx.Err() != nil {
		return errors.New("session is closed")
	}
	if _, err := s.conn.Write(append(frame, '\n')); err != nil {
		return errors.Wrap(err, "failed to write response frame")
	}
	return nil
}

// Close tears the session down: in-flight tool calls are cancelled through
// the session context, the conn is closed, and the close hook fires.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.conn.Close(); err != nil {
			s.log.Debug("session conn close", logging.Fields{"error": err.Error()})
		}
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
		s.log.Debug("session closed", logging.Fields{"kind": string(s.info.Kind)})
	})
}

// readLine reads one newline-terminated line, tolerating a final line with
// no terminator, and enforcing maxLineSize.
func readLine(reader *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil || err == io.EOF {
			if len(line) == 0 && err == io.EOF {
				return nil, io.EOF
			}
			if err == io.EOF && len(bytes.TrimSpace(line)) == 0 {
				return nil, io.EOF
			}
			return line, nil
		}
		if err != bufio.ErrBufferFull {
			return nil, err
		}
		if len(line) > maxLineSize {
			return nil, errors.New("request line exceeds size limit")
		}
	}
}

// LocalSession is the handle returned to an in-process client: the admitted
// session plus the client half of the pipe it talks through. The client half
// speaks the same newline-delimited protocol socket clients do.
type LocalSession struct {
	session *Session
	client  net.Conn
}

// newLocalPair builds a pipe-backed session. The server half goes into the
// session; the caller reads and writes the returned client conn.
func newLocalPair(dispatcher *Dispatcher, log *logging.Logger, onClose func(*Session)) (*Session, *LocalSession) {
	serverConn, clientConn := net.Pipe()
	info := domain.NewSessionInfo(domain.SessionKindLocal)
	session := NewSession(info, serverConn, dispatcher, log, onClose)
	return session, &LocalSession{session: session, client: clientConn}
}

// ID returns the underlying session identifier.
func (l *LocalSession) ID() string { return l.session.ID() }

// Client returns the client half of the session pipe.
func (l *LocalSession) Client() net.Conn { return l.client }

// Done is closed when the underlying session has shut down.
func (l *LocalSession) Done() <-chan struct{} { return l.session.Done() }

// Close detaches the client, for example on a terminal interrupt. Closing
// either half ends the session.
func (l *LocalSession) Close() error {
	err := l.client.Close()
	l.session.Close()
	return err
}

// SessionPromise is the pending result of a session start request. When the
// bridge is at capacity the promise stays unresolved until a slot frees; a
// nil session with a nil error means the wait was cancelled by shutdown.
type SessionPromise struct {
	once sync.Once
	ch   chan *LocalSession
}

func newSessionPromise() *SessionPromise {
	return &SessionPromise{ch: make(chan *LocalSession, 1)}
}

func resolvedSessionPromise(local *LocalSession) *SessionPromise {
	p := newSessionPromise()
	p.resolve(local)
	return p
}

func (p *SessionPromise) resolve(local *LocalSession) {
	p.once.Do(func() {
		p.ch <- local
		close(p.ch)
	})
}

// Wait blocks until the session is admitted, the manager shuts down (nil,
// nil), or the context expires.
func (p *SessionPromise) Wait(ctx context.Context) (*LocalSession, error) {
	select {
	case local := <-p.ch:
		return local, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for session admission")
	}
}
