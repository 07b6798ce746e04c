package server

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/cloudbridge/internal/domain/shared"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/config"
)

func socketSettings(sessionCap int) config.Settings {
	return config.Settings{
		Enabled:         true,
		Host:            "127.0.0.1",
		Port:            0,
		SessionCap:      sessionCap,
		LocalSessionCap: sessionCap,
	}
}

func startTestBridge(t *testing.T, sessionCap int) (*SessionManager, string) {
	t.Helper()
	mgr := newTestManager(t, socketSettings(sessionCap))
	require.NoError(t, mgr.StartBridge())
	addr := mgr.bridge.Addr()
	require.NotEmpty(t, addr)
	return mgr, addr
}

func dialBridge(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, testWait)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(testWait)))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeLineTo(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func readFrame(t *testing.T, reader *bufio.Reader) map[string]json.RawMessage {
	t.Helper()
	raw, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestBridgeSocketRoundTrip(t *testing.T) {
	_, addr := startTestBridge(t, 2)
	conn := dialBridge(t, addr)
	reader := bufio.NewReader(conn)

	writeLineTo(t, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	frame := readFrame(t, reader)

	var result shared.InitializeResult
	require.NoError(t, json.Unmarshal(frame["result"], &result))
	assert.Equal(t, shared.ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "cloudbridge-test", result.ServerInfo.Name)
}

func TestBridgeSharesCapWithLocalSessions(t *testing.T) {
	mgr, addr := startTestBridge(t, 1)

	local := waitSession(t, mgr.StartSession())

	// The socket connection cannot be admitted while the local session
	// holds the only slot; it gets the queued notice instead.
	conn := dialBridge(t, addr)
	reader := bufio.NewReader(conn)
	frame := readFrame(t, reader)

	var method string
	require.NoError(t, json.Unmarshal(frame["method"], &method))
	assert.Equal(t, shared.MethodStatusNotification, method)

	var params shared.StatusParams
	require.NoError(t, json.Unmarshal(frame["params"], &params))
	assert.Equal(t, "queued", params.Status)
	assert.Equal(t, 1, params.Cap)

	// Freeing the local slot promotes the socket.
	require.NoError(t, local.Close())

	writeLineTo(t, conn, `{"jsonrpc":"2.0","id":2,"method":"initialize"}`)
	response := readFrame(t, reader)
	assert.Contains(t, response, "result")
}

func TestQueuedSocketRequestSentEarlyIsServedAfterPromotion(t *testing.T) {
	mgr, addr := startTestBridge(t, 1)

	first := dialBridge(t, addr)
	firstReader := bufio.NewReader(first)
	writeLineTo(t, first, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	readFrame(t, firstReader)

	second := dialBridge(t, addr)
	secondReader := bufio.NewReader(second)
	readFrame(t, secondReader) // queued notice

	// Send the request while still queued; the bytes must survive intact
	// through promotion.
	writeLineTo(t, second, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.NoError(t, first.Close())

	frame := readFrame(t, secondReader)
	var result shared.ListToolsResult
	require.NoError(t, json.Unmarshal(frame["result"], &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "cloud", result.Tools[0].Name)
	assert.Equal(t, 1, mgr.ActiveSessions())
}

func TestQueuedSocketDisconnectLeavesNoTrace(t *testing.T) {
	mgr, addr := startTestBridge(t, 1)

	active := dialBridge(t, addr)
	activeReader := bufio.NewReader(active)
	writeLineTo(t, active, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	readFrame(t, activeReader)

	queued := dialBridge(t, addr)
	queuedReader := bufio.NewReader(queued)
	readFrame(t, queuedReader) // queued notice
	require.NoError(t, queued.Close())

	require.Eventually(t, func() bool {
		return mgr.bridge.QueueLen() == 0
	}, testWait, 10*time.Millisecond)

	// The freed queue position must not leak a session slot.
	require.NoError(t, active.Close())
	require.Eventually(t, func() bool {
		return mgr.ActiveSessions() == 0
	}, testWait, 10*time.Millisecond)

	replacement := dialBridge(t, addr)
	replacementReader := bufio.NewReader(replacement)
	writeLineTo(t, replacement, `{"jsonrpc":"2.0","id":3,"method":"initialize"}`)
	frame := readFrame(t, replacementReader)
	assert.Contains(t, frame, "result")
}

func TestBridgeQueuePromotesInArrivalOrder(t *testing.T) {
	mgr, addr := startTestBridge(t, 1)

	active := dialBridge(t, addr)
	activeReader := bufio.NewReader(active)
	writeLineTo(t, active, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	readFrame(t, activeReader)

	older := dialBridge(t, addr)
	olderReader := bufio.NewReader(older)
	readFrame(t, olderReader)

	require.Eventually(t, func() bool {
		return mgr.bridge.QueueLen() == 1
	}, testWait, 10*time.Millisecond)

	newer := dialBridge(t, addr)
	newerReader := bufio.NewReader(newer)
	readFrame(t, newerReader)

	require.NoError(t, active.Close())

	// Only the older connection is promoted into the freed slot.
	writeLineTo(t, older, `{"jsonrpc":"2.0","id":2,"method":"initialize"}`)
	frame := readFrame(t, olderReader)
	assert.Contains(t, frame, "result")
	assert.Equal(t, 1, mgr.bridge.QueueLen())
}

func TestBridgeRebindMovesListener(t *testing.T) {
	mgr, oldAddr := startTestBridge(t, 2)

	conn := dialBridge(t, oldAddr)
	reader := bufio.NewReader(conn)
	writeLineTo(t, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	readFrame(t, reader)

	require.NoError(t, mgr.bridge.Rebind("127.0.0.1", 0))
	newAddr := mgr.bridge.Addr()
	require.NotEmpty(t, newAddr)
	assert.NotEqual(t, oldAddr, newAddr)

	// Existing sessions survive the rebind.
	writeLineTo(t, conn, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	frame := readFrame(t, reader)
	assert.Contains(t, frame, "result")

	fresh := dialBridge(t, newAddr)
	freshReader := bufio.NewReader(fresh)
	writeLineTo(t, fresh, `{"jsonrpc":"2.0","id":3,"method":"initialize"}`)
	assert.Contains(t, readFrame(t, freshReader), "result")
}

func TestCheckStatusReportsReachableBridge(t *testing.T) {
	mgr, _ := startTestBridge(t, 2)

	status := mgr.CheckStatus()

	assert.True(t, status.Running)
	assert.True(t, status.Reachable)
	assert.Equal(t, 2, status.SessionCap)
	assert.Empty(t, status.Message)
}

func TestStopAllClosesSocketSessions(t *testing.T) {
	mgr, addr := startTestBridge(t, 2)

	conn := dialBridge(t, addr)
	reader := bufio.NewReader(conn)
	writeLineTo(t, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	readFrame(t, reader)

	mgr.StopAll()

	// The peer observes EOF once its session is torn down.
	_, err := reader.ReadBytes('\n')
	require.Error(t, err)
	assert.Equal(t, 0, mgr.ActiveSessions())
}
