package hub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/orchestra-mcp/relay/src/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn without a socket.
type mockConn struct {
	mu       sync.Mutex
	frames   [][]byte
	deadline time.Time
	writeErr error
	stall    bool

	readCh   chan types.Message
	errCh    chan error
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Message, 16),
		errCh:    make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (types.Message, error) {
	select {
	case msg := <-m.readCh:
		return msg, nil
	case err := <-m.errCh:
		return nil, err
	case <-m.closedCh:
		return nil, wire.ErrEndOfStream
	}
}

func (m *mockConn) WriteFrame(frame []byte) error {
	m.mu.Lock()
	stall, deadline, werr := m.stall, m.deadline, m.writeErr
	m.mu.Unlock()

	if stall {
		select {
		case <-time.After(time.Until(deadline)):
			return os.ErrDeadlineExceeded
		case <-m.closedCh:
			return errors.New("use of closed connection")
		}
	}
	if werr != nil {
		return werr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), frame...)
	m.frames = append(m.frames, cp)
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *mockConn) RemoteAddr() string { return "mock" }

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) messages(t *testing.T) []types.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Message, 0, len(m.frames))
	for _, f := range m.frames {
		msg, err := wire.DecodeFrame(f, 0)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (m *mockConn) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := New(cfg, NewRegistry(), zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func registerClient(t *testing.T, h *Hub, id string) (*Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	c := NewClient(id, conn, h, "mock")
	require.NoError(t, h.Register(c))
	return c, conn
}

func TestFanOutIncludesSender(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	sender, senderConn := registerClient(t, h, "c1")
	_, conn2 := registerClient(t, h, "c2")
	_, conn3 := registerClient(t, h, "c3")

	msg := types.Text{Author: "alice", Body: "hi"}
	require.True(t, h.Enqueue(sender, msg))

	for _, c := range []*mockConn{senderConn, conn2, conn3} {
		require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []types.Message{msg}, c.messages(t))
	}
}

func TestFanOutPreservesSenderOrder(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	sender, _ := registerClient(t, h, "sender")
	_, peer := registerClient(t, h, "peer")

	var want []types.Message
	for i := 0; i < 50; i++ {
		msg := types.Text{Author: "alice", Body: fmt.Sprintf("line %d", i)}
		want = append(want, msg)
		require.True(t, h.Enqueue(sender, msg))
	}

	require.Eventually(t, func() bool { return peer.count() == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, peer.messages(t))
}

func TestExcludeSender(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeSender = true
	h := newTestHub(t, cfg)
	sender, senderConn := registerClient(t, h, "c1")
	_, peer := registerClient(t, h, "c2")

	require.True(t, h.Enqueue(sender, types.Text{Author: "a", Body: "b"}))

	require.Eventually(t, func() bool { return peer.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, senderConn.count())
}

func TestFailedSendIsolated(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	sender, _ := registerClient(t, h, "sender")
	broken, brokenConn := registerClient(t, h, "broken")
	_, ok1 := registerClient(t, h, "ok1")
	_, ok2 := registerClient(t, h, "ok2")

	var disconnected atomic.Value
	h.OnDisconnection(func(id string) { disconnected.Store(id) })

	brokenConn.mu.Lock()
	brokenConn.writeErr = errors.New("broken pipe")
	brokenConn.mu.Unlock()

	first := types.Text{Author: "a", Body: "first"}
	second := types.Text{Author: "a", Body: "second"}
	require.True(t, h.Enqueue(sender, first))
	require.True(t, h.Enqueue(sender, second))

	for _, c := range []*mockConn{ok1, ok2} {
		require.Eventually(t, func() bool { return c.count() == 2 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []types.Message{first, second}, c.messages(t))
	}

	_, still := h.Registry().Get(broken.ID)
	assert.False(t, still)
	assert.True(t, brokenConn.isClosed())
	assert.Equal(t, "broken", disconnected.Load())

	stats := h.Stats()
	assert.Equal(t, int64(1), stats.SendFailures, "broken client must be pruned before the second broadcast")
	assert.Equal(t, int64(1), stats.ClientsDropped)
	assert.Equal(t, 3, stats.Clients)
}

func TestStalledPeerDoesNotBlockOthers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteTimeout = 100 * time.Millisecond
	h := newTestHub(t, cfg)

	sender, _ := registerClient(t, h, "sender")
	stalled, stalledConn := registerClient(t, h, "stalled")
	_, fast := registerClient(t, h, "fast")

	stalledConn.mu.Lock()
	stalledConn.stall = true
	stalledConn.mu.Unlock()

	start := time.Now()
	require.True(t, h.Enqueue(sender, types.Text{Author: "a", Body: "1"}))
	require.True(t, h.Enqueue(sender, types.Text{Author: "a", Body: "2"}))

	require.Eventually(t, func() bool { return fast.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)

	require.Eventually(t, func() bool {
		_, ok := h.Registry().Get(stalled.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueBackpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	h := New(cfg, NewRegistry(), zerolog.Nop())
	t.Cleanup(h.Stop)

	sender, _ := registerClient(t, h, "sender")
	_, peer := registerClient(t, h, "peer")

	require.True(t, h.Enqueue(sender, types.Text{Body: "1"}))

	unblocked := make(chan bool)
	go func() { unblocked <- h.Enqueue(sender, types.Text{Body: "2"}) }()

	select {
	case <-unblocked:
		t.Fatal("enqueue on a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	go h.Run()

	select {
	case ok := <-unblocked:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume after the router drained")
	}
	require.Eventually(t, func() bool { return peer.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEnqueueUnblocksOnStopAndClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	h := New(cfg, NewRegistry(), zerolog.Nop())

	c, _ := registerClient(t, h, "c")
	require.True(t, h.Enqueue(c, types.Handshake{}))

	res := make(chan bool)
	go func() { res <- h.Enqueue(c, types.Handshake{}) }()
	c.Close()
	assert.False(t, <-res)

	h.Stop()
	other, _ := registerClient(t, h, "other")
	assert.False(t, h.Enqueue(other, types.Handshake{}))
	assert.ErrorIs(t, h.Publish(context.Background(), types.Handshake{}), ErrStopped)
}

func TestReadPumpRelaysAndDeregisters(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	reader, readerConn := registerClient(t, h, "reader")
	_, peer := registerClient(t, h, "peer")

	done := make(chan struct{})
	go func() {
		reader.ReadPump()
		close(done)
	}()

	msg := types.File{Name: "a.txt", Size: 3, Data: []byte("hi!")}
	readerConn.readCh <- msg
	require.Eventually(t, func() bool { return peer.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.Message{msg}, peer.messages(t))

	readerConn.errCh <- &wire.DecodeError{Reason: "garbage"}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}

	assert.True(t, readerConn.isClosed())
	assert.Equal(t, 1, h.ClientCount())
	assert.False(t, peer.isClosed())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	c, conn := registerClient(t, h, "c")

	var calls atomic.Int32
	h.OnDisconnection(func(string) { calls.Add(1) })

	h.Unregister(c)
	h.Unregister(c)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, c.Send([]byte{0x91, 0x00}), ErrClosed)
}

func TestSendToClient(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	_, conn := registerClient(t, h, "target")

	msg := types.Text{Author: "relay", Body: "direct"}
	require.NoError(t, h.SendToClient("target", msg))
	assert.Equal(t, []types.Message{msg}, conn.messages(t))

	assert.ErrorIs(t, h.SendToClient("ghost", msg), ErrUnknownClient)
}

func TestConnectionCallbacks(t *testing.T) {
	h := newTestHub(t, DefaultConfig())

	var connected, disconnected atomic.Value
	h.OnConnection(func(id string) { connected.Store(id) })
	h.OnDisconnection(func(id string) { disconnected.Store(id) })

	c, _ := registerClient(t, h, "cb-client")
	assert.Equal(t, "cb-client", connected.Load())

	h.Unregister(c)
	assert.Equal(t, "cb-client", disconnected.Load())
}

func TestClientInfo(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	_, _ = registerClient(t, h, "info-client")

	info := h.ClientInfo("info-client")
	require.NotNil(t, info)
	assert.Equal(t, "info-client", info.ID)
	assert.Equal(t, "mock", info.Transport)
	assert.Nil(t, h.ClientInfo("missing"))
}

// fakeBridge records published messages.
type fakeBridge struct {
	mu        sync.Mutex
	published []types.Message
}

func (f *fakeBridge) Publish(msg types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeBridge) Available() bool { return true }

func (f *fakeBridge) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestBridgePublishAndLocalDelivery(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	b := &fakeBridge{}
	h.SetBridge(b)

	sender, _ := registerClient(t, h, "sender")
	_, peer := registerClient(t, h, "peer")

	require.True(t, h.Enqueue(sender, types.Text{Author: "a", Body: "local"}))
	h.BroadcastToLocal(types.Text{Author: "b", Body: "remote"})

	require.Eventually(t, func() bool { return peer.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, b.count(), "bridged messages must not be re-published")
}

func TestDisconnectAll(t *testing.T) {
	h := newTestHub(t, DefaultConfig())
	_, c1 := registerClient(t, h, "c1")
	_, c2 := registerClient(t, h, "c2")

	h.DisconnectAll()
	assert.Zero(t, h.ClientCount())
	assert.True(t, c1.isClosed())
	assert.True(t, c2.isClosed())
}

func TestReadFailedClassification(t *testing.T) {
	var buf bytes.Buffer
	h := New(DefaultConfig(), NewRegistry(), zerolog.New(&buf).Level(zerolog.DebugLevel))

	closed := NewClient("closed", newMockConn(), h, "tcp")
	closed.Close()
	h.readFailed(closed, fmt.Errorf("read header: %w", errors.New("use of closed network connection")))
	assert.Empty(t, buf.String())

	open := NewClient("open", newMockConn(), h, "tcp")
	h.readFailed(open, errors.New("connection reset by peer"))
	assert.Contains(t, buf.String(), "read failed")
	assert.NotContains(t, buf.String(), "malformed frame")

	buf.Reset()
	h.readFailed(open, &wire.DecodeError{Reason: "tag"})
	assert.Contains(t, buf.String(), "malformed frame")
}
