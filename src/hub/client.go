package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/orchestra-mcp/relay/src/wire"
)

// ErrClosed is returned by Send after the client has been closed.
var ErrClosed = errors.New("connection closed")

// Client is the relay's handle on one peer. The read side belongs to the
// goroutine running ReadPump; the write side is shared and serialized.
type Client struct {
	ID           string
	conn         types.Conn
	hub          *Hub
	transport    string
	connectedAt  time.Time
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// NewClient wraps conn for use with h. transport is informational ("tcp", "ws").
func NewClient(id string, conn types.Conn, h *Hub, transport string) *Client {
	return &Client{
		ID:           id,
		conn:         conn,
		hub:          h,
		transport:    transport,
		connectedAt:  time.Now(),
		writeTimeout: h.cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		RemoteAddr:  c.conn.RemoteAddr(),
		Transport:   c.transport,
		ConnectedAt: c.connectedAt,
	}
}

// Send writes one encoded frame under the write lock, bounded by the
// hub's write timeout.
func (c *Client) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteFrame(frame)
}

// SendMessage encodes msg and sends it.
func (c *Client) SendMessage(msg types.Message) error {
	return c.Send(wire.Encode(msg))
}

// Receive blocks until the next message arrives. Any error is fatal for
// the connection.
func (c *Client) Receive() (types.Message, error) {
	return c.conn.ReadMessage()
}

// ReadPump reads messages from the peer and queues them on the hub until
// the connection fails, then removes the client.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	for {
		msg, err := c.Receive()
		if err != nil {
			c.hub.readFailed(c, err)
			return
		}
		if !c.hub.Enqueue(c, msg) {
			return
		}
	}
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

// Close shuts the connection. It does not wait for an in-flight Send,
// which fails once the socket is gone. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
