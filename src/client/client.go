// Package client is the peer side of the relay: it dials the server,
// encodes outgoing messages and decodes the broadcast stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/orchestra-mcp/relay/src/wire"
	"github.com/rs/zerolog"
)

// ErrConnectionClosed is returned by Next once the stream has ended and by
// sends after Close.
var ErrConnectionClosed = errors.New("connection closed")

// Option configures a Conn.
type Option func(*Conn)

// WithWriteTimeout bounds every send.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) { c.writeTimeout = d }
}

// WithMaxFieldSize bounds every decoded str/bin field.
func WithMaxFieldSize(n int) Option {
	return func(c *Conn) { c.maxField = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// Conn is one client session with the relay. Next must be called from a
// single goroutine; sends may be called from any goroutine.
type Conn struct {
	conn         net.Conn
	dec          *wire.Decoder
	writeTimeout time.Duration
	maxField     int
	logger       zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(nc, opts...), nil
}

// New wraps an established connection.
func New(nc net.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:         nc,
		writeTimeout: 30 * time.Second,
		logger:       zerolog.Nop(),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dec = wire.NewDecoder(nc, c.maxField)
	return c
}

// Send encodes msg and writes it as one frame.
func (c *Conn) Send(msg types.Message) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	if msg == nil {
		msg = types.Handshake{}
	}

	frame := wire.Encode(msg)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}

// SendText posts a chat line.
func (c *Conn) SendText(author, body string) error {
	return c.Send(types.Text{Author: author, Body: body})
}

// SendFile transfers a whole file.
func (c *Conn) SendFile(name string, data []byte) error {
	return c.Send(types.File{Name: name, Size: uint64(len(data)), Data: data})
}

// SendHandshake sends the reserved handshake message.
func (c *Conn) SendHandshake() error {
	return c.Send(types.Handshake{})
}

// Next blocks until the next broadcast message arrives. When the stream
// ends it returns ErrConnectionClosed; a malformed frame is returned as a
// *wire.DecodeError and the connection is closed.
func (c *Conn) Next() (types.Message, error) {
	msg, err := c.dec.Decode()
	if err == nil {
		return msg, nil
	}

	select {
	case <-c.closed:
		return nil, ErrConnectionClosed
	default:
	}

	var de *wire.DecodeError
	switch {
	case errors.Is(err, wire.ErrEndOfStream):
		c.logger.Debug().Msg("server closed the stream")
		c.Close()
		return nil, ErrConnectionClosed
	case errors.As(err, &de):
		c.logger.Warn().Err(err).Msg("malformed frame from server")
		c.Close()
		return nil, err
	default:
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// LocalAddr returns the local socket address.
func (c *Conn) LocalAddr() string { return c.conn.LocalAddr().String() }
