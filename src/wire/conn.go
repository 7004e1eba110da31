package wire

import (
	"net"
	"time"

	"github.com/orchestra-mcp/relay/src/types"
)

// StreamConn adapts a stream socket to types.Conn. The decoder owns the
// read side; writes go straight to the socket.
type StreamConn struct {
	conn net.Conn
	dec  *Decoder
}

// NewStreamConn wraps conn. maxField bounds every decoded str/bin field.
func NewStreamConn(conn net.Conn, maxField int) *StreamConn {
	return &StreamConn{conn: conn, dec: NewDecoder(conn, maxField)}
}

// ReadMessage blocks until one full frame has been decoded.
func (s *StreamConn) ReadMessage() (types.Message, error) {
	return s.dec.Decode()
}

// WriteFrame writes the whole frame in a single call.
func (s *StreamConn) WriteFrame(frame []byte) error {
	_, err := s.conn.Write(frame)
	return err
}

func (s *StreamConn) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }
func (s *StreamConn) RemoteAddr() string                 { return s.conn.RemoteAddr().String() }
func (s *StreamConn) Close() error                       { return s.conn.Close() }
