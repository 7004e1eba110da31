package gateway

import (
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/relay/src/types"
	"github.com/orchestra-mcp/relay/src/wire"
)

// wsConn adapts a WebSocket to types.Conn. Each binary message carries
// exactly one frame.
type wsConn struct {
	conn     *websocket.Conn
	maxField int
}

func newWSConn(conn *websocket.Conn, maxField int) *wsConn {
	if maxField <= 0 {
		maxField = wire.DefaultMaxFieldSize
	}
	// A File frame holds two bounded fields plus a few header bytes.
	conn.SetReadLimit(int64(maxField)*2 + 64)
	return &wsConn{conn: conn, maxField: maxField}
}

func (w *wsConn) ReadMessage() (types.Message, error) {
	mt, data, err := w.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, wire.ErrEndOfStream
		}
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, &wire.DecodeError{Reason: "websocket message is not binary"}
	}
	return wire.DecodeFrame(data, w.maxField)
}

func (w *wsConn) WriteFrame(frame []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }
func (w *wsConn) RemoteAddr() string                 { return w.conn.RemoteAddr().String() }
func (w *wsConn) Close() error                       { return w.conn.Close() }
