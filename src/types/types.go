package types

import "time"

// Kind identifies a Message variant on the wire.
type Kind uint8

const (
	KindHandshake Kind = iota
	KindText
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindText:
		return "text"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Message is one unit of relay traffic. It is implemented by
// Handshake, Text and File only.
type Message interface {
	Kind() Kind
}

// Handshake is reserved for session negotiation and carries no payload.
type Handshake struct{}

// Text is a chat line. Author is set by the sending client and is not verified.
type Text struct {
	Author string
	Body   string
}

// File is a complete file transfer. Size is informational and is not
// checked against len(Data).
type File struct {
	Name string
	Size uint64
	Data []byte
}

func (Handshake) Kind() Kind { return KindHandshake }
func (Text) Kind() Kind      { return KindText }
func (File) Kind() Kind      { return KindFile }

// ClientInfo holds metadata about a connected peer.
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	Transport   string    `json:"transport"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Conn abstracts one peer connection for both TCP and WebSocket.
// ReadMessage is only called from a single reader goroutine. WriteFrame
// calls are serialized by the caller. Close must be safe to call
// concurrently with an in-flight WriteFrame.
type Conn interface {
	ReadMessage() (Message, error)
	WriteFrame(frame []byte) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}
