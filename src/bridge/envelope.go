package bridge

import (
	"errors"
	"fmt"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/orchestra-mcp/relay/src/wire"
	"github.com/tinylib/msgp/msgp"
)

var errBadEnvelope = errors.New("bridge: malformed envelope")

// An envelope is a MessagePack array [instance_id str, frame bin] where
// frame is a wire-encoded message.
func appendEnvelope(b []byte, instanceID string, msg types.Message) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendString(b, instanceID)
	return msgp.AppendBytes(b, wire.Encode(msg))
}

func decodeEnvelope(payload []byte, maxField int) (string, types.Message, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errBadEnvelope, err)
	}
	if n != 2 {
		return "", nil, fmt.Errorf("%w: %d elements", errBadEnvelope, n)
	}
	id, rest, err := msgp.ReadStringBytes(rest)
	if err != nil {
		return "", nil, fmt.Errorf("%w: instance id: %v", errBadEnvelope, err)
	}
	frame, rest, err := msgp.ReadBytesZC(rest)
	if err != nil {
		return "", nil, fmt.Errorf("%w: frame: %v", errBadEnvelope, err)
	}
	if len(rest) != 0 {
		return "", nil, fmt.Errorf("%w: %d trailing bytes", errBadEnvelope, len(rest))
	}
	msg, err := wire.DecodeFrame(frame, maxField)
	if err != nil {
		return id, nil, err
	}
	return id, msg, nil
}
