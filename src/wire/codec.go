// Package wire implements the relay frame format.
//
// A frame is a MessagePack array whose first element is the variant tag:
//
//	Handshake  [0]
//	Text       [1, author str, body str]
//	File       [2, name str, size uint, data bin]
//
// Every variable-length field carries its own length, so a decoder finds the
// end of a frame without any outer framing.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/tinylib/msgp/msgp"
)

// DefaultMaxFieldSize bounds a single str or bin field.
const DefaultMaxFieldSize = 64 << 20

// ErrEndOfStream is returned when the stream closes cleanly on a frame boundary.
var ErrEndOfStream = errors.New("end of stream")

// DecodeError reports a malformed or truncated frame.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// arity is the array length each variant must be encoded with.
var arity = map[types.Kind]uint32{
	types.KindHandshake: 1,
	types.KindText:      3,
	types.KindFile:      4,
}

// Encode returns the frame for msg.
func Encode(msg types.Message) []byte {
	return Append(nil, msg)
}

// Append appends the frame for msg to b.
func Append(b []byte, msg types.Message) []byte {
	switch m := msg.(type) {
	case types.Text:
		b = msgp.AppendArrayHeader(b, arity[types.KindText])
		b = msgp.AppendUint8(b, uint8(types.KindText))
		b = msgp.AppendString(b, m.Author)
		b = msgp.AppendString(b, m.Body)
	case types.File:
		b = msgp.AppendArrayHeader(b, arity[types.KindFile])
		b = msgp.AppendUint8(b, uint8(types.KindFile))
		b = msgp.AppendString(b, m.Name)
		b = msgp.AppendUint64(b, m.Size)
		b = msgp.AppendBytes(b, m.Data)
	default:
		// Handshake and nil both go out as the payload-free variant.
		b = msgp.AppendArrayHeader(b, arity[types.KindHandshake])
		b = msgp.AppendUint8(b, uint8(types.KindHandshake))
	}
	return b
}

// Decoder reads consecutive frames from a byte stream. It buffers, so a
// stream must be read through a single Decoder.
type Decoder struct {
	r        *msgp.Reader
	maxField uint32
}

// NewDecoder creates a Decoder. A maxField of zero or less selects
// DefaultMaxFieldSize.
func NewDecoder(r io.Reader, maxField int) *Decoder {
	if maxField <= 0 {
		maxField = DefaultMaxFieldSize
	}
	return &Decoder{r: msgp.NewReader(r), maxField: uint32(maxField)}
}

// Decode reads exactly one frame. It returns ErrEndOfStream when the stream
// ends before the first byte of a frame and a *DecodeError for a truncated
// or malformed frame. Transport errors from the underlying reader are
// returned as they are.
func (d *Decoder) Decode() (types.Message, error) {
	if _, err := d.r.NextType(); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrEndOfStream
		case isFormatError(err):
			return nil, &DecodeError{Reason: "header", Err: err}
		}
		return nil, err
	}

	n, err := d.r.ReadArrayHeader()
	if err != nil {
		return nil, fieldError("header", err)
	}
	if n == 0 {
		return nil, &DecodeError{Reason: "empty frame"}
	}
	tag, err := d.r.ReadUint64()
	if err != nil {
		return nil, fieldError("tag", err)
	}
	kind := types.Kind(tag)
	want, ok := arity[kind]
	if !ok || tag > 0xff {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown variant tag %d", tag)}
	}
	if n != want {
		return nil, &DecodeError{Reason: fmt.Sprintf("%s frame has %d fields, want %d", kind, n, want)}
	}

	switch kind {
	case types.KindText:
		author, err := d.readString("author")
		if err != nil {
			return nil, err
		}
		body, err := d.readString("body")
		if err != nil {
			return nil, err
		}
		return types.Text{Author: author, Body: body}, nil

	case types.KindFile:
		name, err := d.readString("name")
		if err != nil {
			return nil, err
		}
		size, err := d.r.ReadUint64()
		if err != nil {
			return nil, fieldError("size", err)
		}
		data, err := d.readBytes("data")
		if err != nil {
			return nil, err
		}
		return types.File{Name: name, Size: size, Data: data}, nil
	}
	return types.Handshake{}, nil
}

func (d *Decoder) readString(field string) (string, error) {
	sz, err := d.r.ReadStringHeader()
	if err != nil {
		return "", fieldError(field, err)
	}
	buf, err := d.readN(field, sz)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *Decoder) readBytes(field string) ([]byte, error) {
	sz, err := d.r.ReadBytesHeader()
	if err != nil {
		return nil, fieldError(field, err)
	}
	return d.readN(field, sz)
}

// readN reads a length-prefixed body into freshly allocated memory.
func (d *Decoder) readN(field string, sz uint32) ([]byte, error) {
	if sz > d.maxField {
		return nil, &DecodeError{Reason: fmt.Sprintf("%s length %d exceeds limit %d", field, sz, d.maxField)}
	}
	buf := make([]byte, sz)
	if sz == 0 {
		return buf, nil
	}
	if _, err := d.r.ReadFull(buf); err != nil {
		return nil, fieldError(field, err)
	}
	return buf, nil
}

// fieldError classifies a failure inside a frame. End of stream means the
// frame was truncated; msgp errors mean it was malformed.
func fieldError(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &DecodeError{Reason: field, Err: io.ErrUnexpectedEOF}
	}
	if isFormatError(err) {
		return &DecodeError{Reason: field, Err: err}
	}
	return fmt.Errorf("read %s: %w", field, err)
}

func isFormatError(err error) bool {
	var me msgp.Error
	return errors.As(err, &me)
}

// DecodeFrame decodes b, which must hold exactly one frame.
func DecodeFrame(b []byte, maxField int) (types.Message, error) {
	d := NewDecoder(bytes.NewReader(b), maxField)
	msg, err := d.Decode()
	if errors.Is(err, ErrEndOfStream) {
		return nil, &DecodeError{Reason: "empty input", Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, err
	}
	if _, err := d.Decode(); !errors.Is(err, ErrEndOfStream) {
		return nil, &DecodeError{Reason: "trailing bytes after frame"}
	}
	return msg, nil
}
