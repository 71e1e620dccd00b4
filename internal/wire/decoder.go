// Package wire owns the line-framing primitives.
//
// Ownership boundary:
// - incremental delimiter-scan decoding
// - partial-frame buffering across reads
// - frame size enforcement
package wire

import (
	"bytes"
	"errors"
)

const (
	// DefaultMaxMessageSize caps one frame's byte length.
	DefaultMaxMessageSize = 1024
	// DefaultDelimiter terminates one frame on the wire.
	DefaultDelimiter byte = '\n'
)

var (
	ErrMessageTooLarge = errors.New("wire: frame exceeds max message size")
	ErrInvalidLimit    = errors.New("wire: max message size must be positive")
)

// Decoder turns a raw byte stream into delimiter-terminated frames.
// It keeps the tail of the stream between Consume calls, so a frame may
// arrive split across any number of reads. A size violation is terminal:
// every call after it reports ErrMessageTooLarge.
type Decoder struct {
	buf    []byte
	max    int
	delim  byte
	failed bool
}

// NewDecoder builds a decoder with an explicit frame cap and delimiter byte.
func NewDecoder(maxMessageSize int, delim byte) (*Decoder, error) {
	if maxMessageSize <= 0 {
		return nil, ErrInvalidLimit
	}
	return &Decoder{max: maxMessageSize, delim: delim}, nil
}

// NewDefaultDecoder builds a newline decoder with the default frame cap.
func NewDefaultDecoder() *Decoder {
	return &Decoder{max: DefaultMaxMessageSize, delim: DefaultDelimiter}
}

// Consume appends one raw chunk and scans for the next complete frame.
// It returns (frame, true, nil) when a delimiter is seen; the delimiter is
// not part of the frame and any bytes after it stay buffered as the start
// of the next frame. It returns (nil, false, nil) when more input is
// needed, and (nil, false, ErrMessageTooLarge) when the buffered partial
// frame would exceed the cap.
func (d *Decoder) Consume(chunk []byte) ([]byte, bool, error) {
	if err := d.Append(chunk); err != nil {
		return nil, false, err
	}
	return d.Next()
}

// Append buffers one raw chunk without emitting a frame. Callers that may
// receive several frames per read use Append and then drain with Next.
func (d *Decoder) Append(chunk []byte) error {
	if d.failed {
		return ErrMessageTooLarge
	}
	// Capacity is checked before the append: only a chunk with no
	// delimiter extends the current partial frame.
	if bytes.IndexByte(chunk, d.delim) < 0 && len(d.buf)+len(chunk) > d.max {
		d.failed = true
		return ErrMessageTooLarge
	}
	d.buf = append(d.buf, chunk...)
	return nil
}

// Next emits the next already-buffered complete frame, if any. A chunk may
// carry several frames; callers drain them with Next before reading more
// bytes from the transport.
func (d *Decoder) Next() ([]byte, bool, error) {
	if d.failed {
		return nil, false, ErrMessageTooLarge
	}
	i := bytes.IndexByte(d.buf, d.delim)
	if i < 0 {
		if len(d.buf) > d.max {
			d.failed = true
			return nil, false, ErrMessageTooLarge
		}
		return nil, false, nil
	}
	frame := make([]byte, i)
	copy(frame, d.buf[:i])
	rest := d.buf[i+1:]
	d.buf = append(d.buf[:0:0], rest...)
	return frame, true, nil
}

// Buffered reports how many partial-frame bytes are currently retained.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Failed reports whether the decoder hit its size cap and shut down.
func (d *Decoder) Failed() bool {
	return d.failed
}
