package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete indicates more bytes are needed before a packet can be decoded.
	ErrIncomplete = errors.New("incomplete packet")
	// ErrMalformed matches any *MalformedError using errors.Is.
	ErrMalformed = errors.New("malformed packet")
	// ErrOverflow indicates appended bytes don't fit in the receive buffer.
	ErrOverflow = errors.New("receive buffer overflow")
	// ErrUnsupported indicates the transport can't deliver outbound data,
	// e.g. the notify path of a BLE stack is not operable.
	ErrUnsupported = errors.New("unsupported by transport")
	// ErrNotConnected indicates there's no active peer on the transport.
	ErrNotConnected = errors.New("not connected")
	// ErrLinkClosed indicates the peer closed the link.
	ErrLinkClosed = errors.New("link closed")
)

// MalformedError describes why a packet header or payload was rejected.
type MalformedError struct {
	ID     byte
	Reason string
}

// Error implements error.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed packet 0x%02x: %s", e.ID, e.Reason)
}

// Is makes errors.Is(err, ErrMalformed) true.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(id byte, format string, args ...interface{}) error {
	return &MalformedError{ID: id, Reason: fmt.Sprintf(format, args...)}
}
