package comm

import (
	"errors"

	"github.com/golang/glog"
)

// DefaultBufferCap is the reference receive buffer capacity.
const DefaultBufferCap = 256

// BufferStats counts what happened to bytes passing through a RecvBuffer.
type BufferStats struct {
	Appended  uint64
	Rejected  uint64
	Extracted uint64
	Discarded uint64
	Malformed uint64
}

// RecvBuffer reassembles packets from fragmented transport reads.
// It never grows beyond the capacity given at creation. Appending
// bytes that don't fit is rejected as a whole, so an existing partial
// packet is never corrupted.
type RecvBuffer struct {
	buf   []byte
	n     int
	stats BufferStats
}

// NewRecvBuffer creates a RecvBuffer. Capacity is raised to MaxPacketLen
// if smaller, otherwise the longest packet could never complete.
func NewRecvBuffer(capacity int) *RecvBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	if capacity < MaxPacketLen {
		capacity = MaxPacketLen
	}
	return &RecvBuffer{buf: make([]byte, capacity)}
}

// Cap returns the fixed capacity.
func (b *RecvBuffer) Cap() int {
	return len(b.buf)
}

// Len returns the number of buffered bytes.
func (b *RecvBuffer) Len() int {
	return b.n
}

// Free returns the number of bytes that can still be appended.
func (b *RecvBuffer) Free() int {
	return len(b.buf) - b.n
}

// Bytes returns the buffered bytes. The slice is only valid until the
// next mutation.
func (b *RecvBuffer) Bytes() []byte {
	return b.buf[:b.n]
}

// Stats returns counters.
func (b *RecvBuffer) Stats() BufferStats {
	return b.stats
}

// Append copies p onto the tail. If p doesn't fit, nothing is copied
// and ErrOverflow is returned.
func (b *RecvBuffer) Append(p []byte) error {
	if len(p) > b.Free() {
		b.stats.Rejected += uint64(len(p))
		glog.Warningf("recv buffer overflow: %d bytes rejected, %d/%d in use", len(p), b.n, len(b.buf))
		return ErrOverflow
	}
	b.n += copy(b.buf[b.n:], p)
	b.stats.Appended += uint64(len(p))
	return nil
}

// TryExtractPacket decodes a packet from the head of the buffer.
// It returns nil, nil when more bytes are needed. On a malformed header
// the whole buffer is discarded and the *MalformedError is returned.
func (b *RecvBuffer) TryExtractPacket() (*Packet, error) {
	pkt, consumed, err := ParsePacket(b.buf[:b.n])
	switch {
	case err == nil:
		b.consume(consumed)
		b.stats.Extracted++
		return pkt, nil
	case errors.Is(err, ErrIncomplete):
		return nil, nil
	default:
		b.stats.Malformed++
		glog.V(2).Infof("recv buffer cleared: %v", err)
		b.Reset()
		return nil, err
	}
}

// Reset discards all buffered bytes.
func (b *RecvBuffer) Reset() {
	b.stats.Discarded += uint64(b.n)
	b.n = 0
}

func (b *RecvBuffer) consume(n int) {
	b.n = copy(b.buf, b.buf[n:b.n])
}
