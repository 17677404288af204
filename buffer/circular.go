// Package buffer holds the fixed-capacity staging buffer of the portable pump.
package buffer

import (
	"errors"

	"github.com/gobwas/pool/pbytes"
)

var ErrInvalidSize = errors.New("buffer: invalid size")

// Circular is a fixed-capacity byte ring. Free space and buffered data are
// exposed as at most two contiguous spans so they can be handed to readv and
// writev directly. It is not safe for concurrent use.
type Circular struct {
	data []byte
	off  int // read cursor
	used int
}

// NewCircular allocates a ring of size bytes from the shared byte pool.
func NewCircular(size int) (*Circular, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &Circular{data: pbytes.GetLen(size)}, nil
}

// Release returns the storage to the pool. The ring must not be used after.
func (b *Circular) Release() {
	if b.data != nil {
		pbytes.Put(b.data)
		b.data = nil
		b.off = 0
		b.used = 0
	}
}

// Len returns the number of buffered bytes.
func (b *Circular) Len() int { return b.used }

// Cap returns the capacity of the ring.
func (b *Circular) Cap() int { return len(b.data) }

// Free returns the number of bytes that can still be written.
func (b *Circular) Free() int { return len(b.data) - b.used }

// Writable appends the free spans to vec[:0] and returns it. The result is
// empty when the ring is full.
func (b *Circular) Writable(vec [][]byte) [][]byte {
	vec = vec[:0]
	if b.used == len(b.data) {
		return vec
	}
	end := b.off + b.used
	if end >= len(b.data) {
		return append(vec, b.data[end-len(b.data):b.off])
	}
	vec = append(vec, b.data[end:])
	if b.off > 0 {
		vec = append(vec, b.data[:b.off])
	}
	return vec
}

// Readable appends the buffered spans, oldest first, to vec[:0] and returns it.
func (b *Circular) Readable(vec [][]byte) [][]byte {
	vec = vec[:0]
	if b.used == 0 {
		return vec
	}
	end := b.off + b.used
	if end <= len(b.data) {
		return append(vec, b.data[b.off:end])
	}
	return append(vec, b.data[b.off:], b.data[:end-len(b.data)])
}

// WriteFinish commits n bytes written into the spans returned by Writable.
func (b *Circular) WriteFinish(n int) {
	if n < 0 {
		panic("BUG: commit negative count")
	}
	if n > b.Free() {
		panic("BUG: commit more bytes than the buffer can hold")
	}
	b.used += n
}

// ReadFinish discards n bytes consumed from the spans returned by Readable.
func (b *Circular) ReadFinish(n int) {
	if n < 0 {
		panic("BUG: discard negative count")
	}
	if n > b.used {
		panic("BUG: discard more bytes than exist in the buffer")
	}
	if b.used -= n; b.used == 0 {
		b.off = 0
		return
	}
	if b.off += n; b.off >= len(b.data) {
		b.off -= len(b.data)
	}
}
