//go:build unix

package taskio

import (
	"fmt"
	"io"

	"github.com/wwqgtxx/fdsplice/buffer"
	"github.com/wwqgtxx/fdsplice/monitor"
)

// bufferPump stages bytes in a circular buffer: one readv into the free spans,
// then one writev from the buffered spans.
type bufferPump struct {
	buf       *buffer.Circular
	vec       [][]byte
	role      monitor.Role
	mon       *monitor.Monitor
	stopOnEOF bool
}

func newBufferPump(size int, role monitor.Role, mon *monitor.Monitor, stopOnEOF bool) (*bufferPump, error) {
	buf, err := buffer.NewCircular(size)
	if err != nil {
		return nil, fmt.Errorf("buffer pump: %w", err)
	}
	return &bufferPump{
		buf:       buf,
		vec:       make([][]byte, 0, 2),
		role:      role,
		mon:       mon,
		stopOnEOF: stopOnEOF,
	}, nil
}

// Pump reads then writes once each. A zero-byte read counts as idle unless
// stopOnEOF is set, in which case it ends the direction once the buffer has
// been flushed.
func (p *bufferPump) Pump(in, out int) (Status, error) {
	read := StatusIdle
	eof := false
	if vec := p.buf.Writable(p.vec); len(vec) > 0 {
		n, err := readv(in, vec)
		switch {
		case n > 0:
			p.buf.WriteFinish(n)
			read = StatusProgressed
		case err == nil:
			eof = p.stopOnEOF
		case isWouldBlock(err):
		default:
			return StatusFailed, err
		}
	}

	write := StatusIdle
	if vec := p.buf.Readable(p.vec); len(vec) > 0 {
		n, err := writev(out, vec)
		switch {
		case n > 0:
			p.buf.ReadFinish(n)
			p.mon.Record(n, p.role, monitor.OpWrite)
			write = StatusProgressed
		case err == nil:
			return StatusFailed, io.ErrShortWrite
		case isWouldBlock(err):
		default:
			return StatusFailed, err
		}
	}

	if eof && p.buf.Len() == 0 {
		return StatusFailed, io.EOF
	}
	return merge(read, write), nil
}

func (p *bufferPump) Pending() int {
	return p.buf.Len()
}

func (p *bufferPump) Close() error {
	p.buf.Release()
	return nil
}
