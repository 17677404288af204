package taskio

import (
	"errors"
	"fmt"
	"io"

	"github.com/wwqgtxx/fdsplice/monitor"
	"github.com/wwqgtxx/fdsplice/task"

	"golang.org/x/sys/unix"
)

const spliceSupported = true

const spliceFlags = unix.SPLICE_F_MOVE | unix.SPLICE_F_NONBLOCK

// splicePump stages bytes in a kernel pipe, moving them with splice(2) so they
// never enter process memory.
type splicePump struct {
	t        *task.Task
	fds      [2]int
	pending  int
	capacity int
	role     monitor.Role
	mon      *monitor.Monitor
}

func newSplicePump(t *task.Task, size int, role monitor.Role, mon *monitor.Monitor) (*splicePump, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("splice pump: pipe2: %w", err)
	}
	p := &splicePump{t: t, fds: fds, capacity: size, role: role, mon: mon}
	if err := t.AddFD(fds[0], task.EventRead); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("splice pump: %w", err)
	}
	if err := t.AddFD(fds[1], task.EventWrite); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("splice pump: %w", err)
	}
	if size > 0 {
		_, _ = unix.FcntlInt(uintptr(fds[0]), unix.F_SETPIPE_SZ, size)
	}
	if n, err := unix.FcntlInt(uintptr(fds[0]), unix.F_GETPIPE_SZ, 0); err == nil && n > 0 {
		p.capacity = n
	}
	if p.capacity <= 0 {
		p.capacity = DefaultBufferSize
	}
	return p, nil
}

// Pump moves what fits from in into the pipe, then drains the pipe into out.
// The drain runs even when in failed, so staged bytes still reach out.
// End-of-stream on in fails the direction only after the pipe is empty.
func (p *splicePump) Pump(in, out int) (Status, error) {
	read := StatusIdle
	var readErr error
	eof := false
	if p.pending < p.capacity {
		n, err := unix.Splice(in, nil, p.fds[1], nil, p.capacity-p.pending, spliceFlags)
		switch {
		case n > 0:
			p.pending += int(n)
			read = StatusProgressed
		case err == nil:
			eof = true
		case isWouldBlock(err):
		default:
			read = StatusFailed
			readErr = fmt.Errorf("splice read: %w", err)
		}
	}

	write := StatusIdle
	if p.pending > 0 {
		n, err := unix.Splice(p.fds[0], nil, out, nil, p.pending, spliceFlags)
		switch {
		case n > 0:
			p.pending -= int(n)
			p.mon.Record(int(n), p.role, monitor.OpWrite)
			write = StatusProgressed
		case err == nil:
			return StatusFailed, errors.Join(readErr, io.ErrNoProgress)
		case isWouldBlock(err):
		default:
			return StatusFailed, errors.Join(readErr, fmt.Errorf("splice write: %w", err))
		}
	}

	if readErr != nil {
		return StatusFailed, readErr
	}
	if eof && p.pending == 0 {
		return StatusFailed, io.EOF
	}
	return merge(read, write), nil
}

func (p *splicePump) Pending() int {
	return p.pending
}

// Close releases both pipe ends. It is safe to call on a partially
// initialized pump and more than once.
func (p *splicePump) Close() error {
	var err error
	for i, fd := range p.fds {
		if fd < 0 {
			continue
		}
		_ = p.t.DelFD(fd)
		if cerr := unix.Close(fd); err == nil {
			err = cerr
		}
		p.fds[i] = -1
	}
	return err
}
