//go:build unix

package taskio

import (
	"errors"

	"github.com/wwqgtxx/fdsplice/task"

	"golang.org/x/sys/unix"
)

// ErrCanceled is returned when the yielder asked to stop.
var ErrCanceled = errors.New("taskio: canceled")

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

// retry runs op until it completes, fails with something other than "would
// block", or the yielder asks to stop.
func retry(t *task.Task, yielder task.Yielder, op func() (int, error)) (int, error) {
	for {
		n, err := op()
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return 0, err
		}
		if yielder != nil {
			if yielder(task.WaitIO) {
				return 0, ErrCanceled
			}
		} else {
			t.Yield(task.WaitIO)
		}
	}
}

// Read reads from fd into p. A zero count with a nil error is end-of-stream.
func Read(t *task.Task, fd int, p []byte, yielder task.Yielder) (int, error) {
	return retry(t, yielder, func() (int, error) { return unix.Read(fd, p) })
}

// Readv scatters one read from fd across iovs.
func Readv(t *task.Task, fd int, iovs [][]byte, yielder task.Yielder) (int, error) {
	return retry(t, yielder, func() (int, error) { return readv(fd, iovs) })
}

// Write writes p to fd. Like write(2) it may write fewer bytes than len(p).
func Write(t *task.Task, fd int, p []byte, yielder task.Yielder) (int, error) {
	return retry(t, yielder, func() (int, error) { return unix.Write(fd, p) })
}

// Writev gathers iovs into one write to fd.
func Writev(t *task.Task, fd int, iovs [][]byte, yielder task.Yielder) (int, error) {
	return retry(t, yielder, func() (int, error) { return writev(fd, iovs) })
}
