//go:build unix && !linux

package task

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Task watches descriptors with poll(2). Readiness is level-triggered here, a
// descriptor registered for EventWrite wakes WaitIO for as long as it stays
// writable.
type Task struct {
	fds     []unix.PollFd // fds[0] is the read end of the wake pipe
	wakew   int
	timeout int

	mu     sync.Mutex
	closed bool
}

// New creates a Task whose WaitIO yields give up after waitTimeout even if no
// descriptor became ready.
func New(waitTimeout time.Duration) (*Task, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, fmt.Errorf("set nonblock: %w", err)
		}
	}
	return &Task{
		fds:     []unix.PollFd{{Fd: int32(p[0]), Events: unix.POLLIN}},
		wakew:   p[1],
		timeout: timeoutMillis(waitTimeout),
	}, nil
}

// AddFD watches fd for events. Watching an already watched descriptor widens
// its event set.
func (t *Task) AddFD(fd int, events Event) error {
	if t == nil {
		return nil
	}
	for i := 1; i < len(t.fds); i++ {
		if int(t.fds[i].Fd) == fd {
			t.fds[i].Events |= pollEvents(events)
			return nil
		}
	}
	t.fds = append(t.fds, unix.PollFd{Fd: int32(fd), Events: pollEvents(events)})
	return nil
}

// DelFD stops watching fd.
func (t *Task) DelFD(fd int) error {
	if t == nil {
		return nil
	}
	for i := 1; i < len(t.fds); i++ {
		if int(t.fds[i].Fd) == fd {
			t.fds = append(t.fds[:i], t.fds[i+1:]...)
			return nil
		}
	}
	return nil
}

// Wake resumes a goroutine parked in a WaitIO yield. It is safe to call from
// any goroutine.
func (t *Task) Wake() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	_, _ = unix.Write(t.wakew, []byte{1})
}

// Close releases the wake pipe. Watched descriptors are not closed.
func (t *Task) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := unix.Close(int(t.fds[0].Fd))
	if cerr := unix.Close(t.wakew); err == nil {
		err = cerr
	}
	return err
}

func (t *Task) wait() bool {
	for i := range t.fds {
		t.fds[i].Revents = 0
	}
	_, err := unix.Poll(t.fds, t.timeout)
	if err != nil {
		return err == unix.EINTR
	}
	if t.fds[0].Revents&unix.POLLIN != 0 {
		var buf [64]byte
		for {
			if n, _ := unix.Read(int(t.fds[0].Fd), buf[:]); n <= 0 {
				break
			}
		}
	}
	return true
}

func pollEvents(events Event) int16 {
	var ev int16
	if events&EventRead != 0 {
		ev |= unix.POLLIN
	}
	if events&EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}
