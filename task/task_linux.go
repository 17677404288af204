//go:build linux

package task

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Task watches descriptors with an edge-triggered epoll instance, so a socket
// that stays writable does not wake WaitIO over and over.
type Task struct {
	epfd    int
	wakefd  int
	timeout int
	events  []unix.EpollEvent
	watched map[int]Event

	mu     sync.Mutex
	closed bool
}

// New creates a Task whose WaitIO yields give up after waitTimeout even if no
// descriptor became ready.
func New(waitTimeout time.Duration) (*Task, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add: %w", err)
	}
	return &Task{
		epfd:    epfd,
		wakefd:  wakefd,
		timeout: timeoutMillis(waitTimeout),
		events:  make([]unix.EpollEvent, 64),
		watched: make(map[int]Event),
	}, nil
}

// AddFD watches fd for events. Watching an already watched descriptor widens
// its event set.
func (t *Task) AddFD(fd int, events Event) error {
	if t == nil {
		return nil
	}
	op := unix.EPOLL_CTL_ADD
	if old, ok := t.watched[fd]; ok {
		op = unix.EPOLL_CTL_MOD
		events |= old
	}
	ev := unix.EpollEvent{Events: epollEvents(events) | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(t.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl: %w", err)
	}
	t.watched[fd] = events
	return nil
}

// DelFD stops watching fd. It must be called before fd is closed.
func (t *Task) DelFD(fd int) error {
	if t == nil {
		return nil
	}
	if _, ok := t.watched[fd]; !ok {
		return nil
	}
	delete(t.watched, fd)
	if err := unix.EpollCtl(t.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
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
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(t.wakefd, buf[:])
}

// Close releases the epoll instance. Watched descriptors are not closed.
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
	err := unix.Close(t.wakefd)
	if cerr := unix.Close(t.epfd); err == nil {
		err = cerr
	}
	return err
}

func (t *Task) wait() bool {
	n, err := unix.EpollWait(t.epfd, t.events, t.timeout)
	if err != nil {
		return err == unix.EINTR
	}
	for i := 0; i < n; i++ {
		if int(t.events[i].Fd) == t.wakefd {
			var buf [8]byte
			_, _ = unix.Read(t.wakefd, buf[:])
		}
	}
	return true
}

func epollEvents(events Event) uint32 {
	var ev uint32
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}
