//go:build unix

package task

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTask(t *testing.T, timeout time.Duration) *Task {
	t.Helper()
	tk, err := New(timeout)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tk.Close() })
	return tk
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func within(t *testing.T, d time.Duration, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("did not return within %s", d)
	}
}

func TestNilTaskYield(t *testing.T) {
	var tk *Task
	within(t, time.Second, func() {
		tk.Yield(Yield)
		tk.Yield(WaitIO)
	})
	if err := tk.AddFD(0, EventRead); err != nil {
		t.Fatal(err)
	}
}

func TestWaitIOTimeout(t *testing.T) {
	tk := newTask(t, 20*time.Millisecond)
	within(t, 5*time.Second, func() { tk.Yield(WaitIO) })
}

func TestWakeResumesWaitIO(t *testing.T) {
	tk := newTask(t, time.Minute)
	go func() {
		time.Sleep(10 * time.Millisecond)
		tk.Wake()
	}()
	within(t, 10*time.Second, func() { tk.Yield(WaitIO) })
}

func TestReadableDescriptorResumesWaitIO(t *testing.T) {
	tk := newTask(t, time.Minute)
	a, b := socketPair(t)
	if err := tk.AddFD(a, EventRead); err != nil {
		t.Fatal(err)
	}
	if err := tk.AddFD(a, EventWrite); err != nil {
		t.Fatal(err)
	}
	if err := tk.DelFD(a); err != nil {
		t.Fatal(err)
	}
	if err := tk.AddFD(a, EventRead); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatal(err)
	}
	within(t, 10*time.Second, func() { tk.Yield(WaitIO) })
}

func TestContextYielder(t *testing.T) {
	tk := newTask(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	yielder, stop := ContextYielder(ctx, tk)
	defer stop()

	if yielder(Yield) {
		t.Fatal("yielder stopped before cancellation")
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	var stopped bool
	within(t, 10*time.Second, func() { stopped = yielder(WaitIO) })
	if !stopped {
		t.Fatal("yielder did not report cancellation")
	}
	if !yielder(Yield) {
		t.Fatal("yielder resumed after cancellation")
	}
}

func TestYieldTypeString(t *testing.T) {
	for yt, want := range map[YieldType]string{Yield: "yield", WaitIO: "waitio", YieldType(9): "unknown"} {
		if got := yt.String(); got != want {
			t.Errorf("%d: got %q, want %q", int(yt), got, want)
		}
	}
}
