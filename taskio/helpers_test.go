//go:build unix

package taskio

import (
	"net"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// socketPair returns a connected pair of non-blocking unix stream sockets.
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

// tcpPair returns both ends of a loopback TCP connection as raw non-blocking
// descriptors.
func tcpPair(t *testing.T) (int, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	c1, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2 := <-accepted
	if c2 == nil {
		t.Fatal("accept failed")
	}
	defer c2.Close()

	a, b := dupConn(t, c1), dupConn(t, c2)
	t.Cleanup(func() {
		_ = unix.Close(a)
		_ = unix.Close(b)
	})
	return a, b
}

func dupConn(t *testing.T, c net.Conn) int {
	t.Helper()
	rc, err := c.(syscall.Conn).SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	fd := -1
	var dupErr error
	if err := rc.Control(func(s uintptr) { fd, dupErr = Dup(int(s)) }); err != nil {
		t.Fatal(err)
	}
	if dupErr != nil {
		t.Fatal(dupErr)
	}
	return fd
}

func writeAll(t *testing.T, fd int, p []byte) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if n > 0 {
			p = p[n:]
			continue
		}
		if err != unix.EAGAIN {
			t.Fatal(err)
		}
		if time.Now().After(deadline) {
			t.Fatal("write timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func readFull(t *testing.T, fd int, n int) []byte {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := unix.Read(fd, buf[got:])
		switch {
		case m > 0:
			got += m
			continue
		case err == nil:
			t.Fatalf("unexpected end of stream after %d/%d bytes", got, n)
		case err != unix.EAGAIN:
			t.Fatal(err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("read timed out after %d/%d bytes", got, n)
		}
		time.Sleep(time.Millisecond)
	}
	return buf
}
