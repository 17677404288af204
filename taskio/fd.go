//go:build unix

package taskio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Open opens path with O_NONBLOCK added to flags.
func Open(path string, flags int, perm uint32) (int, error) {
	return unix.Open(path, flags|unix.O_NONBLOCK, perm)
}

// Openat is Open relative to dirfd.
func Openat(dirfd int, path string, flags int, perm uint32) (int, error) {
	return unix.Openat(dirfd, path, flags|unix.O_NONBLOCK, perm)
}

// Creat creates or truncates path for non-blocking writing.
func Creat(path string, perm uint32) (int, error) {
	return Open(path, unix.O_CREAT|unix.O_WRONLY|unix.O_TRUNC, perm)
}

// Dup duplicates fd into a new close-on-exec, non-blocking descriptor.
func Dup(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("dup: %w", err)
	}
	return nonblock(nfd)
}

// Dup2 duplicates oldfd onto newfd and puts newfd in non-blocking mode.
func Dup2(oldfd, newfd int) (int, error) {
	if err := unix.Dup2(oldfd, newfd); err != nil {
		return -1, fmt.Errorf("dup2: %w", err)
	}
	return nonblock(newfd)
}

func nonblock(fd int) (int, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}
