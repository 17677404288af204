//go:build unix && !linux

package taskio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func readv(fd int, iovs [][]byte) (int, error) {
	return vectored(unix.SYS_READV, fd, iovs)
}

func writev(fd int, iovs [][]byte) (int, error) {
	return vectored(unix.SYS_WRITEV, fd, iovs)
}

func vectored(trap uintptr, fd int, bufs [][]byte) (int, error) {
	iovecList := make([]unix.Iovec, 0, len(bufs))
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		var iovec unix.Iovec
		iovec.Base = &b[0]
		iovec.SetLen(len(b))
		iovecList = append(iovecList, iovec)
	}
	if len(iovecList) == 0 {
		return 0, nil
	}
	//nolint:staticcheck
	r0, _, e1 := unix.Syscall(trap, uintptr(fd), uintptr(unsafe.Pointer(&iovecList[0])), uintptr(len(iovecList)))
	if e1 != 0 {
		return 0, e1
	}
	return int(r0), nil
}
