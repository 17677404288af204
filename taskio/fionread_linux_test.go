//go:build linux

package taskio

import "golang.org/x/sys/unix"

// fionread is the ioctl reporting unread socket bytes. Linux exposes it as
// TIOCINQ, which shares FIONREAD's request number.
const fionread = unix.TIOCINQ
