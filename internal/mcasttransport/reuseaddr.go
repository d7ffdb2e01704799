package mcasttransport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// SyscallReuseAddr sets SO_REUSEADDR (and, where supported, SO_REUSEPORT) on
// the raw socket underlying a net.Dialer's Control callback, so a
// multicast sender and receiver can share a local port, grounded on fw/face/impl's SyscallReuseAddr signature.
func SyscallReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		// Best-effort: not all kernels expose SO_REUSEPORT.
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
