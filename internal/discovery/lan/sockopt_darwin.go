//go:build darwin

package lan

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// 内核保活参数（darwin 用 TCP_KEEPALIVE 表示空闲阈值）
const (
	keepAliveIdle     = 10 * time.Second
	keepAliveInterval = 5
	keepAliveCount    = 3
)

// configureKeepAlive 配置 TCP 保活
func configureKeepAlive(conn *net.TCPConn) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	if err := conn.SetKeepAlivePeriod(keepAliveIdle); err != nil {
		return err
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, int(keepAliveIdle.Seconds())); err != nil {
			ctrlErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, keepAliveInterval); err != nil {
			ctrlErr = err
			return
		}
		ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepAliveCount)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
