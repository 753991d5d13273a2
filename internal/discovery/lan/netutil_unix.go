//go:build linux || darwin || freebsd

package lan

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// udpListenControl 为 UDP 套接字开启地址共享与广播
//
// 同机多实例（测试）需要共用同一个监听端口；发送到广播地址
// 需要 SO_BROADCAST。
func udpListenControl(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			ctrlErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			ctrlErr = err
			return
		}
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// isMsgSizeError 检查错误是否为"数据报过大"
func isMsgSizeError(err error) bool {
	return errors.Is(err, unix.EMSGSIZE)
}
