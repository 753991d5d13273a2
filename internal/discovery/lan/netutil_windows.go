//go:build windows

package lan

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// udpListenControl 为 UDP 套接字开启地址共享与广播
func udpListenControl(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			ctrlErr = err
			return
		}
		ctrlErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// isMsgSizeError 检查错误是否为"数据报过大"
func isMsgSizeError(err error) bool {
	return errors.Is(err, windows.WSAEMSGSIZE)
}
