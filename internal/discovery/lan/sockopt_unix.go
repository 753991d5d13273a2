//go:build linux || freebsd

package lan

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// 内核保活参数
//
// 上层设备链路依赖内核探测死亡对端，本核心没有应用层心跳。
const (
	keepAliveIdle     = 10 * time.Second // 空闲多久后开始探测
	keepAliveInterval = 5                // 探测间隔（秒）
	keepAliveCount    = 3                // 连续失败多少次后断开
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
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(keepAliveIdle.Seconds())); err != nil {
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
