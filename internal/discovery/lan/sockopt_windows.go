//go:build windows

package lan

import (
	"net"
	"unsafe"

	"golang.org/x/sys/windows"
)

// 内核保活参数（毫秒）
//
// Windows 上首个探测前的空闲时间为 5 分钟。
const (
	keepAliveIdleMillis     = 5 * 60 * 1000
	keepAliveIntervalMillis = 5 * 1000
)

// tcpKeepalive 对应 mstcpip.h 的 tcp_keepalive 结构
type tcpKeepalive struct {
	OnOff             uint32
	KeepAliveTime     uint32
	KeepAliveInterval uint32
}

// configureKeepAlive 配置 TCP 保活
//
// 通过 SIO_KEEPALIVE_VALS 设置空闲阈值与探测间隔；
// 探测次数由系统固定，不可配置。
func configureKeepAlive(conn *net.TCPConn) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	ka := tcpKeepalive{
		OnOff:             1,
		KeepAliveTime:     keepAliveIdleMillis,
		KeepAliveInterval: keepAliveIntervalMillis,
	}

	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		var returned uint32
		ctrlErr = windows.WSAIoctl(
			windows.Handle(fd),
			windows.SIO_KEEPALIVE_VALS,
			(*byte)(unsafe.Pointer(&ka)),
			uint32(unsafe.Sizeof(ka)),
			nil,
			0,
			&returned,
			nil,
			0,
		)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
