//go:build !linux && !freebsd && !darwin && !windows

package lan

import (
	"net"
	"time"
)

const keepAliveIdle = 10 * time.Second

// configureKeepAlive 配置 TCP 保活（仅标准库能力）
func configureKeepAlive(conn *net.TCPConn) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	return conn.SetKeepAlivePeriod(keepAliveIdle)
}
