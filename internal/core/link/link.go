// Package link 实现设备链路与链路注册表
//
// 链路是绑定到设备ID的已认证加密字节流。TLS 完成且证书身份
// 核验通过后，注册表构造链路并通过事件总线发布；此后套接字归
// 链路所有，注册表只保留去重用的句柄。
package link

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-lanlink/internal/core/protocol"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
	"github.com/dep2p/go-lanlink/pkg/types"
)

var logger = log.Logger("core/link")

// ErrLinkClosed 链路已关闭
var ErrLinkClosed = errors.New("link closed")

// ============================================================================
//                              Link
// ============================================================================

// Link 设备链路
//
// 对套接字的独占所有权在发布时从待定连接转移到链路；
// Reset 支持在不销毁链路的前提下换入新的套接字（保留上层
// 排队的应用消息）。
type Link struct {
	info types.DeviceInfo

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	closed   atomic.Bool
	onClosed func(*Link)
}

// 确保实现 DeviceLink 接口
var _ interfaces.DeviceLink = (*Link)(nil)

// New 创建设备链路
//
// onClosed 在链路关闭时回调一次，注册表据此移除条目。
func New(info types.DeviceInfo, conn net.Conn, onClosed func(*Link)) *Link {
	return &Link{
		info:     info,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		onClosed: onClosed,
	}
}

// DeviceID 返回对端设备ID
func (l *Link) DeviceID() types.DeviceID {
	return l.info.ID
}

// DeviceInfo 返回对端设备信息
func (l *Link) DeviceInfo() types.DeviceInfo {
	return l.info
}

// Reset 换入新的套接字
//
// 旧套接字被关闭；链路身份与上层状态不变。
func (l *Link) Reset(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = conn
	l.reader = bufio.NewReader(conn)

	logger.Debug("链路套接字已替换", "device_id", l.info.ID.ShortString())
}

// SendPacket 发送一个包
func (l *Link) SendPacket(p *protocol.Packet) error {
	if l.closed.Load() {
		return ErrLinkClosed
	}

	data, err := p.Serialize()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrLinkClosed
	}
	_, err = l.conn.Write(data)
	return err
}

// ReadPacket 读取一个包
//
// 阻塞直到读到完整一行；对端断开由内核保活探测兜底。
func (l *Link) ReadPacket() (*protocol.Packet, error) {
	if l.closed.Load() {
		return nil, ErrLinkClosed
	}

	l.mu.Lock()
	reader := l.reader
	l.mu.Unlock()
	if reader == nil {
		return nil, ErrLinkClosed
	}

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return protocol.Unserialize(line)
}

// Close 关闭链路并释放底层套接字
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.reader = nil
	l.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if l.onClosed != nil {
		l.onClosed(l)
	}
	return err
}
