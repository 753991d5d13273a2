package lan

import (
	"net"
	"sync"

	"github.com/dep2p/go-lanlink/internal/core/protocol"
	"github.com/dep2p/go-lanlink/pkg/types"
)

// ============================================================================
//                              连接状态
// ============================================================================

// ConnState 待定连接状态
type ConnState int

const (
	// StateDialing 正在发起 TCP 连接（UDP 收包侧的初始状态）
	StateDialing ConnState = iota

	// StateWritingIdentity TCP 已建立，正在写出本机身份行
	StateWritingIdentity

	// StateAwaitingIdentity 已接受 TCP 连接，等待对端身份行
	StateAwaitingIdentity

	// StateTLSHandshaking 明文身份交换完成，正在 TLS 升级
	StateTLSHandshaking

	// StateReady TLS 完成，所有权移交链路注册表（终态）
	StateReady

	// StateDead 连接失败或被拒绝（终态）
	StateDead
)

// String 返回状态的字符串表示
func (s ConnState) String() string {
	switch s {
	case StateDialing:
		return "dialing"
	case StateWritingIdentity:
		return "writing_identity"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateTLSHandshaking:
		return "tls_handshaking"
	case StateReady:
		return "ready"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              PendingConn
// ============================================================================

// pendingConn 待定连接
//
// 套接字在 accept/connect 之后、链路发布之前由该记录独占。
// TLS 失败、超时或发布都以记录从表中移除收场。
type pendingConn struct {
	mu sync.Mutex

	// state 当前状态
	state ConnState

	// identity 对端身份包（UDP 或 TCP 收到）
	identity *protocol.Identity

	// sender 对端来源地址，反向连接回退的目标
	sender *net.UDPAddr
}

// setState 推进状态机
func (p *pendingConn) setState(s ConnState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State 返回当前状态
func (p *pendingConn) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ============================================================================
//                              pendingTable
// ============================================================================

// pendingTable 待定连接表
//
// 以记录指针为稳定句柄的 arena；容量受
// MaxRememberedIdentityPackets 约束（闭区间）。
type pendingTable struct {
	mu      sync.Mutex
	entries map[*pendingConn]struct{}
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: make(map[*pendingConn]struct{}),
	}
}

// TryAdd 在容量允许时登记一条待定连接
//
// 表满返回 false，调用方应丢弃并告警。
func (t *pendingTable) TryAdd(p *pendingConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= types.MaxRememberedIdentityPackets {
		return false
	}
	t.entries[p] = struct{}{}
	return true
}

// Remove 移除一条待定连接
//
// 所有权转移（发布为链路）与失败丢弃都走这里。
func (t *pendingTable) Remove(p *pendingConn) {
	t.mu.Lock()
	delete(t.entries, p)
	t.mu.Unlock()
}

// Len 返回当前待定连接数量
func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Full 检查表是否已满
func (t *pendingTable) Full() bool {
	return t.Len() >= types.MaxRememberedIdentityPackets
}
