package lan

import (
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/dep2p/go-lanlink/internal/core/protocol"
	"github.com/dep2p/go-lanlink/pkg/types"
)

// identityWriteTimeout 写出身份行的最长等待
//
// 对应"确保身份行到达内核后再开始 TLS"的有界等待。
const identityWriteTimeout = 30 * time.Second

// ============================================================================
//                              应答方路径（UDP 收包后回拨）
// ============================================================================

// connectToPeer 向宣告方发起会合
//
// 发现角色为应答方：本机是 TCP 连接方，因此作为 TLS 服务端。
// 流程：Dialing → WritingIdentity → TlsHandshaking → Ready。
func (p *Provider) connectToPeer(identity *protocol.Identity, sender *net.UDPAddr) {
	pc := &pendingConn{state: StateDialing, identity: identity, sender: sender}
	if !p.pending.TryAdd(pc) {
		logger.Warn("待定连接过多，放弃拨号", "device_id", identity.DeviceID.ShortString())
		return
	}

	addr := net.JoinHostPort(sender.IP.String(), strconv.Itoa(identity.TCPPort))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(p.ctx, "tcp4", addr)
	if err != nil {
		// 回退一：拨号失败，单播身份邀请对端反向拨我们
		logger.Debug("TCP 拨号失败，尝试反向连接",
			"peer", addr, "error", err)
		p.bcast.SendReinvite(sender)
		pc.setState(StateDead)
		p.pending.Remove(pc)
		return
	}

	tcpConn := conn.(*net.TCPConn)
	if err := configureKeepAlive(tcpConn); err != nil {
		logger.Warn("配置 TCP 保活失败", "remote", addr, "error", err)
	}

	// 身份行永远是 TCP 流上最早的应用字节，先于 TLS
	pc.setState(StateWritingIdentity)
	if err := p.writeIdentityLine(tcpConn); err != nil {
		// 回退二：写出未能落地，线路看起来是坏的，同样反向邀请
		logger.Debug("身份行写出失败，尝试反向连接",
			"peer", addr, "error", err)
		p.bcast.SendReinvite(sender)
		_ = tcpConn.Close()
		pc.setState(StateDead)
		p.pending.Remove(pc)
		return
	}

	// TCP 连接方作为 TLS 服务端（角色反转）
	pc.setState(StateTLSHandshaking)
	p.counters.HandshakeStarted()

	cfg, err := p.tlsBuilder.ServerConfig(identity.DeviceID)
	if err != nil {
		logger.Warn("构建 TLS 配置失败", "device_id", identity.DeviceID.ShortString(), "error", err)
		p.counters.HandshakeFailed()
		_ = tcpConn.Close()
		pc.setState(StateDead)
		p.pending.Remove(pc)
		return
	}

	tlsConn := tls.Server(tcpConn, cfg)
	if err := tlsConn.HandshakeContext(p.ctx); err != nil {
		logger.Warn("TLS 握手失败，断开",
			"device_id", identity.DeviceID.ShortString(), "error", err)
		p.counters.HandshakeFailed()
		_ = tlsConn.Close()
		pc.setState(StateDead)
		p.pending.Remove(pc)
		return
	}

	// 所有权移交链路注册表
	pc.setState(StateReady)
	p.pending.Remove(pc)
	_ = p.registry.AddLink(tlsConn, identity)
}

// writeIdentityLine 写出本机身份行
//
// TCP 上的身份行不携带 tcpPort。写出带有界超时，超时视同
// 线路死亡。
func (p *Provider) writeIdentityLine(conn *net.TCPConn) error {
	packet, err := protocol.NewIdentityPacket(p.store.DeviceInfo(), 0)
	if err != nil {
		return err
	}
	payload, err := packet.Serialize()
	if err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(identityWriteTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	return conn.SetWriteDeadline(time.Time{})
}

// ============================================================================
//                              宣告方路径（被回拨）
// ============================================================================

// handleInbound 处理接受的 TCP 连接
//
// 发现角色为宣告方：本机是 TCP 接受方，因此作为 TLS 客户端。
// 流程：AwaitingIdentity → TlsHandshaking → Ready。
func (p *Provider) handleInbound(conn *net.TCPConn) {
	pc := &pendingConn{state: StateAwaitingIdentity}

	// 对端必须在时限内送达完整身份行
	if err := conn.SetReadDeadline(time.Now().Add(types.IdentityReadTimeout)); err != nil {
		_ = conn.Close()
		return
	}

	line, err := readIdentityLine(conn, types.MaxIdentityLineLength)
	if err != nil {
		logger.Warn("对端未送达有效身份行，关闭连接",
			"remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		pc.setState(StateDead)
		return
	}

	identity, err := protocol.ParseIdentity(line)
	if err != nil {
		logger.Debug("TCP 身份行解析失败，关闭连接",
			"remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		pc.setState(StateDead)
		return
	}

	pc.identity = identity
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		pc.sender = &net.UDPAddr{IP: tcpAddr.IP, Port: tcpAddr.Port}
	}

	if !p.pending.TryAdd(pc) {
		logger.Warn("待定连接过多，忽略 TCP 收到的身份",
			"device_id", identity.DeviceID.ShortString())
		_ = conn.Close()
		return
	}

	// 身份行已收到，解除读超时
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		p.pending.Remove(pc)
		return
	}

	// TCP 接受方作为 TLS 客户端（角色反转）
	pc.setState(StateTLSHandshaking)
	p.counters.HandshakeStarted()

	cfg, err := p.tlsBuilder.ClientConfig(identity.DeviceID)
	if err != nil {
		logger.Warn("构建 TLS 配置失败", "device_id", identity.DeviceID.ShortString(), "error", err)
		p.counters.HandshakeFailed()
		_ = conn.Close()
		pc.setState(StateDead)
		p.pending.Remove(pc)
		return
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(p.ctx); err != nil {
		logger.Warn("TLS 握手失败，断开",
			"device_id", identity.DeviceID.ShortString(), "error", err)
		p.counters.HandshakeFailed()
		_ = tlsConn.Close()
		pc.setState(StateDead)
		p.pending.Remove(pc)
		return
	}

	pc.setState(StateReady)
	p.pending.Remove(pc)
	_ = p.registry.AddLink(tlsConn, identity)
}

// readIdentityLine 读取一行身份，带长度上限
//
// 超过上限仍未见行终止符的连接按恶意处理。逐字节读避免把
// TLS 的首批字节误吞进缓冲。
func readIdentityLine(conn net.Conn, maxLen int) ([]byte, error) {
	buf := make([]byte, 0, 512)
	one := make([]byte, 1)

	for {
		n, err := conn.Read(one)
		if n == 1 {
			buf = append(buf, one[0])
			if len(buf) > maxLen {
				return nil, errIdentityTooLong
			}
			if one[0] == '\n' {
				return buf, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// errIdentityTooLong TLS 之前收到的字节超过上限
var errIdentityTooLong = errors.New("suspiciously long identity before TLS")
