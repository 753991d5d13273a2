package lan

import (
	"context"
	"net"
	"os"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/protocol"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

// disableBroadcastEnv 设置后禁用全部 UDP 广播（含静态对端单播）
const disableBroadcastEnv = "KDECONNECT_DISABLE_UDP_BROADCAST"

// ============================================================================
//                              Broadcaster
// ============================================================================

// broadcaster 身份广播器
//
// 向广播地址与用户声明的静态对端地址发送身份数据报，
// 让对端发起会合。
type broadcaster struct {
	cfg      config.LanConfig
	store    interfaces.ConfigStore
	counters *metrics.Counters

	// conn 共享的 UDP 套接字（与监听复用）
	conn *net.UDPConn

	// tcpPort 返回当前监听的 TCP 端口
	tcpPort func() int
}

func newBroadcaster(cfg config.LanConfig, store interfaces.ConfigStore, counters *metrics.Counters, conn *net.UDPConn, tcpPort func() int) *broadcaster {
	return &broadcaster{
		cfg:      cfg,
		store:    store,
		counters: counters,
		conn:     conn,
		tcpPort:  tcpPort,
	}
}

// Broadcast 同步发送一轮身份数据报
func (b *broadcaster) Broadcast() {
	if b.disabled() {
		logger.Warn("UDP 广播已禁用，跳过", "env", disableBroadcastEnv)
		return
	}
	logger.Debug("广播身份包")

	destinations := b.destinations()

	sources := broadcastSources()
	if len(sources) == 0 {
		// 默认路径：单个未绑定源即可覆盖所有接口
		b.sendIdentity(b.conn, destinations)
		b.counters.BroadcastSent()
		return
	}

	// 部分平台不会把默认源地址的广播路由到所有接口，
	// 逐接口绑定源地址发送才能到达非默认接口上的对端
	lc := net.ListenConfig{Control: udpListenControl}
	for _, src := range sources {
		pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(src.String(), "0"))
		if err != nil {
			logger.Warn("绑定广播源地址失败", "source", src.String(), "error", err)
			continue
		}
		logger.Debug("以源地址广播", "source", src.String())
		b.sendIdentity(pc.(*net.UDPConn), destinations)
		_ = pc.Close()
	}
	b.counters.BroadcastSent()
}

// SendReinvite 向指定对端单播身份包（反向连接回退）
//
// TCP 正向拨号失败后，邀请对端反向拨我们。回退邀请不受广播
// 禁用开关约束，只作用于单个已知对端。
func (b *broadcaster) SendReinvite(peer *net.UDPAddr) {
	dest := &net.UDPAddr{IP: peer.IP, Port: b.cfg.UDPBroadcastPort}
	b.sendIdentity(b.conn, []*net.UDPAddr{dest})
}

// destinations 返回广播目的地址列表
//
// 广播地址（测试模式下为回环）在前，用户声明的静态对端地址
// 随后；解析失败的条目记录日志后跳过。
func (b *broadcaster) destinations() []*net.UDPAddr {
	port := b.cfg.UDPBroadcastPort

	var dests []*net.UDPAddr
	if b.cfg.TestMode {
		dests = append(dests, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	} else {
		dests = append(dests, &net.UDPAddr{IP: net.IPv4bcast, Port: port})
	}

	for _, custom := range b.store.CustomDevices() {
		ip := net.ParseIP(custom)
		if ip == nil {
			logger.Warn("静态对端地址非法，跳过", "address", custom)
			continue
		}
		dests = append(dests, &net.UDPAddr{IP: ip, Port: port})
	}

	return dests
}

// sendIdentity 向每个目的地址发送一个身份数据报
//
// 数据报过大被内核拒绝时，去掉能力集合重试一次；第二次的
// 失败被静默容忍（仅 debug 记录）。
func (b *broadcaster) sendIdentity(conn *net.UDPConn, dests []*net.UDPAddr) {
	packet, err := protocol.NewIdentityPacket(b.store.DeviceInfo(), b.tcpPort())
	if err != nil {
		logger.Error("构建身份包失败", "error", err)
		return
	}
	payload, err := packet.Serialize()
	if err != nil {
		logger.Error("序列化身份包失败", "error", err)
		return
	}

	for _, dest := range dests {
		_, err := conn.WriteToUDP(payload, dest)
		if err == nil {
			continue
		}
		if !isMsgSizeError(err) {
			logger.Warn("发送 UDP 身份包失败", "dest", dest.String(), "error", err)
			continue
		}

		// 广播数据报超过 MTU 在部分系统上不允许分片，
		// 去掉能力集合缩小包体后重试一次
		logger.Warn("身份包过大被拒绝，去掉能力集合后重试", "dest", dest.String())
		stripped, err := protocol.StripCapabilities(packet)
		if err != nil {
			continue
		}
		small, err := stripped.Serialize()
		if err != nil {
			continue
		}
		if _, err := conn.WriteToUDP(small, dest); err != nil {
			logger.Debug("缩小后的身份包仍然发送失败", "dest", dest.String(), "error", err)
		}
	}
}

// disabled 检查广播是否被禁用（配置或环境变量）
func (b *broadcaster) disabled() bool {
	if b.cfg.DisableUDPBroadcast {
		return true
	}
	_, set := os.LookupEnv(disableBroadcastEnv)
	return set
}
