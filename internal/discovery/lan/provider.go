package lan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	tec "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/link"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/protocol"
	sectls "github.com/dep2p/go-lanlink/internal/core/security/tls"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
	"github.com/dep2p/go-lanlink/pkg/types"
)

var logger = log.Logger("discovery/lan")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrAlreadyStarted 提供者已启动
	ErrAlreadyStarted = errors.New("lan provider already started")

	// ErrNoPortAvailable TCP 端口范围内没有可用端口
	ErrNoPortAvailable = errors.New("no tcp port available in protocol range")
)

// ============================================================================
//                              Provider
// ============================================================================

// Provider LAN 链路提供者
//
// 持有 UDP 监听套接字与 TCP 接受器，驱动发现与会合的全部四条
// 路径（正向、反向与两种回退），把就绪的连接交给链路注册表。
type Provider struct {
	cfg        config.LanConfig
	store      interfaces.ConfigStore
	registry   *link.Registry
	counters   *metrics.Counters
	tlsBuilder *sectls.ConfigBuilder

	udpConn     *net.UDPConn
	tcpListener *net.TCPListener
	tcpPort     atomic.Int32

	bcast   *broadcaster
	pending *pendingTable

	ctx     context.Context
	cancel  context.CancelFunc
	eg      *errgroup.Group
	started atomic.Bool
}

// NewProvider 创建 LAN 链路提供者
func NewProvider(cfg config.LanConfig, store interfaces.ConfigStore, registry *link.Registry, counters *metrics.Counters) *Provider {
	p := &Provider{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		counters:   counters,
		tlsBuilder: sectls.NewConfigBuilder(store),
		pending:    newPendingTable(),
	}
	p.bcast = newBroadcaster(cfg, store, counters, nil, func() int {
		return int(p.tcpPort.Load())
	})
	return p
}

// Start 启动提供者
//
// 绑定 UDP 监听端口（地址共享），在协议端口范围内逐个尝试绑定
// TCP 接受器，然后广播一轮身份。端口范围耗尽是启动期致命错误。
func (p *Provider) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	bindIP := "0.0.0.0"
	if p.cfg.TestMode {
		bindIP = "127.0.0.1"
	}

	// UDP 监听（地址共享，便于同机多实例测试）
	lc := net.ListenConfig{Control: udpListenControl}
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(bindIP, strconv.Itoa(p.cfg.UDPListenPort)))
	if err != nil {
		p.started.Store(false)
		return fmt.Errorf("绑定 UDP 端口 %d 失败: %w", p.cfg.UDPListenPort, err)
	}
	p.udpConn = pc.(*net.UDPConn)
	p.bcast.conn = p.udpConn

	// TCP 接受器：从范围下界开始递增，直到找到可用端口
	port := types.MinTCPPort
	for {
		ln, err := net.Listen("tcp4", net.JoinHostPort(bindIP, strconv.Itoa(port)))
		if err == nil {
			p.tcpListener = ln.(*net.TCPListener)
			break
		}
		port++
		if port > types.MaxTCPPort {
			_ = p.udpConn.Close()
			p.started.Store(false)
			logger.Error("协议端口范围内没有可用端口",
				"min", types.MinTCPPort, "max", types.MaxTCPPort)
			return ErrNoPortAvailable
		}
	}
	p.tcpPort.Store(int32(port))

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.eg, _ = errgroup.WithContext(p.ctx)
	p.eg.Go(p.udpReadLoop)
	p.eg.Go(p.acceptLoop)

	// 到了新网络先自我介绍
	p.bcast.Broadcast()

	logger.Info("LAN 链路提供者已启动",
		"tcp_port", port,
		"udp_port", p.cfg.UDPListenPort,
		"test_mode", p.cfg.TestMode)
	return nil
}

// Stop 停止提供者
//
// 关闭 UDP 套接字与 TCP 接受器；在途的待定连接由各自的套接字
// 关闭时拆除。
func (p *Provider) Stop() error {
	if !p.started.CompareAndSwap(true, false) {
		return nil
	}

	p.cancel()
	var errs error
	if p.udpConn != nil {
		errs = multierr.Append(errs, p.udpConn.Close())
	}
	if p.tcpListener != nil {
		errs = multierr.Append(errs, p.tcpListener.Close())
	}
	errs = multierr.Append(errs, p.eg.Wait())

	logger.Info("LAN 链路提供者已停止")
	return errs
}

// Broadcast 广播一轮身份
//
// 网络变化去抖器到期后调用；接受器未在监听时跳过。
func (p *Provider) Broadcast() {
	if !p.started.Load() {
		logger.Warn("TCP 接受器未在监听，跳过广播")
		return
	}
	p.bcast.Broadcast()
}

// TCPPort 返回当前监听的 TCP 端口
func (p *Provider) TCPPort() int {
	return int(p.tcpPort.Load())
}

// PendingCount 返回当前待定连接数量
func (p *Provider) PendingCount() int {
	return p.pending.Len()
}

// ============================================================================
//                              UDP 监听
// ============================================================================

// udpReadLoop UDP 读循环
func (p *Provider) udpReadLoop() error {
	catcher := tec.TempErrCatcher{}
	buf := make([]byte, 65536)

	for {
		n, sender, err := p.udpConn.ReadFromUDP(buf)
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			// 套接字被关闭，正常退出
			return nil
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		p.handleDatagram(data, sender)
	}
}

// handleDatagram 处理一个入站身份数据报
//
// 过滤链：回环（非测试模式）→ 解析/类型 → 自身回声 → 端口范围
// → 待定表容量；全部通过后对发送者发起 TCP 拨号。
func (p *Provider) handleDatagram(data []byte, sender *net.UDPAddr) {
	p.counters.DatagramReceived()

	if sender.IP.IsLoopback() && !p.cfg.TestMode {
		p.counters.DatagramDropped()
		return
	}

	identity, err := protocol.ParseIdentity(data)
	if err != nil {
		logger.Debug("丢弃无法解析的 UDP 数据报", "sender", sender.String(), "error", err)
		p.counters.DatagramDropped()
		return
	}

	// 自己的广播回声，不为它分配任何东西
	if identity.DeviceID.Equal(p.store.DeviceID()) {
		p.counters.DatagramDropped()
		return
	}

	if err := protocol.ValidateTCPPort(identity.TCPPort); err != nil {
		logger.Debug("丢弃端口超出范围的身份包",
			"sender", sender.String(), "tcp_port", identity.TCPPort)
		p.counters.DatagramDropped()
		return
	}

	if p.pending.Full() {
		logger.Warn("待定连接过多，忽略 UDP 收到的身份",
			"device_id", identity.DeviceID.ShortString())
		p.counters.DatagramDropped()
		return
	}

	go p.connectToPeer(identity, sender)
}

// ============================================================================
//                              TCP 接受
// ============================================================================

// acceptLoop TCP 接受循环
func (p *Provider) acceptLoop() error {
	catcher := tec.TempErrCatcher{}

	for {
		conn, err := p.tcpListener.AcceptTCP()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			// 接受器被关闭，正常退出
			return nil
		}

		if err := configureKeepAlive(conn); err != nil {
			logger.Warn("配置 TCP 保活失败", "remote", conn.RemoteAddr().String(), "error", err)
		}
		go p.handleInbound(conn)
	}
}
