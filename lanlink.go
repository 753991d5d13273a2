package lanlink

import (
	"context"
	"sync/atomic"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/link"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/netmon"
	"github.com/dep2p/go-lanlink/internal/discovery/lan"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
	"github.com/dep2p/go-lanlink/pkg/types"
)

var logger = log.Logger("lanlink")

// ============================================================================
//                              Node
// ============================================================================

// Node LanLink 节点
//
// 组装身份存储、事件总线、链路注册表、LAN 链路提供者与网络
// 变化监控器，对外提供统一入口。
type Node struct {
	cfg *config.Config
	app fxApp

	// 由 Fx 填充
	store    interfaces.ConfigStore
	bus      interfaces.EventBus
	registry *link.Registry
	provider *lan.Provider
	monitor  *netmon.Monitor
	counters *metrics.Counters

	started atomic.Bool
}

// New 创建 LanLink 节点
//
// 选项在默认配置上生效；节点在 Start 之前不触碰网络。
func New(opts ...Option) (*Node, error) {
	cfg := config.NewConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{cfg: cfg}
	app, err := buildFxApp(cfg, n)
	if err != nil {
		return nil, err
	}
	n.app = app
	return n, nil
}

// Start 启动节点
func (n *Node) Start(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := n.app.Start(ctx); err != nil {
		n.started.Store(false)
		return err
	}

	logger.Info("节点已启动",
		"device_id", n.store.DeviceID().ShortString(),
		"tcp_port", n.provider.TCPPort())
	return nil
}

// Stop 停止节点
func (n *Node) Stop(ctx context.Context) error {
	if !n.started.CompareAndSwap(true, false) {
		return nil
	}
	return n.app.Stop(ctx)
}

// IsRunning 检查节点是否在运行
func (n *Node) IsRunning() bool {
	return n.started.Load()
}

// ============================================================================
//                              查询接口
// ============================================================================

// DeviceID 返回本机设备ID
func (n *Node) DeviceID() types.DeviceID {
	return n.store.DeviceID()
}

// DeviceInfo 返回本机设备信息
func (n *Node) DeviceInfo() types.DeviceInfo {
	return n.store.DeviceInfo()
}

// TCPPort 返回当前监听的 TCP 端口
func (n *Node) TCPPort() int {
	if !n.started.Load() {
		return 0
	}
	return n.provider.TCPPort()
}

// Links 返回当前全部链路
func (n *Node) Links() []interfaces.DeviceLink {
	return n.registry.Links()
}

// Metrics 返回计数器快照
func (n *Node) Metrics() metrics.Snapshot {
	return n.counters.Snapshot()
}

// ============================================================================
//                              事件与控制
// ============================================================================

// SubscribeLinkReady 订阅链路就绪事件
func (n *Node) SubscribeLinkReady() (interfaces.Subscription, error) {
	return n.bus.Subscribe(new(interfaces.EvtLinkReady))
}

// Broadcast 立即广播一轮身份
func (n *Node) Broadcast() error {
	if !n.started.Load() {
		return ErrNotStarted
	}
	n.provider.Broadcast()
	return nil
}

// NotifyNetworkChange 注入一次网络变化（走去抖路径）
func (n *Node) NotifyNetworkChange() {
	n.monitor.NotifyNetworkChange()
}

// SetAuxiliaryDiscovery 挂接辅助发现（如 mDNS）
//
// 网络变化去抖到期后，辅助发现会被重启。
func (n *Node) SetAuxiliaryDiscovery(aux interfaces.AuxiliaryDiscovery) {
	n.monitor.SetAuxiliaryDiscovery(aux)
}
