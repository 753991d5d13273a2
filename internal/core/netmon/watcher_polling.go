package netmon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-lanlink/config"
)

// ============================================================================
//                              PollingWatcher
// ============================================================================

// PollingWatcher 基于轮询的网络变化监听器
//
// 跨平台实现，使用标准库 net.Interfaces()。
type PollingWatcher struct {
	mu sync.RWMutex

	// 配置
	cfg config.WatcherConfig

	// 事件通道
	events chan NetworkEvent

	// 上次网络指纹
	lastFingerprint string

	// 上次接口信息（用于检测具体变化）
	lastInterfaces map[string]interfaceInfo

	// 运行状态
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// interfaceInfo 接口信息
type interfaceInfo struct {
	Name      string
	Flags     net.Flags
	Addresses []string
}

// NewPollingWatcher 创建轮询监听器
func NewPollingWatcher(cfg config.WatcherConfig) *PollingWatcher {
	_ = cfg.Validate()

	return &PollingWatcher{
		cfg:            cfg,
		events:         make(chan NetworkEvent, cfg.EventBufferSize),
		lastInterfaces: make(map[string]interfaceInfo),
	}
}

// Start 启动监听
func (w *PollingWatcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return nil // 已在运行
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	// 初始化指纹
	w.mu.Lock()
	w.lastFingerprint = w.networkFingerprint()
	w.lastInterfaces = w.interfacesInfo()
	w.mu.Unlock()

	w.wg.Add(1)
	go w.pollLoop()

	logger.Info("网络变化监听器已启动",
		"poll_interval", w.cfg.PollInterval.String())
	return nil
}

// Stop 停止监听
func (w *PollingWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return nil // 未运行
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	logger.Info("网络变化监听器已停止")
	return nil
}

// Events 返回事件通道
func (w *PollingWatcher) Events() <-chan NetworkEvent {
	return w.events
}

// IsRunning 检查是否运行
func (w *PollingWatcher) IsRunning() bool {
	return w.running.Load()
}

// ============================================================================
//                              轮询逻辑
// ============================================================================

// pollLoop 轮询循环
func (w *PollingWatcher) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkNetworkChange()
		}
	}
}

// checkNetworkChange 检查网络变化
func (w *PollingWatcher) checkNetworkChange() {
	currentFingerprint := w.networkFingerprint()
	currentInterfaces := w.interfacesInfo()

	w.mu.Lock()
	lastFingerprint := w.lastFingerprint
	lastInterfaces := w.lastInterfaces
	w.lastFingerprint = currentFingerprint
	w.lastInterfaces = currentInterfaces
	w.mu.Unlock()

	// 如果指纹相同，无变化
	if currentFingerprint == lastFingerprint {
		return
	}

	logger.Debug("检测到网络变化",
		"old_fingerprint", truncate(lastFingerprint),
		"new_fingerprint", truncate(currentFingerprint))

	// 检测具体变化
	events := w.detectChanges(lastInterfaces, currentInterfaces)

	// 发送事件
	for _, event := range events {
		select {
		case w.events <- event:
			logger.Debug("发送网络事件",
				"type", event.Type.String(),
				"interface", event.Interface)
		default:
			logger.Warn("网络事件缓冲区已满，丢弃事件",
				"type", event.Type.String())
		}
	}

	// 如果没有检测到具体变化，发送通用变化事件
	if len(events) == 0 {
		select {
		case w.events <- NetworkEvent{
			Type:      EventNetworkChanged,
			Timestamp: time.Now(),
		}:
		default:
		}
	}
}

// detectChanges 检测具体变化
func (w *PollingWatcher) detectChanges(old, current map[string]interfaceInfo) []NetworkEvent {
	var events []NetworkEvent
	now := time.Now()

	for name, newInfo := range current {
		oldInfo, existed := old[name]

		if !existed {
			// 新增接口
			events = append(events, NetworkEvent{
				Type:      EventInterfaceUp,
				Interface: name,
				Timestamp: now,
			})
			continue
		}

		// 检查接口状态变化
		wasUp := oldInfo.Flags&net.FlagUp != 0
		isUp := newInfo.Flags&net.FlagUp != 0

		if !wasUp && isUp {
			events = append(events, NetworkEvent{
				Type:      EventInterfaceUp,
				Interface: name,
				Timestamp: now,
			})
		} else if wasUp && !isUp {
			events = append(events, NetworkEvent{
				Type:      EventInterfaceDown,
				Interface: name,
				Timestamp: now,
			})
		}

		// 检查地址变化
		oldAddrs := make(map[string]bool)
		for _, addr := range oldInfo.Addresses {
			oldAddrs[addr] = true
		}
		newAddrs := make(map[string]bool)
		for _, addr := range newInfo.Addresses {
			newAddrs[addr] = true
		}

		for addr := range newAddrs {
			if !oldAddrs[addr] {
				events = append(events, NetworkEvent{
					Type:      EventAddressAdded,
					Interface: name,
					Address:   addr,
					Timestamp: now,
				})
			}
		}
		for addr := range oldAddrs {
			if !newAddrs[addr] {
				events = append(events, NetworkEvent{
					Type:      EventAddressRemoved,
					Interface: name,
					Address:   addr,
					Timestamp: now,
				})
			}
		}
	}

	// 检查删除的接口
	for name := range old {
		if _, exists := current[name]; !exists {
			events = append(events, NetworkEvent{
				Type:      EventInterfaceDown,
				Interface: name,
				Timestamp: now,
			})
		}
	}

	return events
}

// ============================================================================
//                              网络指纹
// ============================================================================

// networkFingerprint 获取网络指纹
// 基于所有非回环网络接口和地址计算哈希
func (w *PollingWatcher) networkFingerprint() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	var parts []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		part := iface.Name + ":" + iface.Flags.String()

		addrs, err := iface.Addrs()
		if err == nil {
			var addrStrs []string
			for _, addr := range addrs {
				addrStrs = append(addrStrs, addr.String())
			}
			sort.Strings(addrStrs)
			part += ":[" + strings.Join(addrStrs, ",") + "]"
		}

		parts = append(parts, part)
	}

	sort.Strings(parts)
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

// interfacesInfo 获取接口信息
func (w *PollingWatcher) interfacesInfo() map[string]interfaceInfo {
	result := make(map[string]interfaceInfo)

	ifaces, err := net.Interfaces()
	if err != nil {
		return result
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		info := interfaceInfo{
			Name:  iface.Name,
			Flags: iface.Flags,
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				info.Addresses = append(info.Addresses, addr.String())
			}
		}
		result[iface.Name] = info
	}

	return result
}

func truncate(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}

// ============================================================================
//                              工厂函数
// ============================================================================

// NewSystemWatcher 创建系统监听器
//
// 禁用时返回 NoOpWatcher，否则返回轮询实现。
func NewSystemWatcher(cfg config.WatcherConfig) SystemWatcher {
	if !cfg.Enabled {
		return NewNoOpWatcher()
	}
	return NewPollingWatcher(cfg)
}
