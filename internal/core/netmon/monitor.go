package netmon

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

// ============================================================================
//                              Monitor
// ============================================================================

// Monitor 网络变化监控器
//
// 消费系统监听器的事件流，经去抖后触发一轮身份广播，并重启
// 辅助发现（如 mDNS，存在时）。
type Monitor struct {
	watcher   SystemWatcher
	debouncer *Debouncer

	mu       sync.Mutex
	announce func()
	aux      interfaces.AuxiliaryDiscovery

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor 创建监控器
func NewMonitor(cfg config.WatcherConfig, clk clock.Clock) *Monitor {
	m := &Monitor{
		watcher: NewSystemWatcher(cfg),
	}
	m.debouncer = NewDebouncer(clk, cfg.DebounceDelay.Duration(), m.onFire)
	return m
}

// SetAnnouncer 设置广播回调
//
// 必须在 Start 之前设置。
func (m *Monitor) SetAnnouncer(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announce = fn
}

// SetAuxiliaryDiscovery 设置辅助发现
func (m *Monitor) SetAuxiliaryDiscovery(aux interfaces.AuxiliaryDiscovery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aux = aux
}

// Start 启动监控
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)
	if err := m.watcher.Start(ctx); err != nil {
		m.running.Store(false)
		return err
	}

	m.wg.Add(1)
	go m.eventLoop(ctx)
	return nil
}

// Stop 停止监控
func (m *Monitor) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}

	m.cancel()
	err := m.watcher.Stop()
	m.wg.Wait()
	m.debouncer.Close()
	return err
}

// NotifyNetworkChange 手动注入一次网络变化
//
// 供诊断接口与测试使用，与系统事件走同一条去抖路径。
func (m *Monitor) NotifyNetworkChange() {
	m.debouncer.Trigger()
}

// eventLoop 事件循环
func (m *Monitor) eventLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-m.watcher.Events():
			if !ok {
				return
			}
			if evt.Type.TriggersAnnouncement() {
				logger.Debug("网络事件触发广播",
					"type", evt.Type.String(),
					"interface", evt.Interface)
				m.debouncer.Trigger()
			}
		}
	}
}

// onFire 去抖到期：广播一次并重启辅助发现
func (m *Monitor) onFire() {
	m.mu.Lock()
	announce := m.announce
	aux := m.aux
	m.mu.Unlock()

	if announce != nil {
		announce()
	}
	if aux != nil {
		aux.StopDiscovering()
		if err := aux.StartDiscovering(); err != nil {
			logger.Warn("重启辅助发现失败", "error", err)
		}
	}
}
