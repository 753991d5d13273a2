// Package netmon 提供网络变化监听与广播去抖
//
// 系统网络发生变化（接口上线、地址变更、重新联网）时，需要
// 重新广播身份让新网络里的对端发现我们。去抖器把一次事件风暴
// 合并为单次广播轮次。
package netmon

import (
	"context"
	"time"

	"github.com/dep2p/go-lanlink/pkg/lib/log"
)

var logger = log.Logger("core/netmon")

// ============================================================================
//                              SystemWatcher 接口
// ============================================================================

// SystemWatcher 系统网络变化监听器接口
type SystemWatcher interface {
	// Start 启动监听
	Start(ctx context.Context) error

	// Stop 停止监听
	Stop() error

	// Events 返回事件通道
	// 当检测到网络变化时，会向此通道发送事件
	Events() <-chan NetworkEvent

	// IsRunning 检查是否正在运行
	IsRunning() bool
}

// ============================================================================
//                              网络事件
// ============================================================================

// NetworkEvent 网络变化事件
type NetworkEvent struct {
	// Type 事件类型
	Type NetworkEventType

	// Interface 接口名称（如 "en0", "eth0"）
	Interface string

	// Address 相关地址（可选）
	Address string

	// Timestamp 事件时间
	Timestamp time.Time
}

// NetworkEventType 网络事件类型
type NetworkEventType int

const (
	// EventNetworkChanged 通用网络变化事件
	// 当无法确定具体类型时使用
	EventNetworkChanged NetworkEventType = iota

	// EventInterfaceUp 接口启用
	EventInterfaceUp

	// EventInterfaceDown 接口禁用
	EventInterfaceDown

	// EventAddressAdded 地址添加
	EventAddressAdded

	// EventAddressRemoved 地址移除
	EventAddressRemoved
)

// String 返回事件类型字符串
func (t NetworkEventType) String() string {
	switch t {
	case EventNetworkChanged:
		return "network_changed"
	case EventInterfaceUp:
		return "interface_up"
	case EventInterfaceDown:
		return "interface_down"
	case EventAddressAdded:
		return "address_added"
	case EventAddressRemoved:
		return "address_removed"
	default:
		return "unknown"
	}
}

// TriggersAnnouncement 检查事件是否应触发身份广播
//
// 只有让本机变得可达的变化才值得广播；接口下线不触发。
func (t NetworkEventType) TriggersAnnouncement() bool {
	switch t {
	case EventNetworkChanged, EventInterfaceUp, EventAddressAdded:
		return true
	default:
		return false
	}
}

// ============================================================================
//                              NoOpWatcher
// ============================================================================

// NoOpWatcher 空操作监听器
// 当系统监听被禁用时使用
type NoOpWatcher struct {
	events chan NetworkEvent
}

// NewNoOpWatcher 创建空操作监听器
func NewNoOpWatcher() *NoOpWatcher {
	return &NoOpWatcher{
		events: make(chan NetworkEvent),
	}
}

// Start 启动（空操作）
func (w *NoOpWatcher) Start(_ context.Context) error {
	return nil
}

// Stop 停止（空操作）
func (w *NoOpWatcher) Stop() error {
	return nil
}

// Events 返回事件通道（永远不会有事件）
func (w *NoOpWatcher) Events() <-chan NetworkEvent {
	return w.events
}

// IsRunning 检查是否运行
func (w *NoOpWatcher) IsRunning() bool {
	return false
}
