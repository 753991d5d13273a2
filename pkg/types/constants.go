package types

import "time"

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// ProtocolVersion 当前协议版本
	ProtocolVersion = 8

	// PacketTypeIdentity 身份包类型标签
	PacketTypeIdentity = "kdeconnect.identity"
)

// ============================================================================
//                              端口与上限
// ============================================================================

const (
	// MinTCPPort TCP 接受器端口范围下界
	MinTCPPort = 1716

	// MaxTCPPort TCP 接受器端口范围上界
	MaxTCPPort = 1764

	// DefaultUDPPort 默认 UDP 广播/监听端口
	DefaultUDPPort = 1716

	// MaxUnpairedConnections 未配对设备的链路数量上限
	//
	// 上限按闭区间解释：达到上限后，新的未配对设备被拒绝。
	MaxUnpairedConnections = 42

	// MaxRememberedIdentityPackets 待定连接（已记住的身份包）数量上限
	MaxRememberedIdentityPackets = 42
)

// ============================================================================
//                              超时与限制
// ============================================================================

const (
	// IdentityReadTimeout 接受侧等待身份行的超时
	IdentityReadTimeout = 1000 * time.Millisecond

	// MaxIdentityLineLength TLS 之前允许接收的最大字节数
	//
	// 身份行包含完整能力集合，实测在 2000 字节左右；超过该
	// 限制的连接按恶意处理直接关闭。
	MaxIdentityLineLength = 8192
)
