// Package interfaces 定义 LanLink 各模块间的公共接口
//
// 接口只依赖 pkg/types，实现位于 internal/ 各模块。
// 上层通过接口消费配置存储与设备链路，避免模块间的具体类型耦合。
package interfaces

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/dep2p/go-lanlink/pkg/types"
)

// ============================================================================
//                              ConfigStore - 配置存储
// ============================================================================

// ConfigStore 持久配置存储（设备身份、密钥与信任集合）
//
// 读多写少的单例：本核心只读取；新增信任设备等写操作由配对层完成。
type ConfigStore interface {
	// DeviceID 返回本机设备ID
	DeviceID() types.DeviceID

	// DeviceInfo 返回本机设备信息（含证书）
	DeviceInfo() types.DeviceInfo

	// Certificate 返回本机 TLS 证书（含私钥）
	Certificate() tls.Certificate

	// IsTrusted 检查设备是否在信任集合中
	IsTrusted(id types.DeviceID) bool

	// TrustedDevices 返回信任集合中的全部设备ID
	TrustedDevices() []types.DeviceID

	// TrustedDeviceCertificate 返回指定信任设备的固定证书
	TrustedDeviceCertificate(id types.DeviceID) (*x509.Certificate, error)

	// CustomDevices 返回用户声明的静态对端地址
	CustomDevices() []string
}

// ============================================================================
//                              DeviceLink - 设备链路
// ============================================================================

// DeviceLink 已认证的加密设备链路
//
// 由链路注册表发布后归上层所有；注册表仅保留去重用的非拥有句柄。
type DeviceLink interface {
	// DeviceID 返回对端设备ID
	DeviceID() types.DeviceID

	// DeviceInfo 返回对端设备信息（含握手捕获的证书）
	DeviceInfo() types.DeviceInfo

	// Close 关闭链路并释放底层套接字
	Close() error
}

// ============================================================================
//                              AuxiliaryDiscovery - 辅助发现
// ============================================================================

// AuxiliaryDiscovery 可选的辅助发现机制（如 mDNS）
//
// 网络变化去抖器在广播轮次后重启发现；未配置时为 nil。
type AuxiliaryDiscovery interface {
	// StartAnnouncing 开始对外宣告
	StartAnnouncing() error

	// StopAnnouncing 停止对外宣告
	StopAnnouncing()

	// StartDiscovering 开始发现对端
	StartDiscovering() error

	// StopDiscovering 停止发现对端
	StopDiscovering()
}
