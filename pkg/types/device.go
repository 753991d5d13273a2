package types

import (
	"crypto/x509"
)

// ============================================================================
//                              DeviceType - 设备类型
// ============================================================================

// DeviceType 设备类型
type DeviceType int

const (
	// DeviceTypeUnknown 未知设备类型
	DeviceTypeUnknown DeviceType = iota
	// DeviceTypeDesktop 台式机
	DeviceTypeDesktop
	// DeviceTypeLaptop 笔记本
	DeviceTypeLaptop
	// DeviceTypePhone 手机
	DeviceTypePhone
	// DeviceTypeTablet 平板
	DeviceTypeTablet
	// DeviceTypeTV 电视
	DeviceTypeTV
)

// String 返回设备类型的字符串表示（线上格式）
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeDesktop:
		return "desktop"
	case DeviceTypeLaptop:
		return "laptop"
	case DeviceTypePhone:
		return "phone"
	case DeviceTypeTablet:
		return "tablet"
	case DeviceTypeTV:
		return "tv"
	default:
		return "unknown"
	}
}

// DeviceTypeFromString 从线上格式解析设备类型
//
// 无法识别的类型按 desktop 处理，与协议的宽容解析约定一致。
func DeviceTypeFromString(s string) DeviceType {
	switch s {
	case "desktop":
		return DeviceTypeDesktop
	case "laptop":
		return DeviceTypeLaptop
	case "phone":
		return DeviceTypePhone
	case "tablet":
		return DeviceTypeTablet
	case "tv":
		return DeviceTypeTV
	default:
		return DeviceTypeDesktop
	}
}

// ============================================================================
//                              DeviceInfo - 设备信息
// ============================================================================

// DeviceInfo 设备信息
//
// 本进程的 DeviceInfo 从配置存储加载；对端的 DeviceInfo 由身份包
// 与 TLS 握手捕获的证书组合而成。
type DeviceInfo struct {
	// ID 设备唯一标识
	ID DeviceID

	// Name 设备名称（用户可读）
	Name string

	// Type 设备类型
	Type DeviceType

	// ProtocolVersion 协议版本
	ProtocolVersion int

	// IncomingCapabilities 支持接收的能力集合
	IncomingCapabilities []string

	// OutgoingCapabilities 支持发送的能力集合
	OutgoingCapabilities []string

	// Certificate 设备证书
	//
	// 本地设备为自签名长期证书；对端设备在 TLS 握手完成后填充。
	Certificate *x509.Certificate
}

// WithCertificate 返回携带指定证书的副本
func (d DeviceInfo) WithCertificate(cert *x509.Certificate) DeviceInfo {
	d.Certificate = cert
	return d
}
