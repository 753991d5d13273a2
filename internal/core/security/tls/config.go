package tls

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
	"github.com/dep2p/go-lanlink/pkg/types"
)

var logger = log.Logger("core/security/tls")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNoPeerCertificate 对端未提供证书
	ErrNoPeerCertificate = errors.New("peer provided no certificate")

	// ErrCertificateMismatch 对端证书与固定证书不一致
	ErrCertificateMismatch = errors.New("peer certificate does not match pinned certificate")

	// ErrPeerNameMismatch 证书 CN 与期望设备ID不一致
	ErrPeerNameMismatch = errors.New("certificate CN does not match expected device ID")

	// ErrCertificateExpired 证书不在有效期内
	ErrCertificateExpired = errors.New("peer certificate outside validity period")
)

// ============================================================================
//                              ConfigBuilder
// ============================================================================

// ConfigBuilder 按对端信任状态构建 TLS 配置
type ConfigBuilder struct {
	store interfaces.ConfigStore
}

// NewConfigBuilder 创建配置构建器
func NewConfigBuilder(store interfaces.ConfigStore) *ConfigBuilder {
	return &ConfigBuilder{store: store}
}

// ServerConfig 构建 TLS 服务端配置
//
// 由 TCP 连接方使用（发现角色为应答方）。对端作为 TLS 客户端
// 必须出示证书。
func (b *ConfigBuilder) ServerConfig(peer types.DeviceID) (*tls.Config, error) {
	verify, err := b.verifyCallback(peer)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{b.store.Certificate()},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.RequireAnyClientCert,
		// 自签名证书场景，验证完全由 VerifyPeerCertificate 承担
		InsecureSkipVerify:    true, //nolint:gosec // G402: 使用 VerifyPeerCertificate 进行自定义验证
		VerifyPeerCertificate: verify,
	}, nil
}

// ClientConfig 构建 TLS 客户端配置
//
// 由 TCP 接受方使用（发现角色为宣告方）。
func (b *ConfigBuilder) ClientConfig(peer types.DeviceID) (*tls.Config, error) {
	verify, err := b.verifyCallback(peer)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{b.store.Certificate()},
		MinVersion:   tls.VersionTLS12,
		// 自签名证书场景，验证完全由 VerifyPeerCertificate 承担
		InsecureSkipVerify:    true, //nolint:gosec // G402: 使用 VerifyPeerCertificate 进行自定义验证
		VerifyPeerCertificate: verify,
	}, nil
}

// verifyCallback 创建证书验证回调
//
// 验证逻辑：
//  1. 对端必须提供证书（两个方向都要求）
//  2. 信任设备：证书逐字节等于固定证书 + CN 等于设备ID + 有效期
//  3. 未配对设备：仅要求证书可解析；自签名在此模式下被容忍
func (b *ConfigBuilder) verifyCallback(peer types.DeviceID) (func([][]byte, [][]*x509.Certificate) error, error) {
	if !b.store.IsTrusted(peer) {
		// QueryPeer：握手完成，证书从连接状态捕获供配对层使用
		return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return ErrNoPeerCertificate
			}
			if _, err := x509.ParseCertificate(rawCerts[0]); err != nil {
				return fmt.Errorf("解析对端证书失败: %w", err)
			}
			return nil
		}, nil
	}

	pinned, err := b.store.TrustedDeviceCertificate(peer)
	if err != nil {
		return nil, err
	}

	// VerifyPeer：固定证书作为唯一信任来源
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrNoPeerCertificate
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("解析对端证书失败: %w", err)
		}

		if !bytes.Equal(cert.Raw, pinned.Raw) {
			logger.Warn("对端证书与固定证书不一致",
				"device_id", peer.ShortString())
			return ErrCertificateMismatch
		}

		if cert.Subject.CommonName != peer.String() {
			return fmt.Errorf("%w: CN=%q, 期望 %q",
				ErrPeerNameMismatch, cert.Subject.CommonName, peer)
		}

		now := time.Now()
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return ErrCertificateExpired
		}
		return nil
	}, nil
}

// ============================================================================
//                              连接状态工具
// ============================================================================

// PeerCertificate 从 TLS 连接状态提取对端证书
func PeerCertificate(state tls.ConnectionState) (*x509.Certificate, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, ErrNoPeerCertificate
	}
	return state.PeerCertificates[0], nil
}

// PeerDeviceID 从 TLS 连接状态提取证书中声明的设备ID
//
// 设备ID取自证书主题的 Common Name；链路注册表据此与身份包中
// 的设备ID核对。
func PeerDeviceID(state tls.ConnectionState) (types.DeviceID, error) {
	cert, err := PeerCertificate(state)
	if err != nil {
		return types.EmptyDeviceID, err
	}
	return types.DeviceID(cert.Subject.CommonName), nil
}
