package identity

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-lanlink/pkg/types"
)

// PEM 类型常量
const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypeECPrivate   = "EC PRIVATE KEY"
)

// 证书有效期：生效时间回拨一年以容忍时钟偏差，有效期十年
const (
	certNotBeforeSkew = 365 * 24 * time.Hour
	certValidity      = 10 * 365 * 24 * time.Hour
)

// GenerateCertificate 生成自签名设备证书
//
// Common Name 必须等于设备ID，链路注册表在发布链路前会核对
// 证书 CN 与身份包中的设备ID。
func GenerateCertificate(deviceID types.DeviceID, key *ecdsa.PrivateKey) (*tls.Certificate, error) {
	if err := deviceID.Validate(); err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization:       []string{"LanLink"},
			OrganizationalUnit: []string{"LanLink"},
			CommonName:         deviceID.String(),
		},
		NotBefore:             time.Now().Add(-certNotBeforeSkew),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("创建证书失败: %w", err)
	}

	// 解析证书以填充 Leaf 字段
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("解析证书失败: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// GenerateKey 生成 ECDSA P-256 私钥
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// ============================================================================
//                              PEM 持久化
// ============================================================================

// SaveCertificatePEM 保存证书到 PEM 文件
func SaveCertificatePEM(certDER []byte, path string) error {
	data := pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: certDER})
	return atomicWriteFile(path, data, 0644)
}

// LoadCertificatePEM 从 PEM 文件加载证书
func LoadCertificatePEM(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCertificatePEM(data)
}

// ParseCertificatePEM 解析 PEM 编码的证书
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeCertificate {
		return nil, ErrInvalidPEM
	}
	return x509.ParseCertificate(block.Bytes)
}

// SavePrivateKeyPEM 保存私钥到 PEM 文件
//
// 使用原子写操作（临时文件 + rename）防止部分写入导致的文件损坏。
// 文件权限设置为 0600，仅所有者可读写。
func SavePrivateKeyPEM(key *ecdsa.PrivateKey, path string) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("编码私钥失败: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemTypeECPrivate, Bytes: der})
	return atomicWriteFile(path, data, 0600)
}

// LoadPrivateKeyPEM 从 PEM 文件加载私钥
func LoadPrivateKeyPEM(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeECPrivate {
		return nil, ErrInvalidPEM
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// atomicWriteFile 原子写文件
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ============================================================================
//                              指纹
// ============================================================================

// CertificateFingerprint 返回证书的 SHA-256 指纹（十六进制）
func CertificateFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// VerificationKey 计算配对验证串
//
// 两端各自计算并由用户比对。输入顺序无关：两份证书按字节序
// 排序后拼接再哈希。
func VerificationKey(a, b *x509.Certificate) string {
	first, second := a.Raw, b.Raw
	if bytes.Compare(first, second) > 0 {
		first, second = second, first
	}
	h := sha256.New()
	h.Write(first)
	h.Write(second)
	return hex.EncodeToString(h.Sum(nil))
}
