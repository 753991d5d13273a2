package identity

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
	"github.com/dep2p/go-lanlink/pkg/types"
)

var logger = log.Logger("core/identity")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("invalid PEM data")

	// ErrKeyNotFound 密钥未找到
	ErrKeyNotFound = errors.New("key not found")

	// ErrNotTrusted 设备不在信任集合中
	ErrNotTrusted = errors.New("device not trusted")

	// ErrCertMismatch 证书与设备ID不匹配
	ErrCertMismatch = errors.New("certificate CN does not match device ID")
)

// 磁盘文件名
const (
	deviceIDFile      = "device_id"
	certificateFile   = "certificate.pem"
	privateKeyFile    = "privatekey.pem"
	trustedDevicesDir = "trusted_devices"
	customDevicesFile = "custom_devices"
)

// 信任证书解析缓存容量
const trustedCertCacheSize = 128

// ============================================================================
//                              Store
// ============================================================================

// Store 设备身份存储
//
// 首次启动生成设备ID与自签名证书并落盘；后续启动从磁盘加载。
type Store struct {
	cfg config.IdentityConfig

	deviceID types.DeviceID
	cert     tls.Certificate

	// 信任证书解析缓存：同一设备的证书在每次握手都会被查询
	certCache *lru.Cache[types.DeviceID, *x509.Certificate]

	mu sync.RWMutex
}

// 确保实现 ConfigStore 接口
var _ interfaces.ConfigStore = (*Store)(nil)

// NewStore 打开（或初始化）身份存储
func NewStore(cfg config.IdentityConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(cfg.ConfigDir, trustedDevicesDir), 0700); err != nil {
		return nil, fmt.Errorf("创建配置目录失败: %w", err)
	}

	cache, err := lru.New[types.DeviceID, *x509.Certificate](trustedCertCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{cfg: cfg, certCache: cache}
	if err := s.ensureDeviceID(); err != nil {
		return nil, err
	}
	if err := s.ensureCertificate(); err != nil {
		return nil, err
	}

	logger.Info("身份存储已就绪",
		"device_id", s.deviceID.ShortString(),
		"config_dir", cfg.ConfigDir)
	return s, nil
}

// ensureDeviceID 加载或生成设备ID
func (s *Store) ensureDeviceID() error {
	path := filepath.Join(s.cfg.ConfigDir, deviceIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		id := types.DeviceID(strings.TrimSpace(string(data)))
		if err := id.Validate(); err != nil {
			return fmt.Errorf("持久化的设备ID非法: %w", err)
		}
		s.deviceID = id
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	// 首次启动：生成并持久化
	id := types.DeviceID(strings.ReplaceAll(uuid.New().String(), "-", "_"))
	if err := atomicWriteFile(path, []byte(id.String()+"\n"), 0644); err != nil {
		return fmt.Errorf("持久化设备ID失败: %w", err)
	}
	s.deviceID = id
	logger.Info("生成新设备ID", "device_id", id.ShortString())
	return nil
}

// ensureCertificate 加载或生成设备证书
//
// 证书 CN 必须等于设备ID；加载到不一致的证书视为配置损坏。
func (s *Store) ensureCertificate() error {
	certPath := filepath.Join(s.cfg.ConfigDir, certificateFile)
	keyPath := filepath.Join(s.cfg.ConfigDir, privateKeyFile)

	key, err := LoadPrivateKeyPEM(keyPath)
	switch {
	case err == nil:
		leaf, err := LoadCertificatePEM(certPath)
		if err != nil {
			return fmt.Errorf("加载证书失败: %w", err)
		}
		if leaf.Subject.CommonName != s.deviceID.String() {
			return fmt.Errorf("%w: CN=%q, 设备ID=%q",
				ErrCertMismatch, leaf.Subject.CommonName, s.deviceID)
		}
		s.cert = tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}
		return nil

	case errors.Is(err, ErrKeyNotFound):
		// 首次启动：生成密钥与证书
		key, err := GenerateKey()
		if err != nil {
			return fmt.Errorf("生成私钥失败: %w", err)
		}
		cert, err := GenerateCertificate(s.deviceID, key)
		if err != nil {
			return err
		}
		if err := SavePrivateKeyPEM(key, keyPath); err != nil {
			return fmt.Errorf("持久化私钥失败: %w", err)
		}
		if err := SaveCertificatePEM(cert.Certificate[0], certPath); err != nil {
			return fmt.Errorf("持久化证书失败: %w", err)
		}
		s.cert = *cert
		logger.Info("生成新设备证书",
			"fingerprint", log.TruncateID(CertificateFingerprint(cert.Leaf), 16))
		return nil

	default:
		return fmt.Errorf("加载私钥失败: %w", err)
	}
}

// ============================================================================
//                              ConfigStore 接口实现
// ============================================================================

// DeviceID 返回本机设备ID
func (s *Store) DeviceID() types.DeviceID {
	return s.deviceID
}

// DeviceInfo 返回本机设备信息
func (s *Store) DeviceInfo() types.DeviceInfo {
	return types.DeviceInfo{
		ID:              s.deviceID,
		Name:            s.cfg.DeviceName,
		Type:            types.DeviceTypeFromString(s.cfg.DeviceType),
		ProtocolVersion: types.ProtocolVersion,
		Certificate:     s.cert.Leaf,
	}
}

// Certificate 返回本机 TLS 证书（含私钥）
func (s *Store) Certificate() tls.Certificate {
	return s.cert
}

// IsTrusted 检查设备是否在信任集合中
func (s *Store) IsTrusted(id types.DeviceID) bool {
	if id.Validate() != nil {
		return false
	}
	if _, ok := s.certCache.Get(id); ok {
		return true
	}
	_, err := os.Stat(s.trustedCertPath(id))
	return err == nil
}

// TrustedDevices 返回信任集合中的全部设备ID
func (s *Store) TrustedDevices() []types.DeviceID {
	entries, err := os.ReadDir(filepath.Join(s.cfg.ConfigDir, trustedDevicesDir))
	if err != nil {
		return nil
	}

	var ids []types.DeviceID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".pem") {
			continue
		}
		ids = append(ids, types.DeviceID(strings.TrimSuffix(name, ".pem")))
	}
	return ids
}

// TrustedDeviceCertificate 返回指定信任设备的固定证书
func (s *Store) TrustedDeviceCertificate(id types.DeviceID) (*x509.Certificate, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if cert, ok := s.certCache.Get(id); ok {
		return cert, nil
	}

	cert, err := LoadCertificatePEM(s.trustedCertPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotTrusted, id)
		}
		return nil, fmt.Errorf("加载信任证书失败: %w", err)
	}

	s.certCache.Add(id, cert)
	return cert, nil
}

// CustomDevices 返回用户声明的静态对端地址
//
// 文件中每行一个地址，空行与 # 开头的注释行被跳过。
func (s *Store) CustomDevices() []string {
	f, err := os.Open(filepath.Join(s.cfg.ConfigDir, customDevicesFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	return addrs
}

// ============================================================================
//                              信任集合写操作（配对层调用）
// ============================================================================

// AddTrustedDevice 将设备证书加入信任集合
func (s *Store) AddTrustedDevice(id types.DeviceID, cert *x509.Certificate) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if cert.Subject.CommonName != id.String() {
		return fmt.Errorf("%w: CN=%q, 设备ID=%q", ErrCertMismatch, cert.Subject.CommonName, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := SaveCertificatePEM(cert.Raw, s.trustedCertPath(id)); err != nil {
		return fmt.Errorf("持久化信任证书失败: %w", err)
	}
	s.certCache.Add(id, cert)
	logger.Info("设备已加入信任集合", "device_id", id.ShortString())
	return nil
}

// RemoveTrustedDevice 将设备移出信任集合
func (s *Store) RemoveTrustedDevice(id types.DeviceID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.certCache.Remove(id)
	if err := os.Remove(s.trustedCertPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	logger.Info("设备已移出信任集合", "device_id", id.ShortString())
	return nil
}

// trustedCertPath 返回信任证书的文件路径
func (s *Store) trustedCertPath(id types.DeviceID) string {
	return filepath.Join(s.cfg.ConfigDir, trustedDevicesDir, id.String()+".pem")
}
