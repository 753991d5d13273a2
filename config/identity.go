package config

import (
	"errors"
	"os"
	"path/filepath"
)

// IdentityConfig 身份配置
//
// 设备身份（设备ID、密钥对、自签名证书、信任集合、静态对端地址）
// 持久化在 ConfigDir 下：
//
//	device_id                  设备ID（首次启动生成）
//	certificate.pem            自签名证书，CN = 设备ID
//	privatekey.pem             私钥
//	trusted_devices/<id>.pem   信任设备的固定证书
//	custom_devices             用户声明的静态对端地址，每行一个
type IdentityConfig struct {
	// ConfigDir 配置目录
	// 默认: $XDG_CONFIG_HOME/lanlink 或 ~/.config/lanlink
	ConfigDir string `json:"config_dir,omitempty"`

	// DeviceName 设备名称
	// 默认: 主机名
	DeviceName string `json:"device_name,omitempty"`

	// DeviceType 设备类型（desktop/laptop/phone/tablet/tv）
	// 默认: desktop
	DeviceType string `json:"device_type,omitempty"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		DeviceType: "desktop",
	}
}

// Validate 验证身份配置并填充缺省值
func (c *IdentityConfig) Validate() error {
	if c.ConfigDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return errors.New("config_dir not set and user config dir unavailable")
		}
		c.ConfigDir = filepath.Join(dir, "lanlink")
	}
	if c.DeviceName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			c.DeviceName = "unknown"
		} else {
			c.DeviceName = host
		}
	}
	if c.DeviceType == "" {
		c.DeviceType = "desktop"
	}
	return nil
}
