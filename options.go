package lanlink

import (
	"fmt"

	"github.com/dep2p/go-lanlink/config"
)

// Option 用户配置选项函数
type Option func(*config.Config) error

// WithConfig 使用完整配置（其余选项在其上继续生效）
func WithConfig(cfg *config.Config) Option {
	return func(dst *config.Config) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		*dst = *cfg
		return nil
	}
}

// WithConfigDir 设置配置目录（设备身份的持久化位置）
func WithConfigDir(dir string) Option {
	return func(cfg *config.Config) error {
		if dir == "" {
			return fmt.Errorf("%w: empty config dir", ErrInvalidOption)
		}
		cfg.Identity.ConfigDir = dir
		return nil
	}
}

// WithDeviceName 设置设备名称
func WithDeviceName(name string) Option {
	return func(cfg *config.Config) error {
		if name == "" {
			return fmt.Errorf("%w: empty device name", ErrInvalidOption)
		}
		cfg.Identity.DeviceName = name
		return nil
	}
}

// WithDeviceType 设置设备类型（desktop/laptop/phone/tablet/tv）
func WithDeviceType(deviceType string) Option {
	return func(cfg *config.Config) error {
		cfg.Identity.DeviceType = deviceType
		return nil
	}
}

// WithUDPPorts 设置 UDP 广播与监听端口
func WithUDPPorts(broadcastPort, listenPort int) Option {
	return func(cfg *config.Config) error {
		cfg.Lan.UDPBroadcastPort = broadcastPort
		cfg.Lan.UDPListenPort = listenPort
		return nil
	}
}

// WithTestMode 启用测试模式
//
// 绑定回环地址并允许回环数据报，用于同机多实例测试。
func WithTestMode() Option {
	return func(cfg *config.Config) error {
		cfg.Lan.TestMode = true
		return nil
	}
}

// WithoutUDPBroadcast 禁用 UDP 广播（含静态对端单播）
func WithoutUDPBroadcast() Option {
	return func(cfg *config.Config) error {
		cfg.Lan.DisableUDPBroadcast = true
		return nil
	}
}

// WithoutNetworkWatcher 禁用系统网络变化监听
func WithoutNetworkWatcher() Option {
	return func(cfg *config.Config) error {
		cfg.Watcher.Enabled = false
		return nil
	}
}
