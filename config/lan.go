package config

import (
	"fmt"

	"github.com/dep2p/go-lanlink/pkg/types"
)

// LanConfig LAN 发现与会合配置
type LanConfig struct {
	// UDPBroadcastPort 身份包发送的目标 UDP 端口
	// 默认: 1716
	UDPBroadcastPort int `json:"udp_broadcast_port,omitempty"`

	// UDPListenPort 身份包监听的 UDP 端口
	// 默认: 1716
	UDPListenPort int `json:"udp_listen_port,omitempty"`

	// TestMode 测试模式
	//
	// 绑定回环地址，并允许来自回环的数据报，
	// 用于同机多实例的集成测试。
	TestMode bool `json:"test_mode,omitempty"`

	// DisableUDPBroadcast 禁用全部 UDP 广播
	//
	// 环境变量 KDECONNECT_DISABLE_UDP_BROADCAST 的设置覆盖此项。
	DisableUDPBroadcast bool `json:"disable_udp_broadcast,omitempty"`
}

// DefaultLanConfig 返回默认 LAN 配置
func DefaultLanConfig() LanConfig {
	return LanConfig{
		UDPBroadcastPort: types.DefaultUDPPort,
		UDPListenPort:    types.DefaultUDPPort,
	}
}

// Validate 验证 LAN 配置并填充缺省值
func (c *LanConfig) Validate() error {
	if c.UDPBroadcastPort == 0 {
		c.UDPBroadcastPort = types.DefaultUDPPort
	}
	if c.UDPListenPort == 0 {
		c.UDPListenPort = types.DefaultUDPPort
	}
	if c.UDPBroadcastPort < 1 || c.UDPBroadcastPort > 65535 {
		return fmt.Errorf("udp_broadcast_port out of range: %d", c.UDPBroadcastPort)
	}
	if c.UDPListenPort < 1 || c.UDPListenPort > 65535 {
		return fmt.Errorf("udp_listen_port out of range: %d", c.UDPListenPort)
	}
	return nil
}
