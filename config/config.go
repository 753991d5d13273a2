// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Lan.TestMode = true
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config 是 LanLink 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 设备身份与持久存储
//   - Lan: LAN 发现与会合（UDP 广播、TCP 接受器）
//   - Watcher: 网络变化监听与广播去抖
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Lan LAN 发现配置
	Lan LanConfig `json:"lan"`

	// Watcher 网络变化监听配置
	Watcher WatcherConfig `json:"watcher"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity: DefaultIdentityConfig(),
		Lan:      DefaultLanConfig(),
		Watcher:  DefaultWatcherConfig(),
	}
}

// Validate 验证整体配置
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	if err := c.Lan.Validate(); err != nil {
		return fmt.Errorf("lan config: %w", err)
	}
	if err := c.Watcher.Validate(); err != nil {
		return fmt.Errorf("watcher config: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 数据解析配置
//
// 解析前先填充默认值，JSON 中省略的字段保持默认。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile 从文件加载配置
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化配置为 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
