// Package main 提供 lanlinkd 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	lanlink "github.com/dep2p/go-lanlink"
	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
)

var logger = log.Logger("lanlink/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	configDir  = flag.String("config-dir", "", "身份存储目录")
	deviceName = flag.String("name", "", "设备名称（默认: 主机名）")
	deviceType = flag.String("type", "", "设备类型 (desktop/laptop/phone/tablet/tv)")
	udpPort    = flag.Int("udp-port", 0, "UDP 广播/监听端口（默认: 1716）")
	testMode   = flag.Bool("test-mode", false, "测试模式（绑定回环）")
	debug      = flag.Bool("debug", false, "输出 debug 级别日志")
)

func main() {
	flag.Parse()

	if *debug {
		log.SetLevel(log.LevelDebug)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "配置错误:", err)
		os.Exit(1)
	}

	node, err := lanlink.New(lanlink.WithConfig(cfg))
	if err != nil {
		fmt.Fprintln(os.Stderr, "创建节点失败:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "启动失败:", err)
		os.Exit(1)
	}

	logger.Info("lanlinkd 运行中",
		"device_id", node.DeviceID().String(),
		"device_name", node.DeviceInfo().Name,
		"tcp_port", node.TCPPort())

	// 把链路事件打到日志，方便观察发现过程
	sub, err := node.SubscribeLinkReady()
	if err == nil {
		go func() {
			for evt := range sub.Out() {
				ready := evt.(interfaces.EvtLinkReady)
				info := ready.Link.DeviceInfo()
				logger.Info("发现设备",
					"device_id", info.ID.String(),
					"device_name", info.Name,
					"device_type", info.Type.String())
			}
		}()
	}

	<-ctx.Done()
	logger.Info("收到退出信号，正在停止")

	if err := node.Stop(context.Background()); err != nil {
		logger.Warn("停止时出错", "error", err)
	}
}

// loadConfig 组装配置：文件在先，命令行参数覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.FromFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *configDir != "" {
		cfg.Identity.ConfigDir = *configDir
	}
	if *deviceName != "" {
		cfg.Identity.DeviceName = *deviceName
	}
	if *deviceType != "" {
		cfg.Identity.DeviceType = *deviceType
	}
	if *udpPort != 0 {
		cfg.Lan.UDPBroadcastPort = *udpPort
		cfg.Lan.UDPListenPort = *udpPort
	}
	if *testMode {
		cfg.Lan.TestMode = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
