// Package lanlink 实现局域网内的设备发现与安全链路建立
//
// 同一广播域内的两台设备通过 UDP 广播互相发现，协商一条双向
// 认证的 TLS 连接，并把就绪的加密全双工字节流交给上层设备
// 链路层。
//
// 使用示例：
//
//	node, err := lanlink.New(
//	    lanlink.WithConfigDir("/var/lib/lanlink"),
//	    lanlink.WithDeviceName("workstation"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop(context.Background())
//
//	sub, _ := node.SubscribeLinkReady()
//	for evt := range sub.Out() {
//	    link := evt.(interfaces.EvtLinkReady).Link
//	    // 链路归上层所有
//	}
package lanlink
