//go:build windows || freebsd

package lan

import "net"

// broadcastSources 返回广播源地址列表
//
// 该平台不会把默认源地址的广播路由到所有接口，必须逐个
// 枚举启用中、运行中、支持广播的接口，从每个非回环 IPv4
// 地址各发一次。这是可达性要求，不是优化。
func broadcastSources() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var sources []net.IP
	for _, iface := range ifaces {
		const wanted = net.FlagUp | net.FlagRunning | net.FlagBroadcast
		if iface.Flags&wanted != wanted {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || ip.IsLoopback() {
				continue
			}
			sources = append(sources, ip)
		}
	}

	return sources
}
