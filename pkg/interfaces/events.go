package interfaces

// ============================================================================
//                              事件定义
// ============================================================================

// EvtLinkReady 链路就绪事件
//
// 链路注册表在 TLS 完成且证书身份核验通过后，对每条链路恰好
// 发射一次。这是本核心向上层交付链路的唯一信号；另有仅供观测的
// EvtLinkClosed。
type EvtLinkReady struct {
	// Link 新就绪的设备链路
	Link DeviceLink
}

// EvtLinkClosed 链路关闭事件
//
// 在册链路关闭并从注册表移除时发射，用于观测。换入新套接字
// （Reset）与被拒绝的换入都不发射。
type EvtLinkClosed struct {
	// Link 已关闭的设备链路
	Link DeviceLink
}
