// Package metrics 提供发现与会合过程的计数器
//
// 使用原子操作实现并发安全的计数器，供诊断接口查询。
package metrics

import (
	"sync/atomic"
)

// ============================================================================
//                              Counters
// ============================================================================

// Counters 发现与会合计数器
type Counters struct {
	// 广播
	broadcastsSent atomic.Int64

	// UDP 数据报
	datagramsReceived atomic.Int64
	datagramsDropped  atomic.Int64

	// 握手
	handshakesStarted atomic.Int64
	handshakesFailed  atomic.Int64

	// 链路
	linksActive atomic.Int64
	linksTotal  atomic.Int64
}

// NewCounters 创建计数器
func NewCounters() *Counters {
	return &Counters{}
}

// BroadcastSent 记录一轮广播
func (c *Counters) BroadcastSent() {
	c.broadcastsSent.Add(1)
}

// DatagramReceived 记录收到一个数据报
func (c *Counters) DatagramReceived() {
	c.datagramsReceived.Add(1)
}

// DatagramDropped 记录丢弃一个数据报
func (c *Counters) DatagramDropped() {
	c.datagramsDropped.Add(1)
}

// HandshakeStarted 记录一次握手开始
func (c *Counters) HandshakeStarted() {
	c.handshakesStarted.Add(1)
}

// HandshakeFailed 记录一次握手失败
func (c *Counters) HandshakeFailed() {
	c.handshakesFailed.Add(1)
}

// LinkAdded 记录新链路发布
func (c *Counters) LinkAdded() {
	c.linksActive.Add(1)
	c.linksTotal.Add(1)
}

// LinkRemoved 记录链路移除
func (c *Counters) LinkRemoved() {
	c.linksActive.Add(-1)
}

// ============================================================================
//                              Snapshot
// ============================================================================

// Snapshot 计数器快照
type Snapshot struct {
	BroadcastsSent    int64 `json:"broadcasts_sent"`
	DatagramsReceived int64 `json:"datagrams_received"`
	DatagramsDropped  int64 `json:"datagrams_dropped"`
	HandshakesStarted int64 `json:"handshakes_started"`
	HandshakesFailed  int64 `json:"handshakes_failed"`
	LinksActive       int64 `json:"links_active"`
	LinksTotal        int64 `json:"links_total"`
}

// Snapshot 返回当前计数器快照
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BroadcastsSent:    c.broadcastsSent.Load(),
		DatagramsReceived: c.datagramsReceived.Load(),
		DatagramsDropped:  c.datagramsDropped.Load(),
		HandshakesStarted: c.handshakesStarted.Load(),
		HandshakesFailed:  c.handshakesFailed.Load(),
		LinksActive:       c.linksActive.Load(),
		LinksTotal:        c.linksTotal.Load(),
	}
}
