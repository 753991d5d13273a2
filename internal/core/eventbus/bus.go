// Package eventbus 实现类型化事件总线
//
// 链路注册表通过总线向上层发布 EvtLinkReady（交付链路的唯一
// 信号），以及仅供观测的 EvtLinkClosed。订阅与发射都以事件结构体
// 指针作为类型凭据。
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrNonPointerType 非指针类型
	ErrNonPointerType = errors.New("subscribe called with non-pointer type")
)

// ============================================================================
//                              Bus 实现
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	closed atomic.Bool

	// nodes 事件类型节点映射
	nodes map[reflect.Type]*node
}

// node 事件类型节点
type node struct {
	lk        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription // 订阅者列表
	nEmitters atomic.Int32    // 发射器引用计数
	keepLast  bool            // 是否保持最后一个事件（Stateful）
	last      interface{}     // 最后一个事件
	dropCount atomic.Int64    // 丢弃事件计数（用于慢消费者警告）
}

// 确保实现 EventBus 接口
var _ interfaces.EventBus = (*Bus)(nil)

// NewBus 创建新的事件总线
func NewBus() *Bus {
	return &Bus{
		nodes: make(map[reflect.Type]*node),
	}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(eventType interface{}, opts ...interfaces.SubscriptionOpt) (interfaces.Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	elemType, err := pointerElemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := &interfaces.SubscriptionSettings{
		Buffer: 16, // 默认缓冲区大小
	}
	for _, opt := range opts {
		opt(settings)
	}

	sub := &Subscription{
		bus: b,
		typ: elemType,
		out: make(chan interface{}, settings.Buffer),
	}

	b.withNode(elemType, func(n *node) {
		n.sinks = append(n.sinks, sub)

		// 如果是有状态节点，发送最后的事件
		if n.keepLast && n.last != nil {
			select {
			case sub.out <- n.last:
			default:
				// 缓冲区满，跳过
			}
		}
	})

	return sub, nil
}

// Emitter 获取发射器
func (b *Bus) Emitter(eventType interface{}, opts ...interfaces.EmitterOpt) (interfaces.Emitter, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	elemType, err := pointerElemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := &interfaces.EmitterSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	var n *node
	b.withNode(elemType, func(node *node) {
		n = node
		n.nEmitters.Add(1)

		if settings.Stateful {
			n.keepLast = true
		}
	})

	return &Emitter{
		bus:  b,
		node: n,
		typ:  elemType,
	}, nil
}

// Close 关闭事件总线
//
// 关闭后的 Subscribe/Emitter 调用返回 ErrClosed；
// 已存在的订阅通道被关闭。
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for typ, n := range b.nodes {
		n.lk.Lock()
		for _, sub := range n.sinks {
			sub.markBusClosed()
		}
		n.sinks = nil
		n.lk.Unlock()
		delete(b.nodes, typ)
	}
	return nil
}

// ============================================================================
//                              内部方法
// ============================================================================

// pointerElemType 取事件指针凭据的元素类型
func pointerElemType(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ == nil {
		return nil, ErrInvalidEventType
	}
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// withNode 在节点上执行操作
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) {
	b.mu.Lock()

	n, ok := b.nodes[typ]
	if !ok {
		n = &node{
			typ:   typ,
			sinks: make([]*Subscription, 0),
		}
		b.nodes[typ] = n
	}

	n.lk.Lock()
	b.mu.Unlock()

	cb(n)
	n.lk.Unlock()
}

// tryDropNode 尝试删除节点（如果没有订阅者和发射器）
func (b *Bus) tryDropNode(typ reflect.Type) {
	b.mu.Lock()
	n, ok := b.nodes[typ]
	if !ok {
		b.mu.Unlock()
		return
	}

	n.lk.Lock()
	if len(n.sinks) > 0 || n.nEmitters.Load() > 0 {
		n.lk.Unlock()
		b.mu.Unlock()
		return
	}
	n.lk.Unlock()

	delete(b.nodes, typ)
	b.mu.Unlock()
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		return
	}

	n.lk.Lock()
	b.mu.Unlock()

	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}

	shouldDrop := len(n.sinks) == 0 && n.nEmitters.Load() == 0
	n.lk.Unlock()

	if shouldDrop {
		b.tryDropNode(sub.typ)
	}
}

// emit 发射事件到所有订阅者
func (n *node) emit(event interface{}) {
	n.lk.Lock()
	defer n.lk.Unlock()

	// 保存最后的事件（如果是有状态模式）
	if n.keepLast {
		n.last = event
	}

	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
			// 成功发送
		default:
			// 缓冲区满，丢弃事件
			dropped := n.dropCount.Add(1)

			// 每丢弃 100 个事件警告一次，避免日志泛滥
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"dropped", dropped,
					"type", n.typ.String(),
					"reason", "subscriber buffer full")
			}
		}
	}
}
