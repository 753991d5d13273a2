package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
)

// ============================================================================
//                              Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	out       chan interface{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// Out 返回事件通道
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Close 取消订阅
//
// Close 是并发安全的，可以多次调用。
// 关闭后会：
//  1. 从总线移除订阅
//  2. 后台排空通道（防止阻塞发射者）
//  3. 关闭通道
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.bus.removeSub(s)

		// 后台排空通道，防止阻塞发射者
		go func() {
			for range s.out {
				// 丢弃剩余事件
			}
		}()

		close(s.out)
	})

	return nil
}

// markBusClosed 总线整体关闭时的快速关闭路径
//
// 调用方已持有节点锁并清空了 sinks，不再回调 removeSub。
func (s *Subscription) markBusClosed() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.out)
	})
}

// ============================================================================
//                              Emitter 实现
// ============================================================================

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	typ       reflect.Type
	closed    atomic.Bool
	closeOnce sync.Once
}

// Emit 发射事件
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() || e.bus.closed.Load() {
		return errors.New("emitter is closed")
	}

	e.node.emit(event)
	return nil
}

// Close 关闭发射器
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)

		if e.node.nEmitters.Add(-1) == 0 {
			e.bus.tryDropNode(e.typ)
		}
	})

	return nil
}
