package interfaces

// ============================================================================
//                              EventBus - 事件总线
// ============================================================================

// EventBus 类型化事件总线
//
// 按事件类型分发；订阅与发射都以事件结构体指针作为类型凭据。
type EventBus interface {
	// Subscribe 订阅事件类型
	Subscribe(eventType interface{}, opts ...SubscriptionOpt) (Subscription, error)

	// Emitter 获取事件发射器
	Emitter(eventType interface{}, opts ...EmitterOpt) (Emitter, error)

	// Close 关闭事件总线
	Close() error
}

// Subscription 事件订阅
type Subscription interface {
	// Out 返回事件通道
	Out() <-chan interface{}

	// Close 取消订阅
	Close() error
}

// Emitter 事件发射器
type Emitter interface {
	// Emit 发射事件
	Emit(evt interface{}) error

	// Close 关闭发射器
	Close() error
}

// SubscriptionSettings 订阅设置
type SubscriptionSettings struct {
	// Buffer 订阅通道缓冲区大小
	Buffer int
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*SubscriptionSettings)

// BufSize 设置订阅缓冲区大小
func BufSize(n int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = n
	}
}

// EmitterSettings 发射器设置
type EmitterSettings struct {
	// Stateful 是否保留最后一个事件供新订阅者接收
	Stateful bool
}

// EmitterOpt 发射器选项
type EmitterOpt func(*EmitterSettings)

// Stateful 标记发射器为有状态
func Stateful() EmitterOpt {
	return func(s *EmitterSettings) {
		s.Stateful = true
	}
}
