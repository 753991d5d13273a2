package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

type testEvent struct {
	Value int
}

func TestSubscribeAndEmit(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(testEvent{Value: 7}))

	select {
	case evt := <-sub.Out():
		assert.Equal(t, testEvent{Value: 7}, evt)
	case <-time.After(time.Second):
		t.Fatal("事件未送达")
	}
}

func TestSubscribeNonPointer(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, err := bus.Subscribe(testEvent{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	_, err = bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

func TestStatefulEmitter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	em, err := bus.Emitter(new(testEvent), interfaces.Stateful())
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(testEvent{Value: 1}))

	// 晚到的订阅者收到最后的事件
	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	select {
	case evt := <-sub.Out():
		assert.Equal(t, testEvent{Value: 1}, evt)
	case <-time.After(time.Second):
		t.Fatal("有状态事件未送达")
	}
}

func TestSlowConsumerDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe(new(testEvent), interfaces.BufSize(1))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	// 缓冲区大小 1，第二个事件被丢弃而不是阻塞
	require.NoError(t, em.Emit(testEvent{Value: 1}))
	require.NoError(t, em.Emit(testEvent{Value: 2}))

	evt := <-sub.Out()
	assert.Equal(t, testEvent{Value: 1}, evt)

	select {
	case evt := <-sub.Out():
		t.Fatalf("不应收到第二个事件: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	// 订阅通道被关闭
	_, ok := <-sub.Out()
	assert.False(t, ok)

	// 关闭后的操作报错
	assert.Error(t, em.Emit(testEvent{}))
	_, err = bus.Subscribe(new(testEvent))
	assert.ErrorIs(t, err, ErrClosed)
}
