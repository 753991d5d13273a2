package netmon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanlink/config"
)

func testWatcherConfig() config.WatcherConfig {
	cfg := config.DefaultWatcherConfig()
	cfg.Enabled = false // 测试不依赖真实系统监听
	return cfg
}

func TestMonitorNotifyTriggersAnnounce(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(testWatcherConfig(), clk)

	var announced atomic.Int32
	m.SetAnnouncer(func() { announced.Add(1) })

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// 同一事件循环迭代内的两个事件只触发一次广播
	m.NotifyNetworkChange()
	m.NotifyNetworkChange()
	clk.Add(time.Millisecond)

	assert.Equal(t, int32(1), announced.Load())
}

type fakeAux struct {
	stops  atomic.Int32
	starts atomic.Int32
}

func (f *fakeAux) StartAnnouncing() error { return nil }
func (f *fakeAux) StopAnnouncing()        {}
func (f *fakeAux) StartDiscovering() error {
	f.starts.Add(1)
	return nil
}
func (f *fakeAux) StopDiscovering() {
	f.stops.Add(1)
}

func TestMonitorRestartsAuxiliaryDiscovery(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(testWatcherConfig(), clk)
	m.SetAnnouncer(func() {})

	aux := &fakeAux{}
	m.SetAuxiliaryDiscovery(aux)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.NotifyNetworkChange()
	clk.Add(time.Millisecond)

	assert.Equal(t, int32(1), aux.stops.Load())
	assert.Equal(t, int32(1), aux.starts.Load())
}

func TestEventTypeTriggersAnnouncement(t *testing.T) {
	assert.True(t, EventInterfaceUp.TriggersAnnouncement())
	assert.True(t, EventAddressAdded.TriggersAnnouncement())
	assert.True(t, EventNetworkChanged.TriggersAnnouncement())
	assert.False(t, EventInterfaceDown.TriggersAnnouncement())
	assert.False(t, EventAddressRemoved.TriggersAnnouncement())
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	m := NewMonitor(testWatcherConfig(), clock.NewMock())
	m.SetAnnouncer(func() {})

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}
