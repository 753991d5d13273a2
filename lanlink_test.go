package lanlink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/types"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func newNode(t *testing.T, listenPort, broadcastPort int, extra ...Option) *Node {
	t.Helper()
	opts := append([]Option{
		WithConfigDir(t.TempDir()),
		WithDeviceName("node"),
		WithDeviceType("laptop"),
		WithTestMode(),
		WithUDPPorts(broadcastPort, listenPort),
		WithoutNetworkWatcher(),
	}, extra...)

	n, err := New(opts...)
	require.NoError(t, err)
	return n
}

func TestNewAppliesOptions(t *testing.T) {
	n := newNode(t, 40001, 40002)

	assert.NoError(t, n.DeviceID().Validate())
	assert.Equal(t, "node", n.DeviceInfo().Name)
	assert.Equal(t, types.DeviceTypeLaptop, n.DeviceInfo().Type)
	assert.False(t, n.IsRunning())
	assert.Equal(t, 0, n.TCPPort())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(WithConfigDir(""))
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(WithDeviceName(""))
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestNodeStartStop(t *testing.T) {
	n := newNode(t, freeUDPPort(t), freeUDPPort(t))

	require.NoError(t, n.Start(context.Background()))
	assert.True(t, n.IsRunning())
	assert.GreaterOrEqual(t, n.TCPPort(), types.MinTCPPort)
	assert.LessOrEqual(t, n.TCPPort(), types.MaxTCPPort)

	// 重复启动报错
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, n.Stop(context.Background()))
	assert.False(t, n.IsRunning())

	// 重复停止幂等
	require.NoError(t, n.Stop(context.Background()))
}

func TestBroadcastRequiresStart(t *testing.T) {
	n := newNode(t, freeUDPPort(t), freeUDPPort(t))
	assert.ErrorIs(t, n.Broadcast(), ErrNotStarted)
}

func TestTwoNodesDiscover(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	a := newNode(t, portA, portB)
	b := newNode(t, portB, portA, WithoutUDPBroadcast())

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop(context.Background())

	subA, err := a.SubscribeLinkReady()
	require.NoError(t, err)
	subB, err := b.SubscribeLinkReady()
	require.NoError(t, err)

	require.NoError(t, a.Broadcast())

	waitLink := func(sub interfaces.Subscription, want types.DeviceID) {
		select {
		case evt := <-sub.Out():
			link := evt.(interfaces.EvtLinkReady).Link
			assert.Equal(t, want, link.DeviceID())
		case <-time.After(5 * time.Second):
			t.Fatal("LinkReady 事件未送达")
		}
	}

	waitLink(subB, a.DeviceID())
	waitLink(subA, b.DeviceID())

	assert.Len(t, a.Links(), 1)
	assert.Len(t, b.Links(), 1)
	assert.GreaterOrEqual(t, a.Metrics().LinksActive, int64(1))
}
