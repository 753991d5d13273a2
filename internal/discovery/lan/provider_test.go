package lan

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/eventbus"
	"github.com/dep2p/go-lanlink/internal/core/identity"
	"github.com/dep2p/go-lanlink/internal/core/link"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/protocol"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// testNode 一个完整的本地实例（身份存储 + 注册表 + 提供者）
type testNode struct {
	store    *identity.Store
	bus      *eventbus.Bus
	registry *link.Registry
	provider *Provider
	counters *metrics.Counters
	ready    interfaces.Subscription
}

// freeUDPPort 申请一个空闲 UDP 端口
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

// newTestStore 创建测试身份存储；deviceID 非空时预置设备ID
func newTestStore(t *testing.T, deviceID string) *identity.Store {
	t.Helper()
	dir := t.TempDir()
	if deviceID != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "device_id"), []byte(deviceID+"\n"), 0644))
	}
	s, err := identity.NewStore(config.IdentityConfig{
		ConfigDir:  dir,
		DeviceName: "node",
		DeviceType: "desktop",
	})
	require.NoError(t, err)
	return s
}

// newTestNode 启动一个测试实例
func newTestNode(t *testing.T, listenPort, broadcastPort int, disableBroadcast bool) *testNode {
	t.Helper()

	store := newTestStore(t, "")
	bus := eventbus.NewBus()
	t.Cleanup(func() { bus.Close() })

	ready, err := bus.Subscribe(new(interfaces.EvtLinkReady), interfaces.BufSize(16))
	require.NoError(t, err)

	counters := metrics.NewCounters()
	registry, err := link.NewRegistry(store, bus, counters)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	p := NewProvider(config.LanConfig{
		UDPBroadcastPort:    broadcastPort,
		UDPListenPort:       listenPort,
		TestMode:            true,
		DisableUDPBroadcast: disableBroadcast,
	}, store, registry, counters)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { p.Stop() })

	return &testNode{
		store:    store,
		bus:      bus,
		registry: registry,
		provider: p,
		counters: counters,
		ready:    ready,
	}
}

func waitLinkReady(t *testing.T, n *testNode) interfaces.DeviceLink {
	t.Helper()
	select {
	case evt := <-n.ready.Out():
		return evt.(interfaces.EvtLinkReady).Link
	case <-time.After(5 * time.Second):
		t.Fatal("LinkReady 事件未送达")
		return nil
	}
}

// ============================================================================
//                              端到端会合
// ============================================================================

// TestRendezvousUnpaired 未配对设备的完整会合
//
// A 广播身份，B 收到后回拨 A 的 TCP 端口，双方 TLS 升级，
// 两侧各发布一条指向对方的链路。
func TestRendezvousUnpaired(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	// A 广播到 B 的监听端口；B 不广播，避免双向同时会合
	a := newTestNode(t, portA, portB, false)
	b := newTestNode(t, portB, portA, true)

	a.provider.Broadcast()

	linkAtB := waitLinkReady(t, b)
	linkAtA := waitLinkReady(t, a)

	assert.Equal(t, a.store.DeviceID(), linkAtB.DeviceID())
	assert.Equal(t, b.store.DeviceID(), linkAtA.DeviceID())
	assert.Equal(t, 1, a.registry.Len())
	assert.Equal(t, 1, b.registry.Len())

	// 证书在发布时被捕获
	assert.Equal(t, b.store.Certificate().Leaf.Raw, linkAtA.DeviceInfo().Certificate.Raw)
	assert.Equal(t, a.store.Certificate().Leaf.Raw, linkAtB.DeviceInfo().Certificate.Raw)

	// 待定表已清空（所有权移交）
	assert.Equal(t, 0, a.provider.PendingCount())
	assert.Equal(t, 0, b.provider.PendingCount())
}

// TestRendezvousPaired 已配对设备的会合（VerifyPeer）
func TestRendezvousPaired(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	a := newTestNode(t, portA, portB, false)
	b := newTestNode(t, portB, portA, true)

	require.NoError(t, a.store.AddTrustedDevice(b.store.DeviceID(), b.store.Certificate().Leaf))
	require.NoError(t, b.store.AddTrustedDevice(a.store.DeviceID(), a.store.Certificate().Leaf))

	a.provider.Broadcast()

	linkAtB := waitLinkReady(t, b)
	linkAtA := waitLinkReady(t, a)
	assert.Equal(t, a.store.DeviceID(), linkAtB.DeviceID())
	assert.Equal(t, b.store.DeviceID(), linkAtA.DeviceID())
}

// TestRendezvousTamperedCertificate 固定证书不符时握手失败
func TestRendezvousTamperedCertificate(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	a := newTestNode(t, portA, portB, false)
	b := newTestNode(t, portB, portA, true)

	// A 为 B 固定了一张错误的证书（CN 相同、密钥不同）
	imposter := newTestStore(t, b.store.DeviceID().String())
	require.NoError(t, a.store.AddTrustedDevice(b.store.DeviceID(), imposter.Certificate().Leaf))

	a.provider.Broadcast()

	// 任何一侧都不应发布链路
	time.Sleep(time.Second)
	assert.Equal(t, 0, a.registry.Len())
	assert.Equal(t, 0, b.registry.Len())
}

// TestReverseConnectionFallback 反向连接回退
//
// 向 B 递交一个 TCP 不可达的身份包，B 拨号失败后应向来源地址
// 单播自己的身份，邀请对端反向拨号。
func TestReverseConnectionFallback(t *testing.T) {
	announcerPort := freeUDPPort(t)
	listenPort := freeUDPPort(t)

	// 扮演宣告方的裸 UDP 套接字（绑定在 B 的广播端口上）
	announcer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: announcerPort})
	require.NoError(t, err)
	defer announcer.Close()

	b := newTestNode(t, listenPort, announcerPort, false)

	// 先排空 B 启动时的例行广播，避免与反向邀请混淆
	drain := make([]byte, 65536)
	_ = announcer.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	for {
		if _, _, err := announcer.ReadFromUDP(drain); err != nil {
			break
		}
	}

	closedPort := chooseClosedTCPPort(t)
	payload := buildIdentityDatagram(t, "phantom_announcer", closedPort)
	_, err = announcer.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: listenPort})
	require.NoError(t, err)

	// 期待 B 的反向邀请到达宣告方
	require.NoError(t, announcer.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 65536)
	for {
		n, _, err := announcer.ReadFromUDP(buf)
		require.NoError(t, err, "未收到反向连接邀请")

		id, err := protocol.ParseIdentity(buf[:n])
		if err != nil {
			continue
		}
		if id.DeviceID.Equal(b.store.DeviceID()) {
			// 邀请包宣告了 B 的 TCP 端口，对端可以反向拨号
			assert.Equal(t, b.provider.TCPPort(), id.TCPPort)
			return
		}
	}
}

// TestSelfDatagramSuppressed 自身广播回声被抑制
func TestSelfDatagramSuppressed(t *testing.T) {
	listenPort := freeUDPPort(t)
	b := newTestNode(t, listenPort, freeUDPPort(t), true)

	sender, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sender.Close()

	// B 自己的身份从网络上回来了
	packet, err := protocol.NewIdentityPacket(b.store.DeviceInfo(), b.provider.TCPPort())
	require.NoError(t, err)
	payload, err := packet.Serialize()
	require.NoError(t, err)
	_, err = sender.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: listenPort})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, b.provider.PendingCount())
	assert.Equal(t, 0, b.registry.Len())
	assert.GreaterOrEqual(t, b.counters.Snapshot().DatagramsDropped, int64(1))
}

// TestPortRangeDatagramDropped 端口超出协议范围的身份包被丢弃
func TestPortRangeDatagramDropped(t *testing.T) {
	listenPort := freeUDPPort(t)
	b := newTestNode(t, listenPort, freeUDPPort(t), true)

	sender, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sender.Close()

	for _, port := range []int{types.MinTCPPort - 1, types.MaxTCPPort + 1} {
		payload := buildIdentityDatagram(t, "out_of_range_peer", port)
		_, err = sender.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: listenPort})
		require.NoError(t, err)
	}

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, b.provider.PendingCount())
	assert.Equal(t, 0, b.registry.Len())
}

// ============================================================================
//                              接受侧防护
// ============================================================================

// TestInboundIdentityTooLong TLS 之前超过上限的连接被关闭
func TestInboundIdentityTooLong(t *testing.T) {
	b := newTestNode(t, freeUDPPort(t), freeUDPPort(t), true)

	conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(b.provider.TCPPort())))
	require.NoError(t, err)
	defer conn.Close()

	junk := make([]byte, types.MaxIdentityLineLength+1)
	for i := range junk {
		junk[i] = 'a'
	}
	_, err = conn.Write(junk)
	require.NoError(t, err)

	// 对端应关闭连接
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, 0, b.registry.Len())
}

// TestInboundIdentityTimeout 时限内未送达身份行的连接被关闭
func TestInboundIdentityTimeout(t *testing.T) {
	b := newTestNode(t, freeUDPPort(t), freeUDPPort(t), true)

	conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(b.provider.TCPPort())))
	require.NoError(t, err)
	defer conn.Close()

	// 什么都不发，等待超时
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	start := time.Now()
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

// ============================================================================
//                              端口选择
// ============================================================================

// TestPortScanSkipsOccupied 范围下界被占用时递增选择
func TestPortScanSkipsOccupied(t *testing.T) {
	occupied, err := net.Listen("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(types.MinTCPPort)))
	if err != nil {
		t.Skipf("无法占用端口 %d: %v", types.MinTCPPort, err)
	}
	defer occupied.Close()

	b := newTestNode(t, freeUDPPort(t), freeUDPPort(t), true)
	assert.Greater(t, b.provider.TCPPort(), types.MinTCPPort)
	assert.LessOrEqual(t, b.provider.TCPPort(), types.MaxTCPPort)
}

// ============================================================================
//                              工具
// ============================================================================

// buildIdentityDatagram 构造一个外来身份数据报
func buildIdentityDatagram(t *testing.T, deviceID string, tcpPort int) []byte {
	t.Helper()
	packet, err := protocol.NewIdentityPacket(types.DeviceInfo{
		ID:              types.DeviceID(deviceID),
		Name:            "Phantom",
		Type:            types.DeviceTypePhone,
		ProtocolVersion: types.ProtocolVersion,
	}, tcpPort)
	require.NoError(t, err)
	payload, err := packet.Serialize()
	require.NoError(t, err)
	return payload
}

// chooseClosedTCPPort 在协议范围内找一个无人监听的端口
func chooseClosedTCPPort(t *testing.T) int {
	t.Helper()
	for port := types.MaxTCPPort; port >= types.MinTCPPort; port-- {
		conn, err := net.DialTimeout("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 100*time.Millisecond)
		if err != nil {
			return port
		}
		_ = conn.Close()
	}
	t.Fatal("协议范围内没有关闭的端口")
	return 0
}

// TestBroadcasterDestinations 目的地址：广播/回环在前，静态对端随后
func TestBroadcasterDestinations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom_devices"),
		[]byte("10.0.0.7\nnot-an-ip\n192.168.1.20\n"), 0644))

	store, err := identity.NewStore(config.IdentityConfig{
		ConfigDir:  dir,
		DeviceName: "node",
		DeviceType: "desktop",
	})
	require.NoError(t, err)

	cfg := config.LanConfig{UDPBroadcastPort: 1716, UDPListenPort: 1716, TestMode: true}
	b := newBroadcaster(cfg, store, metrics.NewCounters(), nil, func() int { return 1716 })

	dests := b.destinations()
	require.Len(t, dests, 3)
	assert.Equal(t, "127.0.0.1", dests[0].IP.String())
	assert.Equal(t, "10.0.0.7", dests[1].IP.String())
	assert.Equal(t, "192.168.1.20", dests[2].IP.String())

	for _, d := range dests {
		assert.Equal(t, 1716, d.Port)
	}
}

// TestBroadcastDisabledByEnv 环境变量禁用广播
func TestBroadcastDisabledByEnv(t *testing.T) {
	t.Setenv(disableBroadcastEnv, "1")

	store := newTestStore(t, "")
	cfg := config.LanConfig{UDPBroadcastPort: 1716, UDPListenPort: 1716, TestMode: true}
	counters := metrics.NewCounters()
	b := newBroadcaster(cfg, store, counters, nil, func() int { return 1716 })

	// conn 为 nil：禁用时不应触碰套接字
	b.Broadcast()
	assert.Equal(t, int64(0), counters.Snapshot().BroadcastsSent)
}

// TestPendingTableCap 待定表容量（闭区间）
func TestPendingTableCap(t *testing.T) {
	table := newPendingTable()

	for i := 0; i < types.MaxRememberedIdentityPackets; i++ {
		require.True(t, table.TryAdd(&pendingConn{}))
	}
	assert.True(t, table.Full())
	assert.False(t, table.TryAdd(&pendingConn{}), "超出容量的登记应被拒绝")

	assert.Equal(t, types.MaxRememberedIdentityPackets, table.Len())
}

// TestConnStateString 状态机标签
func TestConnStateString(t *testing.T) {
	cases := map[ConnState]string{
		StateDialing:          "dialing",
		StateWritingIdentity:  "writing_identity",
		StateAwaitingIdentity: "awaiting_identity",
		StateTLSHandshaking:   "tls_handshaking",
		StateReady:            "ready",
		StateDead:             "dead",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

// TestProviderDoubleStart 重复启动报错
func TestProviderDoubleStart(t *testing.T) {
	b := newTestNode(t, freeUDPPort(t), freeUDPPort(t), true)
	err := b.provider.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}
