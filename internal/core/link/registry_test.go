package link

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/eventbus"
	"github.com/dep2p/go-lanlink/internal/core/identity"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/protocol"
	sectls "github.com/dep2p/go-lanlink/internal/core/security/tls"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/types"
)

// newStore 创建测试身份存储；deviceID 非空时预置设备ID
func newStore(t *testing.T, deviceID string) *identity.Store {
	t.Helper()
	dir := t.TempDir()
	if deviceID != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "device_id"), []byte(deviceID+"\n"), 0644))
	}
	s, err := identity.NewStore(config.IdentityConfig{
		ConfigDir:  dir,
		DeviceName: "test",
		DeviceType: "desktop",
	})
	require.NoError(t, err)
	return s
}

type testEnv struct {
	store    *identity.Store
	bus      *eventbus.Bus
	registry *Registry
	ready    interfaces.Subscription
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newStore(t, "")
	bus := eventbus.NewBus()
	t.Cleanup(func() { bus.Close() })

	ready, err := bus.Subscribe(new(interfaces.EvtLinkReady), interfaces.BufSize(64))
	require.NoError(t, err)

	reg, err := NewRegistry(store, bus, metrics.NewCounters())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	return &testEnv{store: store, bus: bus, registry: reg, ready: ready}
}

// handshake 在内存管道上完成一次真实 TLS 握手
//
// 返回本地（TLS 服务端）侧的连接；对端侧的连接由后台 goroutine
// 持有并保持打开。
func handshake(t *testing.T, local *identity.Store, peer *identity.Store) *tls.Conn {
	t.Helper()

	serverCfg, err := sectls.NewConfigBuilder(local).ServerConfig(peer.DeviceID())
	require.NoError(t, err)
	clientCfg, err := sectls.NewConfigBuilder(peer).ClientConfig(local.DeviceID())
	require.NoError(t, err)

	p1, p2 := net.Pipe()
	server := tls.Server(p1, serverCfg)
	client := tls.Client(p2, clientCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Handshake()
	}()
	require.NoError(t, server.Handshake())
	require.NoError(t, <-errCh)

	// 对端在后台持续读取，本地侧关闭时的 close_notify 不会阻塞在管道上
	go func() { _, _ = io.Copy(io.Discard, client) }()

	// 对端保持连接打开，避免管道另一端被回收
	t.Cleanup(func() { client.Close() })
	return server
}

func identityOf(s *identity.Store) *protocol.Identity {
	info := s.DeviceInfo()
	return &protocol.Identity{
		DeviceID:        info.ID,
		DeviceName:      info.Name,
		DeviceType:      info.Type,
		ProtocolVersion: info.ProtocolVersion,
	}
}

func expectReady(t *testing.T, sub interfaces.Subscription) interfaces.EvtLinkReady {
	t.Helper()
	select {
	case evt := <-sub.Out():
		return evt.(interfaces.EvtLinkReady)
	case <-time.After(time.Second):
		t.Fatal("LinkReady 事件未送达")
		return interfaces.EvtLinkReady{}
	}
}

func expectNoReady(t *testing.T, sub interfaces.Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Out():
		t.Fatalf("不应收到 LinkReady: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddLinkPublishesOnce(t *testing.T) {
	env := newEnv(t)
	peer := newStore(t, "")

	conn := handshake(t, env.store, peer)
	require.NoError(t, env.registry.AddLink(conn, identityOf(peer)))

	evt := expectReady(t, env.ready)
	assert.Equal(t, peer.DeviceID(), evt.Link.DeviceID())
	assert.Equal(t, 1, env.registry.Len())

	got, ok := env.registry.Get(peer.DeviceID())
	require.True(t, ok)
	assert.Equal(t, peer.Certificate().Leaf.Raw, got.DeviceInfo().Certificate.Raw)
}

func TestAddLinkCertIdentityMismatch(t *testing.T) {
	env := newEnv(t)
	peer := newStore(t, "")

	conn := handshake(t, env.store, peer)

	// 身份包宣称的设备ID与证书 CN 不一致
	id := identityOf(peer)
	id.DeviceID = "some_other_device"
	err := env.registry.AddLink(conn, id)
	assert.ErrorIs(t, err, ErrCertIdentityMismatch)
	assert.Equal(t, 0, env.registry.Len())
	expectNoReady(t, env.ready)
}

func TestAddLinkSameCertResetsExisting(t *testing.T) {
	env := newEnv(t)
	peer := newStore(t, "")

	conn1 := handshake(t, env.store, peer)
	require.NoError(t, env.registry.AddLink(conn1, identityOf(peer)))
	first := expectReady(t, env.ready).Link

	// 同一对端、同一证书的第二个套接字透明换入
	conn2 := handshake(t, env.store, peer)
	require.NoError(t, env.registry.AddLink(conn2, identityOf(peer)))

	assert.Equal(t, 1, env.registry.Len())
	got, _ := env.registry.Get(peer.DeviceID())
	assert.Same(t, first, interfaces.DeviceLink(got))

	// 不重复发射 LinkReady
	expectNoReady(t, env.ready)
}

func TestAddLinkCertChangedRejected(t *testing.T) {
	env := newEnv(t)
	peer := newStore(t, "device_b")

	conn1 := handshake(t, env.store, peer)
	require.NoError(t, env.registry.AddLink(conn1, identityOf(peer)))
	expectReady(t, env.ready)

	// 相同设备ID、不同密钥与证书（身份冒用）
	imposter := newStore(t, "device_b")
	conn2 := handshake(t, env.store, imposter)
	err := env.registry.AddLink(conn2, identityOf(imposter))
	assert.ErrorIs(t, err, ErrCertChanged)
	assert.Equal(t, 1, env.registry.Len())
	expectNoReady(t, env.ready)
}

func TestAddLinkUnpairedCap(t *testing.T) {
	if testing.Short() {
		t.Skip("42 次握手较慢，short 模式跳过")
	}

	env := newEnv(t)

	for i := 0; i < types.MaxUnpairedConnections; i++ {
		peer := newStore(t, fmt.Sprintf("unpaired_%02d", i))
		conn := handshake(t, env.store, peer)
		require.NoError(t, env.registry.AddLink(conn, identityOf(peer)))
		expectReady(t, env.ready)
	}
	assert.Equal(t, types.MaxUnpairedConnections, env.registry.Len())

	// 第 43 个未配对设备在发布阶段被拒绝
	extra := newStore(t, "unpaired_extra")
	conn := handshake(t, env.store, extra)
	err := env.registry.AddLink(conn, identityOf(extra))
	assert.ErrorIs(t, err, ErrTooManyUnpaired)
	assert.Equal(t, types.MaxUnpairedConnections, env.registry.Len())
	expectNoReady(t, env.ready)
}

func TestTrustedPeerBypassesCap(t *testing.T) {
	if testing.Short() {
		t.Skip("42 次握手较慢，short 模式跳过")
	}

	env := newEnv(t)

	for i := 0; i < types.MaxUnpairedConnections; i++ {
		peer := newStore(t, fmt.Sprintf("unpaired_%02d", i))
		conn := handshake(t, env.store, peer)
		require.NoError(t, env.registry.AddLink(conn, identityOf(peer)))
		expectReady(t, env.ready)
	}

	trusted := newStore(t, "trusted_peer")
	require.NoError(t, env.store.AddTrustedDevice(trusted.DeviceID(), trusted.Certificate().Leaf))

	conn := handshake(t, env.store, trusted)
	require.NoError(t, env.registry.AddLink(conn, identityOf(trusted)))
	expectReady(t, env.ready)
	assert.Equal(t, types.MaxUnpairedConnections+1, env.registry.Len())
}

func TestLinkCloseRemovesEntry(t *testing.T) {
	env := newEnv(t)
	peer := newStore(t, "")

	conn := handshake(t, env.store, peer)
	require.NoError(t, env.registry.AddLink(conn, identityOf(peer)))
	l := expectReady(t, env.ready).Link

	require.NoError(t, l.Close())
	assert.Equal(t, 0, env.registry.Len())

	// 同一链路的重复关闭是幂等的
	require.NoError(t, l.Close())
	assert.Equal(t, 0, env.registry.Len())
}

func TestLinkSendReceive(t *testing.T) {
	storeA := newStore(t, "")
	storeB := newStore(t, "")

	serverCfg, err := sectls.NewConfigBuilder(storeA).ServerConfig(storeB.DeviceID())
	require.NoError(t, err)
	clientCfg, err := sectls.NewConfigBuilder(storeB).ClientConfig(storeA.DeviceID())
	require.NoError(t, err)

	p1, p2 := net.Pipe()
	server := tls.Server(p1, serverCfg)
	client := tls.Client(p2, clientCfg)

	done := make(chan error, 1)
	go func() { done <- client.Handshake() }()
	require.NoError(t, server.Handshake())
	require.NoError(t, <-done)

	linkA := New(storeB.DeviceInfo(), server, nil)
	linkB := New(storeA.DeviceInfo(), client, nil)
	defer linkA.Close()
	defer linkB.Close()

	p, err := protocol.NewPacket("kdeconnect.ping", map[string]string{"message": "hi"})
	require.NoError(t, err)

	go func() {
		_ = linkA.SendPacket(p)
	}()

	got, err := linkB.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "kdeconnect.ping", got.Type)
}
