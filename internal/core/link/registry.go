package link

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/protocol"
	sectls "github.com/dep2p/go-lanlink/internal/core/security/tls"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
	"github.com/dep2p/go-lanlink/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrCertIdentityMismatch 证书 CN 与身份包设备ID不一致
	ErrCertIdentityMismatch = errors.New("certificate identity does not match identity packet")

	// ErrCertChanged 已有链路的证书与新套接字的证书不一致
	ErrCertChanged = errors.New("certificate differs from the one on record")

	// ErrTooManyUnpaired 未配对链路达到上限
	ErrTooManyUnpaired = errors.New("too many unpaired devices")
)

// ============================================================================
//                              Registry
// ============================================================================

// Registry 链路注册表
//
// 不变式：
//   - 每个设备ID同一时刻至多一条链路
//   - 未配对链路数量受 MaxUnpairedConnections 约束（闭区间）
//   - 链路发布前证书 CN 必须等于身份包中的设备ID
//   - 每条链路恰好发射一次 EvtLinkReady
type Registry struct {
	store    interfaces.ConfigStore
	counters *metrics.Counters

	emitReady  interfaces.Emitter
	emitClosed interfaces.Emitter

	mu    sync.Mutex
	links map[types.DeviceID]*Link
}

// NewRegistry 创建链路注册表
func NewRegistry(store interfaces.ConfigStore, bus interfaces.EventBus, counters *metrics.Counters) (*Registry, error) {
	emitReady, err := bus.Emitter(new(interfaces.EvtLinkReady))
	if err != nil {
		return nil, err
	}
	emitClosed, err := bus.Emitter(new(interfaces.EvtLinkClosed))
	if err != nil {
		return nil, err
	}

	return &Registry{
		store:      store,
		counters:   counters,
		emitReady:  emitReady,
		emitClosed: emitClosed,
		links:      make(map[types.DeviceID]*Link),
	}, nil
}

// AddLink 发布一条就绪的待定连接
//
// 握手已完成的套接字在此完成最后的身份核验与去重；任何失败
// 都以关闭套接字收场，不向上传播。
func (r *Registry) AddLink(conn *tls.Conn, identity *protocol.Identity) error {
	state := conn.ConnectionState()

	peerCert, err := sectls.PeerCertificate(state)
	if err != nil {
		_ = conn.Close()
		return err
	}

	// 证书主题中的设备ID必须等于身份包宣称的设备ID
	certDeviceID := types.DeviceID(peerCert.Subject.CommonName)
	if !certDeviceID.Equal(identity.DeviceID) {
		logger.Warn("证书设备ID与身份包不一致，拒绝发布",
			"identity", identity.DeviceID.ShortString(),
			"certificate", certDeviceID.ShortString())
		_ = conn.Close()
		return fmt.Errorf("%w: %s vs %s", ErrCertIdentityMismatch, identity.DeviceID, certDeviceID)
	}

	info := identity.DeviceInfo().WithCertificate(peerCert)

	r.mu.Lock()

	if existing, ok := r.links[info.ID]; ok {
		// 已有链路：证书一致则透明换入新套接字，否则拒绝
		// （防御通过设备ID碰撞实施的身份冒用）
		if !bytes.Equal(existing.DeviceInfo().Certificate.Raw, peerCert.Raw) {
			r.mu.Unlock()
			logger.Warn("换入套接字的证书与在册证书不一致，拒绝",
				"device_id", info.ID.ShortString())
			_ = conn.Close()
			return ErrCertChanged
		}
		r.mu.Unlock()

		existing.Reset(conn)
		return nil
	}

	// 新设备：未配对链路数量受上限约束
	if !r.store.IsTrusted(info.ID) && len(r.links) >= types.MaxUnpairedConnections {
		r.mu.Unlock()
		logger.Warn("未配对设备过多，拒绝新链路",
			"device_id", info.ID.ShortString(),
			"links", types.MaxUnpairedConnections)
		_ = conn.Close()
		return ErrTooManyUnpaired
	}

	l := New(info, conn, r.onLinkClosed)
	r.links[info.ID] = l
	r.mu.Unlock()

	r.counters.LinkAdded()
	logger.Info("链路就绪",
		"device_id", info.ID.ShortString(),
		"device_name", info.Name)

	// 每条链路恰好一次
	_ = r.emitReady.Emit(interfaces.EvtLinkReady{Link: l})
	return nil
}

// onLinkClosed 链路销毁回调
func (r *Registry) onLinkClosed(l *Link) {
	r.mu.Lock()
	current, ok := r.links[l.DeviceID()]
	if !ok || current != l {
		r.mu.Unlock()
		// 注册表与回调句柄不一致属于编程错误
		logger.Error("销毁回调的链路与在册链路不一致",
			"device_id", l.DeviceID().ShortString())
		return
	}
	delete(r.links, l.DeviceID())
	r.mu.Unlock()

	r.counters.LinkRemoved()
	logger.Debug("链路已移除", "device_id", l.DeviceID().ShortString())
	_ = r.emitClosed.Emit(interfaces.EvtLinkClosed{Link: l})
}

// Get 按设备ID查找链路
func (r *Registry) Get(id types.DeviceID) (*Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	return l, ok
}

// Links 返回当前全部链路
func (r *Registry) Links() []interfaces.DeviceLink {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]interfaces.DeviceLink, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	return out
}

// Len 返回当前链路数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// Close 关闭注册表与全部链路
func (r *Registry) Close() error {
	r.mu.Lock()
	links := make([]*Link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()

	var errs error
	for _, l := range links {
		errs = multierr.Append(errs, l.Close())
	}
	errs = multierr.Append(errs, r.emitReady.Close())
	errs = multierr.Append(errs, r.emitClosed.Close())
	return errs
}
