package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dep2p/go-lanlink/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNotIdentity 包类型不是身份包
	ErrNotIdentity = errors.New("packet is not an identity packet")

	// ErrPortOutOfRange 宣告的 TCP 端口超出协议范围
	ErrPortOutOfRange = errors.New("tcp port outside of protocol range")
)

// ============================================================================
//                              Identity - 身份包
// ============================================================================

// identityBody 身份包体的线上格式
type identityBody struct {
	DeviceID             string   `json:"deviceId"`
	DeviceName           string   `json:"deviceName"`
	DeviceType           string   `json:"deviceType"`
	ProtocolVersion      int      `json:"protocolVersion"`
	IncomingCapabilities []string `json:"incomingCapabilities"`
	OutgoingCapabilities []string `json:"outgoingCapabilities"`
	TCPPort              int      `json:"tcpPort,omitempty"`
}

// Identity 解析后的身份包
type Identity struct {
	// DeviceID 对端设备ID
	DeviceID types.DeviceID

	// DeviceName 对端设备名称
	DeviceName string

	// DeviceType 对端设备类型
	DeviceType types.DeviceType

	// ProtocolVersion 对端协议版本
	ProtocolVersion int

	// IncomingCapabilities 对端支持接收的能力集合
	IncomingCapabilities []string

	// OutgoingCapabilities 对端支持发送的能力集合
	OutgoingCapabilities []string

	// TCPPort 对端宣告的 TCP 接受器端口（0 表示未宣告）
	TCPPort int
}

// NewIdentityPacket 从本机设备信息构建身份包
//
// tcpPort 为当前监听的 TCP 端口；通过 TCP 发送的身份行可传 0。
func NewIdentityPacket(info types.DeviceInfo, tcpPort int) (*Packet, error) {
	body := identityBody{
		DeviceID:             info.ID.String(),
		DeviceName:           info.Name,
		DeviceType:           info.Type.String(),
		ProtocolVersion:      info.ProtocolVersion,
		IncomingCapabilities: info.IncomingCapabilities,
		OutgoingCapabilities: info.OutgoingCapabilities,
		TCPPort:              tcpPort,
	}
	if body.IncomingCapabilities == nil {
		body.IncomingCapabilities = []string{}
	}
	if body.OutgoingCapabilities == nil {
		body.OutgoingCapabilities = []string{}
	}
	return NewPacket(types.PacketTypeIdentity, body)
}

// StripCapabilities 返回去掉能力集合的身份包副本
//
// 部分平台不允许广播数据报分片，完整身份包可能超过 MTU 被内核
// 拒绝。去掉能力集合可以显著缩小包体。
func StripCapabilities(p *Packet) (*Packet, error) {
	var body identityBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	body.IncomingCapabilities = []string{}
	body.OutgoingCapabilities = []string{}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal identity body: %w", err)
	}
	return &Packet{ID: p.ID, Type: p.Type, Body: raw}, nil
}

// IdentityFromPacket 从包中提取身份
//
// 拒绝类型不是身份包的输入。
func IdentityFromPacket(p *Packet) (*Identity, error) {
	if p.Type != types.PacketTypeIdentity {
		return nil, fmt.Errorf("%w: %s", ErrNotIdentity, p.Type)
	}

	var body identityBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	return &Identity{
		DeviceID:             types.DeviceID(body.DeviceID),
		DeviceName:           body.DeviceName,
		DeviceType:           types.DeviceTypeFromString(body.DeviceType),
		ProtocolVersion:      body.ProtocolVersion,
		IncomingCapabilities: body.IncomingCapabilities,
		OutgoingCapabilities: body.OutgoingCapabilities,
		TCPPort:              body.TCPPort,
	}, nil
}

// ParseIdentity 从一行字节解析身份包
func ParseIdentity(data []byte) (*Identity, error) {
	p, err := Unserialize(data)
	if err != nil {
		return nil, err
	}
	return IdentityFromPacket(p)
}

// ValidateTCPPort 检查宣告端口是否在协议范围内
func ValidateTCPPort(port int) error {
	if port < types.MinTCPPort || port > types.MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}
	return nil
}

// DeviceInfo 将身份转换为设备信息（不含证书）
func (i *Identity) DeviceInfo() types.DeviceInfo {
	return types.DeviceInfo{
		ID:                   i.DeviceID,
		Name:                 i.DeviceName,
		Type:                 i.DeviceType,
		ProtocolVersion:      i.ProtocolVersion,
		IncomingCapabilities: i.IncomingCapabilities,
		OutgoingCapabilities: i.OutgoingCapabilities,
	}
}
