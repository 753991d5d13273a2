package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrMalformedPacket 包结构损坏
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrMissingType 包缺少类型标签
	ErrMissingType = errors.New("packet has no type")
)

// ============================================================================
//                              Packet
// ============================================================================

// Packet 网络包
//
// 本核心只关心身份包；Body 保持原始 JSON，由各包类型的
// 解析函数按需展开。
type Packet struct {
	// ID 包序号（毫秒时间戳）
	ID int64 `json:"id"`

	// Type 包类型标签
	Type string `json:"type"`

	// Body 包体
	Body json.RawMessage `json:"body"`
}

// NewPacket 创建指定类型的包
func NewPacket(packetType string, body interface{}) (*Packet, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal packet body: %w", err)
	}
	return &Packet{
		ID:   time.Now().UnixMilli(),
		Type: packetType,
		Body: raw,
	}, nil
}

// Serialize 编码为单行记录
//
// 返回的字节串恰好包含一个行终止符，位于末尾。
func (p *Packet) Serialize() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	return append(data, '\n'), nil
}

// Unserialize 从一行字节解析包
//
// 截断或结构损坏的输入返回 ErrMalformedPacket；
// 缺少类型标签的包返回 ErrMissingType。
func Unserialize(data []byte) (*Packet, error) {
	data = bytes.TrimRight(data, "\r\n")
	if len(data) == 0 {
		return nil, ErrMalformedPacket
	}

	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if p.Type == "" {
		return nil, ErrMissingType
	}
	return &p, nil
}
