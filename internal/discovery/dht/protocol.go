// Package dht 提供 Kademlia 分布式哈希表
//
// 节点与记录键都映射到 256 位键空间（SHA-256），按 XOR 距离路由。
// 请求经 Host 的 /coreoverlay/kad/1.0.0 流发送，每条流承载一次请求/响应。
package dht

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// ============================================================================
//                              协议定义
// ============================================================================

// ProtocolID DHT 协议 ID
const ProtocolID types.ProtocolID = "/coreoverlay/kad/1.0.0"

// MaxMessageSize 单条消息最大字节数
const MaxMessageSize = 1 << 20

// ============================================================================
//                              消息类型
// ============================================================================

// MessageType 消息类型
//
// 响应类型等于请求类型 + 1。
type MessageType uint8

const (
	// MessageTypePing PING 请求
	MessageTypePing MessageType = iota + 1
	// MessageTypePingResponse PING 响应
	MessageTypePingResponse

	// MessageTypeFindNode FIND_NODE 请求
	MessageTypeFindNode
	// MessageTypeFindNodeResponse FIND_NODE 响应
	MessageTypeFindNodeResponse

	// MessageTypeFindValue FIND_VALUE 请求
	MessageTypeFindValue
	// MessageTypeFindValueResponse FIND_VALUE 响应
	MessageTypeFindValueResponse

	// MessageTypeStore STORE 请求
	MessageTypeStore
	// MessageTypeStoreResponse STORE 响应
	MessageTypeStoreResponse

	// MessageTypeAddProvider ADD_PROVIDER 请求
	MessageTypeAddProvider
	// MessageTypeAddProviderResponse ADD_PROVIDER 响应
	MessageTypeAddProviderResponse

	// MessageTypeGetProviders GET_PROVIDERS 请求
	MessageTypeGetProviders
	// MessageTypeGetProvidersResponse GET_PROVIDERS 响应
	MessageTypeGetProvidersResponse
)

// String 返回消息类型的字符串表示
func (m MessageType) String() string {
	switch m {
	case MessageTypePing:
		return "PING"
	case MessageTypePingResponse:
		return "PING_RESPONSE"
	case MessageTypeFindNode:
		return "FIND_NODE"
	case MessageTypeFindNodeResponse:
		return "FIND_NODE_RESPONSE"
	case MessageTypeFindValue:
		return "FIND_VALUE"
	case MessageTypeFindValueResponse:
		return "FIND_VALUE_RESPONSE"
	case MessageTypeStore:
		return "STORE"
	case MessageTypeStoreResponse:
		return "STORE_RESPONSE"
	case MessageTypeAddProvider:
		return "ADD_PROVIDER"
	case MessageTypeAddProviderResponse:
		return "ADD_PROVIDER_RESPONSE"
	case MessageTypeGetProviders:
		return "GET_PROVIDERS"
	case MessageTypeGetProvidersResponse:
		return "GET_PROVIDERS_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// IsRequest 是否为请求类型
func (m MessageType) IsRequest() bool {
	return m >= MessageTypePing && m <= MessageTypeGetProvidersResponse && m%2 == 1
}

// ResponseType 返回请求对应的响应类型
func (m MessageType) ResponseType() MessageType {
	return m + 1
}

// ============================================================================
//                              消息结构
// ============================================================================

// PeerRecord 消息中携带的节点信息
type PeerRecord struct {
	// ID 节点 PeerID
	ID types.PeerID `json:"id"`

	// Addrs 节点地址
	Addrs []string `json:"addrs,omitempty"`
}

// Message DHT 消息
type Message struct {
	// Type 消息类型
	Type MessageType `json:"type"`

	// RequestID 请求 ID，响应沿用请求的 ID
	RequestID string `json:"request_id"`

	// Sender 发送者
	Sender types.PeerID `json:"sender"`

	// SenderAddrs 发送者地址
	SenderAddrs []string `json:"sender_addrs,omitempty"`

	// Target FIND_NODE 目标（Base58 编码的 NodeID）
	Target string `json:"target,omitempty"`

	// Key 记录键
	Key string `json:"key,omitempty"`

	// Value 记录值
	Value []byte `json:"value,omitempty"`

	// TTL 记录存活时间（秒）
	TTL uint32 `json:"ttl,omitempty"`

	// CloserPeers 更近的节点
	CloserPeers []PeerRecord `json:"closer_peers,omitempty"`

	// Providers Provider 列表
	Providers []PeerRecord `json:"providers,omitempty"`

	// Success 请求是否成功
	Success bool `json:"success"`

	// Error 错误信息
	Error string `json:"error,omitempty"`
}

// TargetID 解析 Target 字段
func (m *Message) TargetID() (types.NodeID, error) {
	return types.PeerID(m.Target).NodeID()
}

// TTLDuration 返回 TTL 时长
func (m *Message) TTLDuration() time.Duration {
	return time.Duration(m.TTL) * time.Second
}

// ============================================================================
//                              编解码
// ============================================================================

// WriteMessage 写入一条消息：4 字节大端长度 + JSON
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err = w.Write(buf)
	return err
}

// ReadMessage 读取一条消息
func ReadMessage(r io.Reader) (*Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// ============================================================================
//                              消息构造
// ============================================================================

func newRequest(t MessageType, sender types.AddrInfo) *Message {
	return &Message{
		Type:        t,
		RequestID:   uuid.NewString(),
		Sender:      sender.ID,
		SenderAddrs: sender.AddrStrings(),
	}
}

// NewPingRequest 创建 PING 请求
func NewPingRequest(sender types.AddrInfo) *Message {
	return newRequest(MessageTypePing, sender)
}

// NewFindNodeRequest 创建 FIND_NODE 请求
func NewFindNodeRequest(sender types.AddrInfo, target types.NodeID) *Message {
	msg := newRequest(MessageTypeFindNode, sender)
	msg.Target = target.String()
	return msg
}

// NewFindValueRequest 创建 FIND_VALUE 请求
func NewFindValueRequest(sender types.AddrInfo, key string) *Message {
	msg := newRequest(MessageTypeFindValue, sender)
	msg.Key = key
	return msg
}

// NewStoreRequest 创建 STORE 请求
func NewStoreRequest(sender types.AddrInfo, key string, value []byte, ttl time.Duration) *Message {
	msg := newRequest(MessageTypeStore, sender)
	msg.Key = key
	msg.Value = value
	msg.TTL = uint32(ttl / time.Second)
	return msg
}

// NewAddProviderRequest 创建 ADD_PROVIDER 请求
func NewAddProviderRequest(sender types.AddrInfo, key string, ttl time.Duration) *Message {
	msg := newRequest(MessageTypeAddProvider, sender)
	msg.Key = key
	msg.TTL = uint32(ttl / time.Second)
	return msg
}

// NewGetProvidersRequest 创建 GET_PROVIDERS 请求
func NewGetProvidersRequest(sender types.AddrInfo, key string) *Message {
	msg := newRequest(MessageTypeGetProviders, sender)
	msg.Key = key
	return msg
}

// NewResponse 创建对 req 的成功响应
func NewResponse(req *Message, sender types.AddrInfo) *Message {
	return &Message{
		Type:        req.Type.ResponseType(),
		RequestID:   req.RequestID,
		Sender:      sender.ID,
		SenderAddrs: sender.AddrStrings(),
		Key:         req.Key,
		Success:     true,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(req *Message, sender types.AddrInfo, err error) *Message {
	resp := NewResponse(req, sender)
	resp.Success = false
	resp.Error = err.Error()
	return resp
}

// peerRecordsFromNodes 将路由节点转换为消息中的节点信息
func peerRecordsFromNodes(nodes []*RoutingNode) []PeerRecord {
	out := make([]PeerRecord, 0, len(nodes))
	for _, n := range nodes {
		rec := PeerRecord{ID: n.PeerID()}
		for _, a := range n.Addrs {
			rec.Addrs = append(rec.Addrs, a.String())
		}
		out = append(out, rec)
	}
	return out
}

// AddrInfo 将节点信息转换为 AddrInfo，无法解析的地址被跳过
func (pr PeerRecord) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: pr.ID, Addrs: parseAddrs(pr.Addrs)}
}
