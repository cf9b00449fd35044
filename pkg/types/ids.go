// Package types 定义 CoreOverlay 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
)

var (
	// ErrEmptyPeerID 空 PeerID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的 PeerID（非 Base58 或长度不为 32 字节）
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrInvalidNodeID 无效的 NodeID
	ErrInvalidNodeID = errors.New("invalid node ID: must be 32 bytes")
)

// ============================================================================
//                              PeerID - 节点身份
// ============================================================================

// PeerID 节点身份标识
//
// 派生规则：Base58(SHA256(MarshalPublicKey(pub)))
// PeerID 是 NodeID 的 Base58 外部表示。
type PeerID string

// EmptyPeerID 空 PeerID
const EmptyPeerID PeerID = ""

// String 返回 PeerID 字符串
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回前 8 个字符，用于日志
func (id PeerID) ShortString() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 检查 PeerID 是否可以解码为 NodeID
func (id PeerID) Validate() error {
	_, err := id.NodeID()
	return err
}

// NodeID 返回 PeerID 对应的 DHT 键空间位置
func (id PeerID) NodeID() (NodeID, error) {
	if id.IsEmpty() {
		return EmptyNodeID, ErrEmptyPeerID
	}
	b, err := base58.Decode(string(id))
	if err != nil || len(b) != NodeIDSize {
		return EmptyNodeID, ErrInvalidPeerID
	}
	var n NodeID
	copy(n[:], b)
	return n, nil
}

// ParsePeerID 解析并校验 PeerID 字符串
func ParsePeerID(s string) (PeerID, error) {
	id := PeerID(s)
	if err := id.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return id, nil
}

// ============================================================================
//                              NodeID - 键空间位置
// ============================================================================

// NodeIDSize NodeID 字节长度（256 位键空间）
const NodeIDSize = 32

// NodeID DHT 键空间中的位置
//
// 节点的 NodeID 由公钥哈希得到；记录键的 NodeID 由 KeyToNodeID 得到。
type NodeID [NodeIDSize]byte

// EmptyNodeID 空 NodeID
var EmptyNodeID NodeID

// String 返回 Base58 表示（与 PeerID 一致）
func (id NodeID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id[:])
}

// ShortString 返回 Base58 前 8 个字符
func (id NodeID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// PeerID 将 NodeID 转换为 PeerID
func (id NodeID) PeerID() PeerID {
	return PeerID(id.String())
}

// Bytes 返回字节切片
func (id NodeID) Bytes() []byte {
	return id[:]
}

// IsEmpty 检查是否为空
func (id NodeID) IsEmpty() bool {
	return id == EmptyNodeID
}

// NodeIDFromBytes 从字节切片创建 NodeID
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != NodeIDSize {
		return EmptyNodeID, ErrInvalidNodeID
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// KeyToNodeID 将任意记录键映射到键空间
func KeyToNodeID(key string) NodeID {
	return NodeID(sha256.Sum256([]byte(key)))
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符，格式 /name/version
type ProtocolID string

// String 返回协议 ID 字符串
func (p ProtocolID) String() string {
	return string(p)
}
