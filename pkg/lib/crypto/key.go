// Package crypto 节点身份密钥
//
// 默认使用 Ed25519，另支持 Secp256k1。PeerID 与 NodeID 都由序列化公钥的
// SHA256 得到，见 NodeIDFromPublicKey。
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"strings"
)

// KeyType 序列化格式第一个字节即为该值，不得重新编号
type KeyType int

const (
	KeyTypeUnspecified KeyType = 0
	KeyTypeEd25519     KeyType = 2
	KeyTypeSecp256k1   KeyType = 3
)

// keyScheme 一种密钥算法的构造函数集合
type keyScheme struct {
	name      string
	generate  func(io.Reader) (PrivateKey, PublicKey, error)
	parsePub  func([]byte) (PublicKey, error)
	parsePriv func([]byte) (PrivateKey, error)
}

var schemes = map[KeyType]keyScheme{
	KeyTypeEd25519: {
		name:      "Ed25519",
		generate:  GenerateEd25519Key,
		parsePub:  UnmarshalEd25519PublicKey,
		parsePriv: UnmarshalEd25519PrivateKey,
	},
	KeyTypeSecp256k1: {
		name:      "Secp256k1",
		generate:  GenerateSecp256k1Key,
		parsePub:  UnmarshalSecp256k1PublicKey,
		parsePriv: UnmarshalSecp256k1PrivateKey,
	},
}

func (kt KeyType) String() string {
	if s, ok := schemes[kt]; ok {
		return s.name
	}
	if kt == KeyTypeUnspecified {
		return "Unspecified"
	}
	return "Unknown"
}

// ParseKeyType 名称不区分大小写，空串视为 Ed25519
func ParseKeyType(name string) (KeyType, error) {
	if name == "" {
		return KeyTypeEd25519, nil
	}
	for kt, s := range schemes {
		if strings.EqualFold(name, s.name) {
			return kt, nil
		}
	}
	return KeyTypeUnspecified, ErrBadKeyType
}

type Key interface {
	Raw() ([]byte, error)
	Type() KeyType
	Equals(Key) bool
}

type PublicKey interface {
	Key

	// Verify 签名格式错误返回 (false, nil)
	Verify(data, sig []byte) (bool, error)
}

type PrivateKey interface {
	Key
	Sign(data []byte) ([]byte, error)
	GetPublic() PublicKey
}

// GenerateKeyPair 从 crypto/rand 生成
func GenerateKeyPair(keyType KeyType) (PrivateKey, PublicKey, error) {
	return GenerateKeyPairWithReader(keyType, rand.Reader)
}

// GenerateKeyPairWithReader 测试中可传入确定性 reader
func GenerateKeyPairWithReader(keyType KeyType, reader io.Reader) (PrivateKey, PublicKey, error) {
	s, ok := schemes[keyType]
	if !ok {
		return nil, nil, ErrBadKeyType
	}
	return s.generate(reader)
}

// UnmarshalPublicKey 按算法解析原始公钥字节（不含类型前缀）
func UnmarshalPublicKey(keyType KeyType, data []byte) (PublicKey, error) {
	s, ok := schemes[keyType]
	if !ok {
		return nil, ErrBadKeyType
	}
	return s.parsePub(data)
}

// UnmarshalPrivateKey 按算法解析原始私钥字节（不含类型前缀）
func UnmarshalPrivateKey(keyType KeyType, data []byte) (PrivateKey, error) {
	s, ok := schemes[keyType]
	if !ok {
		return nil, ErrBadKeyType
	}
	return s.parsePriv(data)
}

// KeyEqual 类型相同且原始字节常量时间比较相等
func KeyEqual(a, b Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	ra, errA := a.Raw()
	rb, errB := b.Raw()
	if errA != nil || errB != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ra, rb) == 1
}
