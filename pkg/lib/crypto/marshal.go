package crypto

import (
	"encoding/binary"
	"fmt"
)

// 序列化格式：
//
//	┌──────────────────────────────────────┐
//	│  Type:   uint8 (KeyType)             │
//	│  Length: uint32 (大端序)              │
//	│  Data:   原始密钥字节                  │
//	└──────────────────────────────────────┘
//
// PeerID 基于公钥的此格式派生，格式不可变更。
const marshalHeaderSize = 5

func marshalKey(k Key) ([]byte, error) {
	raw, err := k.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	buf := make([]byte, marshalHeaderSize+len(raw))
	buf[0] = byte(k.Type())
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(raw)))
	copy(buf[5:], raw)
	return buf, nil
}

func splitMarshalled(data []byte) (KeyType, []byte, error) {
	if len(data) < marshalHeaderSize {
		return KeyTypeUnspecified, nil, fmt.Errorf("%w: data too short", ErrUnmarshalFailed)
	}
	length := binary.BigEndian.Uint32(data[1:5])
	if uint64(len(data)) != uint64(marshalHeaderSize)+uint64(length) {
		return KeyTypeUnspecified, nil, fmt.Errorf("%w: data length mismatch", ErrUnmarshalFailed)
	}
	return KeyType(data[0]), data[5:], nil
}

// MarshalPublicKey 序列化公钥
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}
	return marshalKey(key)
}

// UnmarshalPublicKeyBytes 反序列化公钥
func UnmarshalPublicKeyBytes(data []byte) (PublicKey, error) {
	kt, raw, err := splitMarshalled(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPublicKey(kt, raw)
}

// MarshalPrivateKey 序列化私钥
func MarshalPrivateKey(key PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	return marshalKey(key)
}

// UnmarshalPrivateKeyBytes 反序列化私钥
func UnmarshalPrivateKeyBytes(data []byte) (PrivateKey, error) {
	kt, raw, err := splitMarshalled(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPrivateKey(kt, raw)
}
