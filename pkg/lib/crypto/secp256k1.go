package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Secp256k1 密钥常量
const (
	// Secp256k1PrivateKeySize 私钥大小
	Secp256k1PrivateKeySize = secp256k1.PrivKeyBytesLen
	// Secp256k1PublicKeySize 压缩公钥大小
	Secp256k1PublicKeySize = secp256k1.PubKeyBytesLenCompressed
)

// Secp256k1PublicKey Secp256k1 公钥
type Secp256k1PublicKey struct {
	k *secp256k1.PublicKey
}

// Raw 返回压缩格式公钥（33 字节）
func (k *Secp256k1PublicKey) Raw() ([]byte, error) {
	return k.k.SerializeCompressed(), nil
}

// Type 返回密钥类型
func (k *Secp256k1PublicKey) Type() KeyType {
	return KeyTypeSecp256k1
}

// Equals 比较公钥
func (k *Secp256k1PublicKey) Equals(other Key) bool {
	sk, ok := other.(*Secp256k1PublicKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return k.k.IsEqual(sk.k)
}

// Verify 验证 DER 编码的 ECDSA 签名（数据先做 SHA-256）
func (k *Secp256k1PublicKey) Verify(data, sig []byte) (bool, error) {
	s, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	hash := sha256.Sum256(data)
	return s.Verify(hash[:], k.k), nil
}

// Secp256k1PrivateKey Secp256k1 私钥
type Secp256k1PrivateKey struct {
	k *secp256k1.PrivateKey
}

// Raw 返回 32 字节私钥标量
func (k *Secp256k1PrivateKey) Raw() ([]byte, error) {
	return k.k.Serialize(), nil
}

// Type 返回密钥类型
func (k *Secp256k1PrivateKey) Type() KeyType {
	return KeyTypeSecp256k1
}

// Equals 比较私钥
func (k *Secp256k1PrivateKey) Equals(other Key) bool {
	return KeyEqual(k, other)
}

// Sign 对 SHA-256(data) 做 ECDSA 签名，返回 DER 编码
func (k *Secp256k1PrivateKey) Sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	return ecdsa.Sign(k.k, hash[:]).Serialize(), nil
}

// GetPublic 返回对应公钥
func (k *Secp256k1PrivateKey) GetPublic() PublicKey {
	return &Secp256k1PublicKey{k: k.k.PubKey()}
}

// GenerateSecp256k1Key 生成 Secp256k1 密钥对
func GenerateSecp256k1Key(reader io.Reader) (PrivateKey, PublicKey, error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	sk := &Secp256k1PrivateKey{k: priv}
	return sk, sk.GetPublic(), nil
}

// UnmarshalSecp256k1PublicKey 从压缩或非压缩格式恢复公钥
func UnmarshalSecp256k1PublicKey(data []byte) (PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &Secp256k1PublicKey{k: pub}, nil
}

// UnmarshalSecp256k1PrivateKey 从 32 字节恢复私钥
func UnmarshalSecp256k1PrivateKey(data []byte) (PrivateKey, error) {
	if len(data) != Secp256k1PrivateKeySize {
		return nil, fmt.Errorf("%w: secp256k1 private key must be %d bytes, got %d",
			ErrInvalidKeySize, Secp256k1PrivateKeySize, len(data))
	}
	return &Secp256k1PrivateKey{k: secp256k1.PrivKeyFromBytes(data)}, nil
}
