package config

import (
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyType 密钥类型：Ed25519（默认）或 Secp256k1
	KeyType string `json:"key_type" yaml:"key_type" validate:"omitempty,oneof=Ed25519 Secp256k1 ed25519 secp256k1"`

	// KeyFile 密钥文件路径
	// 为空时在内存中生成临时密钥，重启后 PeerID 会变化
	KeyFile string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyType: "Ed25519",
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	_, err := crypto.ParseKeyType(c.KeyType)
	return err
}

// Type 返回解析后的密钥类型
func (c IdentityConfig) Type() crypto.KeyType {
	kt, err := crypto.ParseKeyType(c.KeyType)
	if err != nil {
		return crypto.KeyTypeEd25519
	}
	return kt
}
