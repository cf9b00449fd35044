// Package identity 管理节点身份：私钥、公钥与 PeerID
//
// 身份来源按优先级：
//  1. 外部注入的私钥
//  2. config.Identity.KeyFile 指定的密钥文件（不存在时生成并保存）
//  3. 内存中生成的临时密钥
package identity

import (
	"errors"
	"fmt"
	"os"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("core/identity")

// PassphraseEnv 密钥文件口令的环境变量，为空时密钥文件不加密
const PassphraseEnv = "COREOVERLAY_KEY_PASSPHRASE"

// ErrNilPrivateKey 私钥为 nil
var ErrNilPrivateKey = errors.New("identity: private key is nil")

// Identity 节点身份
type Identity struct {
	priv   crypto.PrivateKey
	pub    crypto.PublicKey
	peerID types.PeerID
}

// New 从私钥创建身份
func New(priv crypto.PrivateKey) (*Identity, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}
	id, err := crypto.PeerIDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("identity: derive peer id: %w", err)
	}
	return &Identity{priv: priv, pub: priv.GetPublic(), peerID: id}, nil
}

// Generate 生成新身份
func Generate(kt crypto.KeyType) (*Identity, error) {
	priv, _, err := crypto.GenerateKeyPair(kt)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return New(priv)
}

// FromConfig 按配置加载或生成身份
func FromConfig(cfg config.IdentityConfig) (*Identity, error) {
	if cfg.KeyFile == "" {
		return Generate(cfg.Type())
	}

	priv, created, err := crypto.LoadOrCreateKeyFile(cfg.KeyFile, cfg.Type(), []byte(os.Getenv(PassphraseEnv)))
	if err != nil {
		return nil, fmt.Errorf("identity: key file %s: %w", cfg.KeyFile, err)
	}
	id, err := New(priv)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("已生成新身份并保存", "peer", id.PeerID().String(), "path", cfg.KeyFile)
	} else {
		logger.Debug("已从文件加载身份", "peer", id.PeerID().String(), "path", cfg.KeyFile)
	}
	return id, nil
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() crypto.PrivateKey {
	return i.priv
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() crypto.PublicKey {
	return i.pub
}

// PeerID 返回 PeerID
func (i *Identity) PeerID() types.PeerID {
	return i.peerID
}

// NodeID 返回 DHT 键空间中的位置
func (i *Identity) NodeID() types.NodeID {
	id, _ := i.peerID.NodeID()
	return id
}

// MarshalPublicKey 返回序列化的公钥
func (i *Identity) MarshalPublicKey() ([]byte, error) {
	return crypto.MarshalPublicKey(i.pub)
}

// Sign 签名
func (i *Identity) Sign(data []byte) ([]byte, error) {
	return i.priv.Sign(data)
}
