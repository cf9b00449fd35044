package crypto

import (
	"crypto/sha256"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// NodeIDFromPublicKey 节点在 DHT 键空间中的位置：SHA256(MarshalPublicKey(pub))
func NodeIDFromPublicKey(pub PublicKey) (types.NodeID, error) {
	if pub == nil {
		return types.EmptyNodeID, ErrNilPublicKey
	}
	data, err := MarshalPublicKey(pub)
	if err != nil {
		return types.EmptyNodeID, err
	}
	return types.NodeID(sha256.Sum256(data)), nil
}

// PeerIDFromPublicKey 即 NodeID 的 Base58 形式
func PeerIDFromPublicKey(pub PublicKey) (types.PeerID, error) {
	nid, err := NodeIDFromPublicKey(pub)
	if err != nil {
		return types.EmptyPeerID, err
	}
	return nid.PeerID(), nil
}

func PeerIDFromPrivateKey(priv PrivateKey) (types.PeerID, error) {
	if priv == nil {
		return types.EmptyPeerID, ErrNilPrivateKey
	}
	return PeerIDFromPublicKey(priv.GetPublic())
}

// VerifyPeerID 公钥哈希是否落在 id 所代表的 NodeID 上
func VerifyPeerID(pub PublicKey, id types.PeerID) (bool, error) {
	want, err := id.NodeID()
	if err != nil {
		return false, err
	}
	got, err := NodeIDFromPublicKey(pub)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
