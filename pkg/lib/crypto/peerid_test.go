package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDFromPublicKey(t *testing.T) {
	priv, pub, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	id, err := PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	require.NoError(t, id.Validate(), "PeerID 必须可解码为 32 字节 NodeID")

	fromPriv, err := PeerIDFromPrivateKey(priv)
	require.NoError(t, err)
	assert.Equal(t, id, fromPriv)

	ok, err := VerifyPeerID(pub, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, other, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)
	ok, err = VerifyPeerID(other, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPeerIDFromPublicKey_Nil(t *testing.T) {
	_, err := PeerIDFromPublicKey(nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)
	_, err = PeerIDFromPrivateKey(nil)
	assert.ErrorIs(t, err, ErrNilPrivateKey)
}

func TestNodeIDFromPublicKey(t *testing.T) {
	_, pub, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	nid, err := NodeIDFromPublicKey(pub)
	require.NoError(t, err)
	id, err := PeerIDFromPublicKey(pub)
	require.NoError(t, err)

	back, err := id.NodeID()
	require.NoError(t, err)
	assert.Equal(t, nid, back)

	_, err = VerifyPeerID(pub, "not-base58-0OIl")
	assert.Error(t, err)
}
