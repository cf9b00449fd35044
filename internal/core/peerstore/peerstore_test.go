package peerstore

import (
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

func newPeer(t *testing.T) (types.PeerID, crypto.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	id, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)
	return id, pub
}

func TestPeerstore_AddrsExpire(t *testing.T) {
	ps := New(0)
	now := time.Unix(1000, 0)
	ps.now = func() time.Time { return now }

	id, _ := newPeer(t)
	a1 := ma.StringCast("/ip4/127.0.0.1/tcp/4001")
	a2 := ma.StringCast("/ip4/127.0.0.1/tcp/4002")

	ps.AddAddrs(id, []ma.Multiaddr{a1}, time.Minute)
	ps.AddAddrs(id, []ma.Multiaddr{a2}, BootstrapAddrTTL)
	assert.Len(t, ps.Addrs(id), 2)

	now = now.Add(2 * time.Minute)
	addrs := ps.Addrs(id)
	require.Len(t, addrs, 1)
	assert.True(t, addrs[0].Equal(a2))

	ps.ClearAddrs(id)
	assert.Empty(t, ps.Addrs(id))
}

func TestPeerstore_LongerTTLWins(t *testing.T) {
	ps := New(0)
	now := time.Unix(1000, 0)
	ps.now = func() time.Time { return now }

	id, _ := newPeer(t)
	a := ma.StringCast("/ip4/10.0.0.1/tcp/1")
	ps.AddAddrs(id, []ma.Multiaddr{a}, time.Hour)
	ps.AddAddrs(id, []ma.Multiaddr{a}, time.Second)

	now = now.Add(time.Minute)
	assert.Len(t, ps.Addrs(id), 1)
}

func TestPeerstore_PubKey(t *testing.T) {
	ps := New(0)
	id, pub := newPeer(t)
	other, _ := newPeer(t)

	require.NoError(t, ps.AddPubKey(id, pub))
	got, ok := ps.PubKey(id)
	require.True(t, ok)
	assert.True(t, got.Equals(pub))

	assert.ErrorIs(t, ps.AddPubKey(other, pub), ErrPeerIDMismatch)
}

func TestPeerstore_Capacity(t *testing.T) {
	ps := New(2)
	var ids []types.PeerID
	for i := 0; i < 3; i++ {
		id, _ := newPeer(t)
		ids = append(ids, id)
		ps.AddAddrs(id, []ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/1")}, time.Hour)
	}
	assert.Equal(t, 2, ps.Len())
	assert.Empty(t, ps.Addrs(ids[0]))

	ps.RemovePeer(ids[2])
	assert.Equal(t, []types.PeerID{ids[1]}, ps.Peers())
}
