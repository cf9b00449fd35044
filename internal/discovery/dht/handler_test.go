package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

func TestHandleMessage_SenderMismatch(t *testing.T) {
	d := newTestDHT(t)
	remote := nodeID(0x01).PeerID()

	req := NewPingRequest(types.AddrInfo{ID: nodeID(0x02).PeerID()})
	resp := d.handleMessage(remote, req)

	assert.False(t, resp.Success)
	assert.Equal(t, ErrSenderMismatch.Error(), resp.Error)
	assert.Equal(t, 0, d.RoutingTable().Size())
}

func TestHandleMessage_RejectsResponses(t *testing.T) {
	d := newTestDHT(t)
	remote := nodeID(0x01).PeerID()

	req := NewPingRequest(types.AddrInfo{ID: remote})
	req.Type = MessageTypePingResponse
	resp := d.handleMessage(remote, req)
	assert.False(t, resp.Success)
}

func TestHandleMessage_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	d := newTestDHT(t, WithConfig(cfg))

	remote := nodeID(0x01).PeerID()
	sender := types.AddrInfo{ID: remote}
	assert.True(t, d.handleMessage(remote, NewPingRequest(sender)).Success)
	assert.True(t, d.handleMessage(remote, NewPingRequest(sender)).Success)

	resp := d.handleMessage(remote, NewPingRequest(sender))
	assert.False(t, resp.Success)
	assert.Equal(t, ErrRateLimitExceeded.Error(), resp.Error)

	// 其他对端不受影响
	other := nodeID(0x03).PeerID()
	assert.True(t, d.handleMessage(other, NewPingRequest(types.AddrInfo{ID: other})).Success)
}

func TestHandleMessage_StoreAndFindValue(t *testing.T) {
	d := newTestDHT(t)
	remote := nodeID(0x01).PeerID()
	sender := types.AddrInfo{ID: remote}

	resp := d.handleMessage(remote, NewStoreRequest(sender, "k", []byte("v"), 48*time.Hour))
	require.True(t, resp.Success)

	rec, ok := d.Values().Record("k")
	require.True(t, ok)
	assert.False(t, rec.Local)
	// TTL 不超过本地配置的记录 TTL
	assert.WithinDuration(t, time.Now().Add(d.config.RecordTTL), rec.ExpiresAt, time.Minute)

	resp = d.handleMessage(remote, NewFindValueRequest(sender, "k"))
	require.True(t, resp.Success)
	assert.Equal(t, []byte("v"), resp.Value)

	// 请求方已加入路由表
	assert.NotNil(t, d.RoutingTable().Find(nodeID(0x01)))
}

func TestHandleMessage_AddProviderUsesRemoteIdentity(t *testing.T) {
	d := newTestDHT(t)
	remote := nodeID(0x01).PeerID()

	resp := d.handleMessage(remote, NewAddProviderRequest(types.AddrInfo{}, "k", time.Hour))
	require.True(t, resp.Success)

	resp = d.handleMessage(remote, NewGetProvidersRequest(types.AddrInfo{ID: remote}, "k"))
	require.True(t, resp.Success)
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, remote, resp.Providers[0].ID)
}

func TestDialableAddrs(t *testing.T) {
	addrs := dialableAddrs([]string{
		"/ip4/127.0.0.1/tcp/4001",
		"/ip4/0.0.0.0/tcp/4001",
		"/ip4/127.0.0.1/udp/4001",
		"garbage",
	})
	require.Len(t, addrs, 1)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4001", addrs[0].String())
}
