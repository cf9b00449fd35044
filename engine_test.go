package coreoverlay

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/internal/wasm"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

const loopbackAddr = "/ip4/127.0.0.1/tcp/0"

func newStartedEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithListenAddrs(loopbackAddr)}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Start(ctx))
	return e
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_Defaults(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	assert.False(t, e.IsRunning())
	assert.True(t, e.Config().Storage.InMemory)
	assert.False(t, e.Config().Discovery.EnableMDNS)

	id, err := crypto.PeerIDFromPrivateKey(e.LocalKey())
	require.NoError(t, err)
	assert.Equal(t, id, e.LocalPeerID())
	assert.NoError(t, e.LocalPeerID().Validate())
}

func TestNew_WithIdentity(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	want, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	e, err := New(WithIdentity(priv))
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, want, e.LocalPeerID())
}

func TestNew_DoesNotMutateConfig(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(WithConfig(cfg), WithListenAddrs(loopbackAddr))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []string{config.DefaultListenAddr}, cfg.Transport.ListenAddrs)
	assert.Equal(t, []string{loopbackAddr}, e.Config().Transport.ListenAddrs)
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil config", WithConfig(nil)},
		{"nil identity", WithIdentity(nil)},
		{"bad bootstrap", WithBootstrapPeers("not an address")},
		{"bad listen addr", WithListenAddrs("tcp://nowhere")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestEngine_NotStarted(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()
	ctx := testContext(t)

	assert.ErrorIs(t, e.Put(ctx, "k", []byte("v")), ErrNotStarted)
	_, err = e.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = e.Exec(ctx, "GET k")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = e.Ping(ctx, e.LocalPeerID().String())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, e.Host())
	assert.Nil(t, e.Addrs())
}

func TestEngine_Lifecycle(t *testing.T) {
	e := newStartedEngine(t)
	ctx := testContext(t)

	assert.True(t, e.IsRunning())
	require.NotEmpty(t, e.Addrs())
	assert.Contains(t, e.Addrs()[0], "/p2p/"+e.LocalPeerID().String())
	assert.ErrorIs(t, e.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.IsRunning())
	assert.Nil(t, e.DHT())
	assert.NoError(t, e.Stop(ctx))

	// 停止后可以再次启动，身份不变
	id := e.LocalPeerID()
	require.NoError(t, e.Start(ctx))
	assert.Equal(t, id, e.Host().ID())

	require.NoError(t, e.Close())
	assert.NoError(t, e.Close())
	assert.ErrorIs(t, e.Start(ctx), ErrEngineClosed)
	_, err := e.Runtime()
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_DHTDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discovery.EnableDHT = false
	e := newStartedEngine(t, WithConfig(cfg))

	assert.ErrorIs(t, e.Put(testContext(t), "k", []byte("v")), ErrDHTDisabled)
}

func TestEngine_LocalPutGetExec(t *testing.T) {
	e := newStartedEngine(t)
	ctx := testContext(t)

	require.NoError(t, e.Put(ctx, "alpha", []byte("1")))
	got, err := e.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	out, err := e.Exec(ctx, "PUT beta 2")
	require.NoError(t, err)
	assert.Equal(t, `Successfully put record "beta"`, out)

	out, err = e.Exec(ctx, "GET beta")
	require.NoError(t, err)
	assert.Equal(t, `Got record "beta" "2"`, out)

	_, err = e.Get(ctx, "missing")
	assert.ErrorIs(t, err, dht.ErrKeyNotFound)
}

func TestEngine_TwoNodes(t *testing.T) {
	a := newStartedEngine(t)
	b := newStartedEngine(t, WithBootstrapPeers(a.Addrs()[0]))
	ctx := testContext(t)

	require.NoError(t, b.Bootstrap(ctx))

	require.NoError(t, b.Put(ctx, "shared", []byte("value")))
	got, err := a.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, a.Provide(ctx, "content"))
	providers, err := b.FindProviders(ctx, "content")
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, a.LocalPeerID(), providers[0].ID)

	rtt, err := b.Ping(ctx, a.Addrs()[0])
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	rtt, err = a.Ping(ctx, b.LocalPeerID().String())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	_, err = a.Ping(ctx, "???")
	assert.ErrorIs(t, err, ErrInvalidPeer)
}

func TestEngine_BootstrapInvalidAddr(t *testing.T) {
	e := newStartedEngine(t)
	err := e.Bootstrap(testContext(t), "not an address")
	assert.ErrorIs(t, err, ErrInvalidPeer)
}

func TestEngine_Runtime(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	rt, err := e.Runtime()
	require.NoError(t, err)
	rt2, err := e.Runtime()
	require.NoError(t, err)
	assert.Same(t, rt, rt2)

	got, err := rt.ExecText(testContext(t), wasm.AddOneWAT, "add_one")
	require.NoError(t, err)
	assert.Equal(t, int32(43), got)
}

func TestEngine_FxOptionAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	var injected *host.Host
	e := newStartedEngine(t,
		WithMetricsRegistry(reg),
		WithFxOption(fx.Invoke(func(h *host.Host) { injected = h })),
	)

	assert.Same(t, e.Host(), injected)
	assert.True(t, e.Config().Metrics.Enable)

	require.NoError(t, e.Put(testContext(t), "metric", []byte("x")))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUserAgent(t *testing.T) {
	assert.Contains(t, UserAgent(), "COREOVERLAY/"+Version)
}

func TestUserAgent_RuntimeVersionFromBuild(t *testing.T) {
	ua := UserAgent()
	assert.Contains(t, ua, "WAZERO/")
	assert.NotContains(t, ua, "WAZERO/unknown", "链接了 wazero 的二进制应带上其模块版本")
}
