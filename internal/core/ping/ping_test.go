package ping

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

func newHost(t *testing.T) *host.Host {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	h, err := host.New(priv)
	require.NoError(t, err)
	require.NoError(t, h.Listen("/ip4/127.0.0.1/tcp/0"))
	t.Cleanup(func() { h.Close() })
	return h
}

func TestPing_RoundTrip(t *testing.T) {
	a, b := newHost(t), newHost(t)
	NewService(b)
	svc := NewService(a)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := a.Connect(ctx, types.AddrInfo{ID: b.ID(), Addrs: b.ListenAddrs()})
	require.NoError(t, err)

	rtt, err := svc.Ping(ctx, b.ID())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestPing_NoHandler(t *testing.T) {
	a, b := newHost(t), newHost(t)
	svc := NewService(a)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := a.Connect(ctx, types.AddrInfo{ID: b.ID(), Addrs: b.ListenAddrs()})
	require.NoError(t, err)

	_, err = svc.Ping(ctx, b.ID())
	assert.ErrorIs(t, err, host.ErrProtocolNotSupported)
}

// corruptEcho 回显时翻转第一个字节
type corruptEcho struct {
	buf bytes.Buffer
}

func (c *corruptEcho) Write(p []byte) (int, error) {
	q := append([]byte(nil), p...)
	q[0] ^= 0xff
	return c.buf.Write(q)
}

func (c *corruptEcho) Read(p []byte) (int, error) {
	if c.buf.Len() == 0 {
		return 0, io.EOF
	}
	return c.buf.Read(p)
}

func TestPingOnce_DataMismatch(t *testing.T) {
	_, err := pingOnce(&corruptEcho{})
	assert.ErrorIs(t, err, ErrDataMismatch)
}
