package upgrader

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/internal/core/muxer"
	"github.com/coreoverlay/go-coreoverlay/internal/core/security/noise"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

func newUpgrader(t *testing.T) *Upgrader {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	sec, err := noise.New(priv)
	require.NoError(t, err)
	u, err := New(sec, muxer.NewTransport())
	require.NoError(t, err)
	return u
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, muxer.NewTransport())
	assert.ErrorIs(t, err, ErrNilSecurity)

	priv, _, _ := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	sec, _ := noise.New(priv)
	_, err = New(sec, nil)
	assert.ErrorIs(t, err, ErrNilMuxer)
}

func TestUpgrade_OverTCP(t *testing.T) {
	client, server := newUpgrader(t), newUpgrader(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverConn := make(chan *Conn, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverConn <- nil
			return
		}
		c, err := server.Upgrade(ctx, raw, DirInbound, "")
		if err != nil {
			serverConn <- nil
			return
		}
		serverConn <- c
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	cc, err := client.Upgrade(ctx, raw, DirOutbound, server.security.LocalPeer())
	require.NoError(t, err)
	defer cc.Close()

	sc := <-serverConn
	require.NotNil(t, sc)
	defer sc.Close()

	assert.Equal(t, client.security.LocalPeer(), sc.RemotePeer())
	assert.Equal(t, server.security.LocalPeer(), cc.RemotePeer())
	assert.Equal(t, DirOutbound, cc.Direction())
	assert.Equal(t, DirInbound, sc.Direction())

	go func() {
		s, err := sc.AcceptStream()
		if err != nil {
			return
		}
		defer s.Close()
		_, _ = io.Copy(s, s)
	}()

	s, err := cc.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}
