package muxer

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnPair(t *testing.T) (MuxedConn, MuxedConn) {
	t.Helper()
	c1, c2 := net.Pipe()
	tr := NewTransport()

	type result struct {
		conn MuxedConn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := tr.NewConn(c2, true)
		ch <- result{c, err}
	}()
	client, err := tr.NewConn(c1, false)
	require.NoError(t, err)
	r := <-ch
	require.NoError(t, r.err)

	t.Cleanup(func() {
		client.Close()
		r.conn.Close()
	})
	return client, r.conn
}

func TestTransport_ID(t *testing.T) {
	assert.Equal(t, "/yamux/1.0.0", NewTransport().ID())
}

func TestMuxedConn_OpenAccept(t *testing.T) {
	client, server := newConnPair(t)

	done := make(chan []byte, 1)
	go func() {
		s, err := server.AcceptStream()
		if err != nil {
			done <- nil
			return
		}
		defer s.Close()
		buf, _ := io.ReadAll(s)
		done <- buf
	}()

	s, err := client.OpenStream(context.Background())
	require.NoError(t, err)
	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())

	assert.Equal(t, []byte("hello"), <-done)
}

func TestMuxedConn_Close(t *testing.T) {
	client, _ := newConnPair(t)
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())

	_, err := client.OpenStream(context.Background())
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.NotErrorIs(t, err, ErrStreamReset)

	_, err = client.AcceptStream()
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestMuxedStream_Reset(t *testing.T) {
	client, server := newConnPair(t)

	accepted := make(chan MuxedStream, 1)
	go func() {
		s, err := server.AcceptStream()
		if err == nil {
			accepted <- s
		}
		close(accepted)
	}()

	s, err := client.OpenStream(context.Background())
	require.NoError(t, err)
	_, err = s.Write([]byte("x"))
	require.NoError(t, err)

	remote, ok := <-accepted
	require.True(t, ok)
	buf := make([]byte, 1)
	_, err = io.ReadFull(remote, buf)
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	_, err = io.ReadAll(remote)
	assert.ErrorIs(t, err, ErrStreamReset)
}
