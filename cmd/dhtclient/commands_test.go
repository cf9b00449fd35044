package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreoverlay "github.com/coreoverlay/go-coreoverlay"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func startNode(t *testing.T) (*coreoverlay.Engine, string) {
	t.Helper()
	e, err := coreoverlay.New(coreoverlay.WithListenAddrs("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Start(ctx))
	require.NotEmpty(t, e.Addrs())
	return e, e.Addrs()[0]
}

func TestGenerateKey(t *testing.T) {
	out, err := execute(t, "generate-key", "--from", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Generated Key: aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d\n", out)

	out, err = execute(t, "generate-key", "-f", "x", "-c", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Generated Key: "+dht.GenerateKeyFromString("x-1"), lines[0])
	assert.Equal(t, "Generated Key: "+dht.GenerateKeyFromString("x-2"), lines[1])

	out, err = execute(t, "generate-key")
	require.NoError(t, err)
	key := strings.TrimPrefix(strings.TrimSpace(out), "Generated Key: ")
	_, err = dht.ParseHexKey(key)
	assert.NoError(t, err)

	_, err = execute(t, "generate-key", "--count", "0")
	assert.Error(t, err)
}

func TestInvalidArguments(t *testing.T) {
	_, err := execute(t, "get", "not-hex")
	assert.ErrorIs(t, err, dht.ErrInvalidKey)

	_, err = execute(t, "put", "abcd", "value")
	assert.ErrorIs(t, err, dht.ErrInvalidKey)

	_, err = execute(t, "get")
	assert.Error(t, err)

	_, err = execute(t, "--node", "no-port", "info")
	assert.Error(t, err)
}

func TestPutGetDelete(t *testing.T) {
	e, addr := startNode(t)
	key := dht.GenerateKeyFromString("hello")

	out, err := execute(t, "--node", addr, "put", key, "world")
	require.NoError(t, err)
	assert.Equal(t, "Value stored successfully\n", out)

	value, err := e.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), value)

	out, err = execute(t, "--node", addr, "get", key)
	require.NoError(t, err)
	assert.Equal(t, "Value: world\n", out)

	out, err = execute(t, "--node", addr, "delete", key)
	require.NoError(t, err)
	assert.Equal(t, "Key deleted successfully\n", out)

	out, err = execute(t, "--node", addr, "get", key)
	require.NoError(t, err)
	assert.Equal(t, "Key not found\n", out)
}

func TestInfoAndList(t *testing.T) {
	e, addr := startNode(t)

	out, err := execute(t, "-n", addr, "-t", "5s", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: Online")
	assert.Contains(t, out, "Peer ID: "+e.LocalPeerID().String())
	assert.Contains(t, out, "Known nodes:")

	out, err = execute(t, "-n", addr, "list", "--pattern", "zzz")
	require.NoError(t, err)
	assert.Equal(t, "Listing key-value pairs...\n", out)
}

func TestUnreachableNode(t *testing.T) {
	_, err := execute(t, "--node", "127.0.0.1:1", "--timeout", "1s", "info")
	assert.Error(t, err)
}
