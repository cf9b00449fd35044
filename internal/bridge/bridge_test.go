package bridge

import (
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/internal/wasm"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

const loopbackAddr = "/ip4/127.0.0.1/tcp/0"

func newStartedHandle(t *testing.T) (Handle, string) {
	t.Helper()
	info, err := NewEngine()
	require.NoError(t, err)
	t.Cleanup(func() { _ = FreeEngine(info.Handle) })
	require.NoError(t, Start(info.Handle, loopbackAddr))

	e, err := engines.get(info.Handle)
	require.NoError(t, err)
	require.NotEmpty(t, e.Addrs())
	return info.Handle, e.Addrs()[0]
}

func TestAdd(t *testing.T) {
	assert.Equal(t, int64(3), Add(1, 2))
	assert.Equal(t, int64(math.MinInt64), Add(math.MaxInt64, 1))
}

func TestLastError(t *testing.T) {
	ClearLastError()
	assert.Empty(t, LastError())

	SetLastError(nil)
	assert.Empty(t, LastError())

	SetLastError(errors.New("boom"))
	assert.Equal(t, "boom", LastError())
	ClearLastError()
	assert.Empty(t, LastError())
}

func TestCheckBufferLen(t *testing.T) {
	ClearLastError()
	assert.NoError(t, CheckBufferLen(0))
	assert.NoError(t, CheckBufferLen(MaxBufferLen))
	assert.Empty(t, LastError())

	err := CheckBufferLen(math.MaxInt32 + 1)
	assert.ErrorIs(t, err, ErrArgumentTooLarge)
	assert.Contains(t, LastError(), "argument too large")

	assert.ErrorIs(t, CheckBufferLen(math.MaxUint64), ErrArgumentTooLarge)
	ClearLastError()
}

func TestLog_NoPanic(t *testing.T) {
	Log(slog.LevelInfo, "info")
	Log(slog.LevelWarn, "warn")
	Log(slog.LevelError, "error")
}

func TestNewEngine_Info(t *testing.T) {
	info, err := NewEngine()
	require.NoError(t, err)
	defer FreeEngine(info.Handle)

	pub, err := crypto.UnmarshalPublicKeyBytes(info.PublicKey)
	require.NoError(t, err)
	id, err := crypto.PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, info.PeerID, id.String())

	other, err := NewEngine()
	require.NoError(t, err)
	defer FreeEngine(other.Handle)
	assert.NotEqual(t, info.Handle, other.Handle)
	assert.NotEqual(t, info.PeerID, other.PeerID)
}

func TestFreeEngine_InvalidatesHandle(t *testing.T) {
	info, err := NewEngine()
	require.NoError(t, err)
	require.NoError(t, FreeEngine(info.Handle))
	assert.NoError(t, FreeEngine(info.Handle))

	ClearLastError()
	err = Put(info.Handle, "k", []byte("v"))
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, ErrInvalidHandle.Error(), LastError())

	assert.ErrorIs(t, Start(info.Handle, ""), ErrInvalidHandle)
	rtt, err := Ping(info.Handle, "peer")
	assert.Error(t, err)
	assert.Equal(t, int64(-1), rtt)
}

func TestStart_InvalidAddr(t *testing.T) {
	info, err := NewEngine()
	require.NoError(t, err)
	defer FreeEngine(info.Handle)

	assert.Error(t, Start(info.Handle, "not-a-multiaddr"))
	assert.NotEmpty(t, LastError())
}

func TestEngineOperations(t *testing.T) {
	h, _ := newStartedHandle(t)

	require.NoError(t, Put(h, "k", []byte("v")))
	value, err := Get(h, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	_, err = Get(h, "missing")
	assert.True(t, IsNotFound(err))

	out, err := Exec(h, "PUT a b")
	require.NoError(t, err)
	assert.Equal(t, `Successfully put record "a"`, out)

	_, err = Exec(h, "NOPE")
	assert.Error(t, err)
	assert.Contains(t, LastError(), "unknown command")

	e, err := engines.get(h)
	require.NoError(t, err)
	require.NoError(t, Provide(h, "content"))
	providers, err := FindProviders(h, "content")
	require.NoError(t, err)
	assert.Contains(t, strings.Split(providers, "\n"), e.LocalPeerID().String())
}

func TestBootstrapAndPing(t *testing.T) {
	a, addrA := newStartedHandle(t)
	b, _ := newStartedHandle(t)

	assert.ErrorIs(t, Bootstrap(b, ""), ErrNilArgument)
	require.NoError(t, Bootstrap(b, addrA))

	rtt, err := Ping(b, addrA)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, int64(0))

	require.NoError(t, Put(b, "shared", []byte("1")))
	value, err := Get(a, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)
}

func TestWasmExports(t *testing.T) {
	result, err := ExecWasmText(wasm.AddOneWAT, "add_one")
	require.NoError(t, err)
	assert.Equal(t, int32(43), result)

	require.NoError(t, WasmTest())

	_, err = ExecWasmText(wasm.AddOneWAT, "missing")
	assert.ErrorIs(t, err, wasm.ErrFunctionNotExported)

	_, err = ExecWasmNative([]byte{0x00, 0x61, 0x73})
	assert.Error(t, err)
	assert.NotEmpty(t, LastError())
}

func TestBootstrapPeers(t *testing.T) {
	t.Setenv(BootstrapPeersEnv, "")
	assert.Equal(t, []string{DefaultBootstrapPeer}, BootstrapPeers())

	t.Setenv(BootstrapPeersEnv, " 10.0.0.1:8000, ,10.0.0.2:8000 ")
	assert.Equal(t, []string{"10.0.0.1:8000", "10.0.0.2:8000"}, BootstrapPeers())
}

func TestOverlayPing(t *testing.T) {
	_, addr := newStartedHandle(t)

	results, err := OverlayPing(loopbackAddr, addr)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].PeerID.IsEmpty())
}

func TestOverlayPing_Unreachable(t *testing.T) {
	results, err := OverlayPing(loopbackAddr, "127.0.0.1:1")
	assert.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}
