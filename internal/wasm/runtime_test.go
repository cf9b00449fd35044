package wasm

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/config"
)

// sumWasm 导出 memory、sum(i32, i32) i32、trap（unreachable）与 spin（死循环），
// 内存偏移 16 处预置 "hello"
var sumWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type
	0x01, 0x0e, 0x03,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x60, 0x00, 0x01, 0x7f,
	0x60, 0x00, 0x00,
	// function
	0x03, 0x04, 0x03, 0x00, 0x01, 0x02,
	// memory
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export
	0x07, 0x1e, 0x04,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x03, 's', 'u', 'm', 0x00, 0x00,
	0x04, 't', 'r', 'a', 'p', 0x00, 0x01,
	0x04, 's', 'p', 'i', 'n', 0x00, 0x02,
	// code
	0x0a, 0x15, 0x03,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
	0x03, 0x00, 0x00, 0x0b,
	0x07, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b,
	// data
	0x0b, 0x0b, 0x01, 0x00, 0x41, 0x10, 0x0b, 0x05, 'h', 'e', 'l', 'l', 'o',
}

func newRuntime(t *testing.T, cfg *Config) *Runtime {
	t.Helper()
	r, err := NewRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

func TestExecText_AddOne(t *testing.T) {
	for _, mode := range []Mode{ModeCompiler, ModeInterpreter} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mode = mode
			r := newRuntime(t, cfg)

			result, err := r.ExecText(context.Background(), AddOneWAT, "add_one")
			require.NoError(t, err)
			assert.Equal(t, int32(43), result)
		})
	}
}

func TestExecText_MissingFunction(t *testing.T) {
	r := newRuntime(t, nil)
	_, err := r.ExecText(context.Background(), AddOneWAT, "main")
	assert.ErrorIs(t, err, ErrFunctionNotExported)
}

func TestExecText_InvalidText(t *testing.T) {
	r := newRuntime(t, nil)
	_, err := r.ExecText(context.Background(), "(module (func", "add_one")
	assert.Error(t, err)
}

func TestExecNative_Sum(t *testing.T) {
	r := newRuntime(t, nil)
	result, err := r.ExecNative(context.Background(), sumWasm)
	require.NoError(t, err)
	assert.Equal(t, int32(3), result)

	// 可重复执行
	result, err = r.ExecNative(context.Background(), sumWasm)
	require.NoError(t, err)
	assert.Equal(t, int32(3), result)
}

func TestExecNative_InvalidBinary(t *testing.T) {
	r := newRuntime(t, nil)
	_, err := r.ExecNative(context.Background(), []byte{0x00, 0x61, 0x73})
	assert.Error(t, err)
}

func TestModule_TrapIsError(t *testing.T) {
	r := newRuntime(t, nil)
	mod, err := r.Load(context.Background(), "m", sumWasm)
	require.NoError(t, err)

	_, err = mod.CallI32(context.Background(), "trap")
	assert.Error(t, err)

	// trap 之后模块仍可调用
	v, err := mod.CallI32(context.Background(), "sum", 40, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
}

func TestModule_CallTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	r := newRuntime(t, cfg)

	mod, err := r.Load(context.Background(), "", sumWasm)
	require.NoError(t, err)

	_, err = mod.Call(context.Background(), "spin")
	assert.Error(t, err)
}

func TestModule_Exports(t *testing.T) {
	r := newRuntime(t, nil)
	mod, err := r.Load(context.Background(), "m", sumWasm)
	require.NoError(t, err)
	assert.Equal(t, "m", mod.Name())
	assert.Equal(t, []string{"spin", "sum", "trap"}, mod.Exports())
}

func TestMemory(t *testing.T) {
	r := newRuntime(t, nil)
	mod, err := r.Load(context.Background(), "", sumWasm)
	require.NoError(t, err)

	mem, err := mod.Memory()
	require.NoError(t, err)
	assert.Equal(t, uint32(65536), mem.Size())

	s, err := mem.ReadString(16, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	require.NoError(t, mem.Write(100, []byte("abc")))
	b, err := mem.Read(100, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)

	_, err = mem.Read(65535, 2)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.ErrorIs(t, mem.Write(65535, []byte("xy")), ErrOutOfBounds)
}

func TestModule_NoMemory(t *testing.T) {
	r := newRuntime(t, nil)
	mod, err := r.LoadText(context.Background(), "", AddOneWAT)
	require.NoError(t, err)
	_, err = mod.Memory()
	assert.ErrorIs(t, err, ErrMemoryNotExported)
}

func TestRuntime_Closed(t *testing.T) {
	r, err := NewRuntime(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	_, err = r.LoadText(context.Background(), "", AddOneWAT)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
}

func TestNewRuntime_UnknownMode(t *testing.T) {
	_, err := NewRuntime(context.Background(), &Config{Mode: "jit"})
	assert.Error(t, err)
}

func TestConfigFromUnified(t *testing.T) {
	wc := config.DefaultWasmConfig()
	wc.Mode = "interpreter"
	wc.CallTimeout = config.Duration(time.Second)

	cfg := ConfigFromUnified(wc)
	assert.Equal(t, ModeInterpreter, cfg.Mode)
	assert.Equal(t, time.Second, cfg.CallTimeout)
	assert.True(t, cfg.EnableWASI)
}

func TestPackRoundTripAndLoad(t *testing.T) {
	bin := sumWasm
	pkg := &Package{Metadata: Metadata{Name: "example-package", Version: "1.0.0"}}
	pkg.AddModule(Metadata{
		Name:         "math",
		Version:      "1.0.0",
		Dependencies: map[string]string{"dep1": "1.0.0"},
	}, bin)

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, pkg))

	got, err := Unpack(&buf)
	require.NoError(t, err)
	assert.Equal(t, pkg.Metadata, got.Metadata)
	content, ok := got.Module("math")
	require.True(t, ok)
	assert.Equal(t, bin, content)

	r := newRuntime(t, nil)
	mods, err := r.LoadPackage(context.Background(), got)
	require.NoError(t, err)
	v, err := mods["math"].CallI32(context.Background(), "sum", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)
}

func TestPack_Invalid(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Pack(&buf, &Package{}), ErrInvalidPackage)

	pkg := &Package{Metadata: Metadata{Name: "p"}}
	pkg.AddModule(Metadata{Name: "a"}, nil)
	pkg.AddModule(Metadata{Name: "a"}, nil)
	assert.ErrorIs(t, Pack(&buf, pkg), ErrInvalidPackage)

	_, err := Unpack(bytes.NewReader([]byte("not zstd")))
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestCompileText(t *testing.T) {
	bin, err := CompileText(AddOneWAT)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, bin[:4])

	r := newRuntime(t, nil)
	mod, err := r.Load(context.Background(), "add", bin)
	require.NoError(t, err)
	assert.Equal(t, []string{"add_one"}, mod.Exports())
}
