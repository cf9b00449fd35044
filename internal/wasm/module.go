package wasm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Module 已实例化的模块
type Module struct {
	name        string
	mod         api.Module
	compiled    wazero.CompiledModule
	callTimeout time.Duration
}

// Name 模块名
func (m *Module) Name() string {
	return m.name
}

// Exports 返回导出函数名（已排序）
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call 调用导出函数，参数与返回值为 wazero 的 uint64 编码
func (m *Module) Call(ctx context.Context, fn string, args ...uint64) (results []uint64, err error) {
	f, err := exportedFunction(m.mod, fn)
	if err != nil {
		return nil, err
	}
	if m.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wasm: call %s: %v", fn, r)
		}
	}()

	results, err = f.Call(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("wasm: call %s: %w", fn, err)
	}
	return results, nil
}

// CallI32 以 i32 参数调用函数并返回第一个 i32 结果
func (m *Module) CallI32(ctx context.Context, fn string, args ...int32) (int32, error) {
	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = api.EncodeI32(a)
	}
	results, err := m.Call(ctx, fn, params...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoResult, fn)
	}
	return api.DecodeI32(results[0]), nil
}

// Memory 返回模块导出的内存
func (m *Module) Memory() (*Memory, error) {
	mem := m.mod.Memory()
	if mem == nil {
		return nil, ErrMemoryNotExported
	}
	return &Memory{mem: mem}, nil
}

// Close 关闭模块
func (m *Module) Close(ctx context.Context) error {
	err := m.mod.Close(ctx)
	if cerr := m.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// Memory 模块线性内存
type Memory struct {
	mem api.Memory
}

// Size 当前内存大小（字节）
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Read 读取 [offset, offset+n) 的副本
func (m *Memory) Read(offset, n uint32) ([]byte, error) {
	buf, ok := m.mem.Read(offset, n)
	if !ok {
		return nil, fmt.Errorf("%w: read %d bytes at %d (size %d)", ErrOutOfBounds, n, offset, m.mem.Size())
	}
	return append([]byte(nil), buf...), nil
}

// Write 写入数据
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("%w: write %d bytes at %d (size %d)", ErrOutOfBounds, len(data), offset, m.mem.Size())
	}
	return nil
}

// ReadString 读取 n 字节并作为字符串返回
func (m *Memory) ReadString(offset, n uint32) (string, error) {
	b, err := m.Read(offset, n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
