// Package wasm 基于 wazero 的 WebAssembly 运行时
//
// 支持文本格式（WAT，经 watzero 转换）与二进制模块，可选实例化
// wasi_snapshot_preview1。执行中的 trap 以 error 返回。
package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/watzero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var logger = log.Logger("wasm")

// 冒烟测试使用的入参
const (
	// TextModuleArg ExecText 调用入口函数时的参数
	TextModuleArg int32 = 42

	// SumFunction ExecNative 调用的导出函数
	SumFunction = "sum"
)

// AddOneWAT 内置冒烟模块，add_one(42) 返回 43
const AddOneWAT = `(module
  (type $t0 (func (param i32) (result i32)))
  (func $add_one (export "add_one") (type $t0) (param $p0 i32) (result i32)
    local.get $p0
    i32.const 1
    i32.add))`

// Runtime WASM 运行时
type Runtime struct {
	config *Config
	rt     wazero.Runtime

	mu     sync.Mutex
	closed bool
}

// NewRuntime 创建运行时
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var rc wazero.RuntimeConfig
	switch cfg.Mode {
	case ModeInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	case ModeCompiler, "":
		rc = wazero.NewRuntimeConfig()
	default:
		return nil, fmt.Errorf("wasm: unknown mode %q", cfg.Mode)
	}
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rc = rc.WithCloseOnContextDone(true)

	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	if cfg.EnableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("wasm: instantiate wasi: %w", err)
		}
	}

	logger.Debug("WASM 运行时已创建", "mode", string(cfg.Mode), "wasi", cfg.EnableWASI)
	return &Runtime{config: cfg, rt: rt}, nil
}

// CompileText 将 WAT 文本转换为二进制模块
func CompileText(wat string) ([]byte, error) {
	bin, err := watzero.Wat2Wasm(wat)
	if err != nil {
		return nil, fmt.Errorf("wasm: parse text module: %w", err)
	}
	return bin, nil
}

// Load 编译并实例化模块，name 为空时为匿名模块
func (r *Runtime) Load(ctx context.Context, name string, bin []byte) (*Module, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrRuntimeClosed
	}

	compiled, err := r.rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("wasm: compile: %w", err)
	}

	mod, err := r.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("wasm: instantiate: %w", err)
	}

	return &Module{
		name:        name,
		mod:         mod,
		compiled:    compiled,
		callTimeout: r.config.CallTimeout,
	}, nil
}

// LoadText 编译并实例化 WAT 文本模块
func (r *Runtime) LoadText(ctx context.Context, name, wat string) (*Module, error) {
	bin, err := CompileText(wat)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, name, bin)
}

// ExecText 加载文本模块并以 42 调用 mainFn，返回结果
func (r *Runtime) ExecText(ctx context.Context, wat, mainFn string) (int32, error) {
	mod, err := r.LoadText(ctx, "", wat)
	if err != nil {
		return 0, err
	}
	defer mod.Close(ctx)

	result, err := mod.CallI32(ctx, mainFn, TextModuleArg)
	if err != nil {
		return 0, err
	}
	logger.Info("WASM 文本模块执行完成", "function", mainFn, "result", result)
	return result, nil
}

// ExecNative 加载二进制模块并调用 sum(1, 2)，返回结果
func (r *Runtime) ExecNative(ctx context.Context, bin []byte) (int32, error) {
	mod, err := r.Load(ctx, "", bin)
	if err != nil {
		return 0, err
	}
	defer mod.Close(ctx)

	result, err := mod.CallI32(ctx, SumFunction, 1, 2)
	if err != nil {
		return 0, err
	}
	logger.Info("WASM 模块执行完成", "function", SumFunction, "result", result)
	return result, nil
}

// Close 关闭运行时及其全部模块
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rt.Close(ctx)
}

// exportedFunction 查找导出函数
func exportedFunction(mod api.Module, name string) (api.Function, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotExported, name)
	}
	return fn, nil
}
