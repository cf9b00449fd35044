package bridge

import (
	"context"

	"github.com/coreoverlay/go-coreoverlay/internal/wasm"
)

// newRuntime 每次调用创建独立运行时，调用结束即释放
func newRuntime(ctx context.Context) (*wasm.Runtime, error) {
	return wasm.NewRuntime(ctx, wasm.DefaultConfig())
}

// ExecWasmText 编译 WAT 文本并调用 mainFn(42)
func ExecWasmText(wat, mainFn string) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return 0, record(err)
	}
	defer rt.Close(ctx)

	result, err := rt.ExecText(ctx, wat, mainFn)
	if err != nil {
		logger.Error("执行 WASM 文本模块失败", "func", mainFn, "error", err)
		return 0, record(err)
	}
	return result, nil
}

// ExecWasmNative 实例化二进制模块并调用 sum(1, 2)
func ExecWasmNative(bin []byte) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return 0, record(err)
	}
	defer rt.Close(ctx)

	result, err := rt.ExecNative(ctx, bin)
	if err != nil {
		logger.Error("执行 WASM 二进制模块失败", "size", len(bin), "error", err)
		return 0, record(err)
	}
	return result, nil
}

// WasmTest 运行内置的 add_one 冒烟模块，结果必须为 43
func WasmTest() error {
	result, err := ExecWasmText(wasm.AddOneWAT, "add_one")
	if err != nil {
		return err
	}
	if result != wasm.TextModuleArg+1 {
		return record(ErrUnexpectedResult)
	}
	return nil
}
