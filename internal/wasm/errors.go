package wasm

import "errors"

// 预定义错误
var (
	// ErrFunctionNotExported 模块未导出指定函数
	ErrFunctionNotExported = errors.New("wasm: function not exported")

	// ErrMemoryNotExported 模块未导出内存
	ErrMemoryNotExported = errors.New("wasm: memory not exported")

	// ErrOutOfBounds 内存访问越界
	ErrOutOfBounds = errors.New("wasm: memory access out of bounds")

	// ErrRuntimeClosed 运行时已关闭
	ErrRuntimeClosed = errors.New("wasm: runtime closed")

	// ErrNoResult 函数没有返回值
	ErrNoResult = errors.New("wasm: function returned no result")

	// ErrInvalidPackage 包格式错误
	ErrInvalidPackage = errors.New("wasm: invalid package")
)
