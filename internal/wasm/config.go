package wasm

import (
	"time"

	"github.com/coreoverlay/go-coreoverlay/config"
)

// Mode 执行模式
type Mode string

const (
	// ModeCompiler 编译执行，平台不支持时 wazero 自动回退到解释器
	ModeCompiler Mode = "compiler"

	// ModeInterpreter 解释执行
	ModeInterpreter Mode = "interpreter"
)

// Config 运行时配置
type Config struct {
	// Mode 执行模式
	Mode Mode

	// MemoryLimitPages 单个模块内存页上限，0 表示使用 wazero 默认值
	MemoryLimitPages uint32

	// EnableWASI 是否实例化 wasi_snapshot_preview1
	EnableWASI bool

	// CallTimeout 单次调用超时，0 表示不限制
	CallTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeCompiler,
		MemoryLimitPages: 256,
		EnableWASI:       true,
	}
}

// ConfigFromUnified 从统一配置创建运行时配置
func ConfigFromUnified(wc config.WasmConfig) *Config {
	return &Config{
		Mode:             Mode(wc.Mode),
		MemoryLimitPages: wc.MemoryLimitPages,
		EnableWASI:       wc.EnableWASI,
		CallTimeout:      wc.CallTimeout.Duration(),
	}
}
