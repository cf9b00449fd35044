package config

import "fmt"

// WasmConfig WASM 运行时配置
type WasmConfig struct {
	// Mode 执行模式：compiler（默认，平台不支持时自动回退）或 interpreter
	Mode string `json:"mode" yaml:"mode" validate:"oneof=compiler interpreter"`

	// MemoryLimitPages 单个模块内存页上限（64KiB/页），0 表示不限制
	MemoryLimitPages uint32 `json:"memory_limit_pages" yaml:"memory_limit_pages" validate:"lte=65536"`

	// EnableWASI 是否实例化 wasi_snapshot_preview1
	EnableWASI bool `json:"enable_wasi" yaml:"enable_wasi"`

	// CallTimeout 单次函数调用超时，0 表示不限制
	CallTimeout Duration `json:"call_timeout" yaml:"call_timeout"`
}

// DefaultWasmConfig 返回默认 WASM 配置
func DefaultWasmConfig() WasmConfig {
	return WasmConfig{
		Mode:             "compiler",
		MemoryLimitPages: 256, // 16MiB
		EnableWASI:       true,
	}
}

// Validate 验证 WASM 配置
func (c WasmConfig) Validate() error {
	if c.CallTimeout < 0 {
		return fmt.Errorf("wasm: call_timeout cannot be negative")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否采集指标
	Enable bool `json:"enable" yaml:"enable"`

	// ListenAddr /metrics HTTP 监听地址（仅守护进程使用），为空则不暴露
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" validate:"omitempty,hostname_port"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enable: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr != "" && !c.Enable {
		return fmt.Errorf("metrics: listen_addr set but metrics disabled")
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别串，格式同 COREOVERLAY_LOG_LEVEL
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format text 或 json
	Format string `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// DefaultLogConfig 返回默认日志配置（空值表示沿用环境变量）
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}
