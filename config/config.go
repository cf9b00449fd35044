// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义。
// 支持 JSON 与 YAML 两种文件格式。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Discovery.EnableMDNS = true
//
//	// 从文件加载（按扩展名选择格式）
//	cfg, err := config.Load("overlay.yaml")
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config CoreOverlay 的完整配置
//
//   - Identity: 身份和密钥
//   - Transport: 监听地址与连接参数
//   - Discovery: DHT / mDNS / 引导节点
//   - Storage: 数据目录
//   - Wasm: WASM 运行时
//   - Metrics: Prometheus 指标
//   - Log: 日志级别与格式
type Config struct {
	Identity  IdentityConfig  `json:"identity" yaml:"identity"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Wasm      WasmConfig      `json:"wasm" yaml:"wasm"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Storage:   DefaultStorageConfig(),
		Wasm:      DefaultWasmConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// NewBootstrapConfig 创建引导节点配置
//
// 监听 127.0.0.1:8000，数据目录为 ./.compute-dht，持久化存储。
func NewBootstrapConfig() *Config {
	cfg := NewConfig()
	cfg.Transport.ListenAddrs = []string{DefaultBootstrapListenAddr}
	cfg.Storage.DataDir = DefaultBootstrapDataDir
	cfg.Identity.KeyFile = DefaultBootstrapKeyFile
	return cfg
}

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 验证配置
//
// 先按结构体标签做字段级校验，再做跨字段检查。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describeValidation(err))
	}
	for _, sub := range []interface{ Validate() error }{
		c.Identity, c.Transport, c.Discovery, c.Storage, c.Wasm, c.Metrics,
	} {
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// describeValidation 将 validator 错误转换为简洁描述
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
}
