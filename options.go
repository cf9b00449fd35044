package coreoverlay

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// Option 引擎配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 统一配置，nil 时使用嵌入式默认配置
	config *config.Config

	// 外部注入的私钥
	privateKey crypto.PrivateKey

	listenAddrs    []string
	bootstrapPeers []string

	// Prometheus 注册器，nil 时不导出指标
	registerer prometheus.Registerer

	// 用户扩展 Fx 选项
	userFxOptions []fx.Option
}

// DefaultConfig 返回嵌入式引擎的默认配置
//
// 与 config.NewConfig 的区别：存储仅在内存中，身份为临时密钥。
// 同一进程内的多个引擎因此不会争用同一个数据目录。
func DefaultConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Storage.InMemory = true
	return cfg
}

// WithConfig 使用完整配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		o.config = cfg
		return nil
	}
}

// WithIdentity 使用指定私钥作为节点身份
func WithIdentity(key crypto.PrivateKey) Option {
	return func(o *options) error {
		if key == nil {
			return errors.New("identity key cannot be nil")
		}
		o.privateKey = key
		return nil
	}
}

// WithListenAddrs 设置监听地址（multiaddr 格式）
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.listenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithBootstrapPeers 设置引导节点
//
// 格式：/ip4/1.2.3.4/tcp/8000/p2p/<PeerID> 或 host:port
func WithBootstrapPeers(peers ...string) Option {
	return func(o *options) error {
		for _, p := range peers {
			if _, err := types.ParseAddrInfo(p); err != nil {
				return err
			}
		}
		o.bootstrapPeers = append([]string(nil), peers...)
		return nil
	}
}

// WithMetricsRegistry 设置 Prometheus 注册器，DHT 指标注册到其中
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
//
// 可用于注入额外组件或调用 fx.Invoke 访问内部服务。
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}

// resolveConfig 合并选项与配置，不修改调用方传入的 Config
func (o *options) resolveConfig() *config.Config {
	var cfg config.Config
	if o.config != nil {
		cfg = *o.config
	} else {
		cfg = *DefaultConfig()
	}
	if len(o.listenAddrs) > 0 {
		cfg.Transport.ListenAddrs = o.listenAddrs
	}
	if len(o.bootstrapPeers) > 0 {
		cfg.Discovery.BootstrapPeers = o.bootstrapPeers
	}
	if o.registerer != nil {
		cfg.Metrics.Enable = true
	}
	return &cfg
}
