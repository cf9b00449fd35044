package mdns

import (
	"fmt"
	"time"

	"github.com/coreoverlay/go-coreoverlay/config"
)

const (
	// DefaultServiceTag mDNS 服务标签
	DefaultServiceTag = "_coreoverlay._tcp"

	// DefaultDomain mDNS 域名
	DefaultDomain = "local."

	// DefaultInterval 查询间隔
	DefaultInterval = 10 * time.Second

	// DefaultQueryTimeout 单次查询等待响应的时间
	DefaultQueryTimeout = 3 * time.Second

	// DefaultPeerTTL 未再被发现的节点保留时间
	DefaultPeerTTL = 10 * time.Minute
)

// Config mDNS 配置
type Config struct {
	// ServiceTag 服务标签，用于区分不同的覆盖网络
	ServiceTag string

	// Domain 域名
	Domain string

	// Interval 查询间隔
	Interval time.Duration

	// QueryTimeout 单次查询超时
	QueryTimeout time.Duration

	// PeerTTL 节点条目过期时间
	PeerTTL time.Duration

	// Interface 指定网络接口，空表示所有接口
	Interface string

	// DisableIPv6 禁用 IPv6
	DisableIPv6 bool

	// Enabled 是否启用
	Enabled bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceTag:   DefaultServiceTag,
		Domain:       DefaultDomain,
		Interval:     DefaultInterval,
		QueryTimeout: DefaultQueryTimeout,
		PeerTTL:      DefaultPeerTTL,
		DisableIPv6:  true,
		Enabled:      true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	case c.ServiceTag == "":
		return fmt.Errorf("%w: service tag is empty", ErrInvalidConfig)
	case c.Interval <= 0 || c.QueryTimeout <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConfigOption 配置选项函数
type ConfigOption func(*Config)

// ApplyOptions 应用配置选项
func (c *Config) ApplyOptions(opts ...ConfigOption) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithServiceTag 设置服务标签
func WithServiceTag(tag string) ConfigOption {
	return func(c *Config) {
		c.ServiceTag = tag
	}
}

// WithInterval 设置查询间隔
func WithInterval(interval time.Duration) ConfigOption {
	return func(c *Config) {
		c.Interval = interval
	}
}

// WithInterface 指定网络接口
func WithInterface(name string) ConfigOption {
	return func(c *Config) {
		c.Interface = name
	}
}

// ConfigFromUnified 从统一配置创建 mDNS 配置
func ConfigFromUnified(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil || !cfg.Discovery.EnableMDNS {
		c.Enabled = false
		return c
	}
	m := cfg.Discovery.MDNS
	if m.ServiceName != "" {
		c.ServiceTag = m.ServiceName
	}
	if d := m.Interval.Duration(); d > 0 {
		c.Interval = d
	}
	return c
}
