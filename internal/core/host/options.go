package host

import "time"

// Config Host 配置
type Config struct {
	// DialTimeout 单个地址的拨号超时（含升级）
	DialTimeout time.Duration

	// HandshakeTimeout 入站连接升级超时
	HandshakeTimeout time.Duration

	// NegotiateTimeout 流协议协商超时
	NegotiateTimeout time.Duration

	// MaxPeers 同时连接的节点上限，0 表示不限
	MaxPeers int

	// PeerstoreCapacity 地址簿容量
	PeerstoreCapacity int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:       15 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		NegotiateTimeout:  10 * time.Second,
		MaxPeers:          1024,
		PeerstoreCapacity: 4096,
	}
}

// Option Host 构造选项
type Option func(*Config)

// WithDialTimeout 设置拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DialTimeout = d
		}
	}
}

// WithHandshakeTimeout 设置入站升级超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.HandshakeTimeout = d
		}
	}
}

// WithMaxPeers 设置连接上限
func WithMaxPeers(n int) Option {
	return func(c *Config) {
		c.MaxPeers = n
	}
}
