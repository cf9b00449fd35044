package config

import (
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// 默认监听地址
const (
	// DefaultListenAddr 随机端口，适合嵌入式引擎
	DefaultListenAddr = "/ip4/0.0.0.0/tcp/0"

	// DefaultBootstrapListenAddr 引导节点地址
	DefaultBootstrapListenAddr = "/ip4/127.0.0.1/tcp/8000"
)

// TransportConfig 传输层配置
//
// 连接升级顺序：TCP → Noise → yamux。
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr 格式）
	ListenAddrs []string `json:"listen_addrs" yaml:"listen_addrs" validate:"dive,required"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// HandshakeTimeout 安全握手与协议协商超时
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// MaxPeers 同时连接的节点上限
	MaxPeers int `json:"max_peers" yaml:"max_peers" validate:"gte=16"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs:      []string{DefaultListenAddr},
		DialTimeout:      Duration(10 * time.Second),
		HandshakeTimeout: Duration(10 * time.Second),
		MaxPeers:         1024,
	}
}

// Validate 验证监听地址格式和超时
func (c TransportConfig) Validate() error {
	for _, s := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return fmt.Errorf("transport: invalid listen addr %q: %w", s, err)
		}
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return fmt.Errorf("transport: timeouts must be positive")
	}
	return nil
}
