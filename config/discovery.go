package config

import (
	"fmt"
	"time"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// DiscoveryConfig 节点发现配置
type DiscoveryConfig struct {
	// EnableDHT 是否启用 DHT
	EnableDHT bool `json:"enable_dht" yaml:"enable_dht"`

	// EnableMDNS 是否启用局域网 mDNS 发现
	EnableMDNS bool `json:"enable_mdns" yaml:"enable_mdns"`

	// BootstrapPeers 引导节点地址
	// 格式：/ip4/1.2.3.4/tcp/8000/p2p/<PeerID> 或 host:port
	BootstrapPeers []string `json:"bootstrap_peers,omitempty" yaml:"bootstrap_peers,omitempty"`

	// DHT DHT 参数
	DHT DHTConfig `json:"dht" yaml:"dht"`

	// MDNS mDNS 参数
	MDNS MDNSConfig `json:"mdns" yaml:"mdns"`
}

// DHTConfig DHT 参数
type DHTConfig struct {
	// BucketSize K-桶大小
	BucketSize int `json:"bucket_size" yaml:"bucket_size" validate:"min=1,max=256"`

	// Alpha 并发查询参数
	Alpha int `json:"alpha" yaml:"alpha" validate:"min=1,max=32"`

	// QueryTimeout 单次迭代查询超时
	QueryTimeout Duration `json:"query_timeout" yaml:"query_timeout"`

	// RefreshInterval 路由表刷新间隔
	RefreshInterval Duration `json:"refresh_interval" yaml:"refresh_interval"`

	// RepublishInterval 本地记录重新发布间隔
	RepublishInterval Duration `json:"republish_interval" yaml:"republish_interval"`

	// RecordTTL 值记录存活时间
	RecordTTL Duration `json:"record_ttl" yaml:"record_ttl"`

	// ProviderTTL Provider 记录存活时间
	ProviderTTL Duration `json:"provider_ttl" yaml:"provider_ttl"`

	// CleanupInterval 过期记录清理间隔
	CleanupInterval Duration `json:"cleanup_interval" yaml:"cleanup_interval"`

	// RateLimit 每个对端每秒允许的入站请求数，0 表示不限制
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`

	// RateBurst 入站请求突发容量
	RateBurst int `json:"rate_burst" yaml:"rate_burst" validate:"gte=0"`
}

// MDNSConfig mDNS 参数
type MDNSConfig struct {
	// ServiceName 服务名
	ServiceName string `json:"service_name" yaml:"service_name" validate:"required"`

	// Interval 查询间隔
	Interval Duration `json:"interval" yaml:"interval"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		EnableDHT:  true,
		EnableMDNS: false,
		DHT:        DefaultDHTConfig(),
		MDNS: MDNSConfig{
			ServiceName: "_coreoverlay._tcp",
			Interval:    Duration(10 * time.Second),
		},
	}
}

// DefaultDHTConfig 返回默认 DHT 参数
func DefaultDHTConfig() DHTConfig {
	return DHTConfig{
		BucketSize:        20,
		Alpha:             3,
		QueryTimeout:      Duration(30 * time.Second),
		RefreshInterval:   Duration(time.Hour),
		RepublishInterval: Duration(time.Hour),
		RecordTTL:         Duration(24 * time.Hour),
		ProviderTTL:       Duration(24 * time.Hour),
		CleanupInterval:   Duration(10 * time.Minute),
		RateLimit:         50,
		RateBurst:         100,
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	for _, addr := range c.BootstrapPeers {
		if _, err := types.ParseAddrInfo(addr); err != nil {
			return fmt.Errorf("discovery: invalid bootstrap peer %q: %w", addr, err)
		}
	}
	d := c.DHT
	if d.QueryTimeout <= 0 || d.RecordTTL <= 0 || d.ProviderTTL <= 0 {
		return fmt.Errorf("discovery: dht timeouts and ttls must be positive")
	}
	if d.RepublishInterval > 0 && d.RepublishInterval >= d.RecordTTL {
		return fmt.Errorf("discovery: republish_interval (%s) must be shorter than record_ttl (%s)",
			d.RepublishInterval, d.RecordTTL)
	}
	return nil
}
