package dht

import (
	"fmt"
	"time"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// Config DHT 配置
type Config struct {
	// BucketSize K-桶大小
	BucketSize int

	// Alpha 并发查询参数
	Alpha int

	// QueryTimeout 迭代查询超时
	QueryTimeout time.Duration

	// RequestTimeout 单个请求超时
	RequestTimeout time.Duration

	// RefreshInterval 路由表刷新间隔
	RefreshInterval time.Duration

	// RepublishInterval 本地记录重新发布间隔，0 表示不重新发布
	RepublishInterval time.Duration

	// RecordTTL 值记录 TTL
	RecordTTL time.Duration

	// ProviderTTL Provider 记录 TTL
	ProviderTTL time.Duration

	// CleanupInterval 清理间隔
	CleanupInterval time.Duration

	// RateLimit 每个对端每秒允许的入站请求数，0 表示不限制
	RateLimit float64

	// RateBurst 入站请求突发容量
	RateBurst int

	// MaxProviderKeys 内存中最多缓存的 Provider 键数量
	MaxProviderKeys int

	// BootstrapPeers 引导节点
	BootstrapPeers []types.AddrInfo
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BucketSize:        BucketSize,
		Alpha:             Alpha,
		QueryTimeout:      30 * time.Second,
		RequestTimeout:    10 * time.Second,
		RefreshInterval:   BucketRefreshInterval,
		RepublishInterval: time.Hour,
		RecordTTL:         24 * time.Hour,
		ProviderTTL:       24 * time.Hour,
		CleanupInterval:   10 * time.Minute,
		RateLimit:         50,
		RateBurst:         100,
		MaxProviderKeys:   DefaultMaxProviderKeys,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch {
	case c.BucketSize <= 0:
		return fmt.Errorf("%w: bucket size must be positive", ErrInvalidConfig)
	case c.Alpha <= 0:
		return fmt.Errorf("%w: alpha must be positive", ErrInvalidConfig)
	case c.QueryTimeout <= 0 || c.RequestTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.RecordTTL <= 0 || c.ProviderTTL <= 0:
		return fmt.Errorf("%w: ttls must be positive", ErrInvalidConfig)
	case c.RateLimit < 0 || c.RateBurst < 0:
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建 DHT 配置
//
// 无法解析的引导节点会被跳过并记录日志。
func ConfigFromUnified(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}

	d := cfg.Discovery.DHT
	c.BucketSize = d.BucketSize
	c.Alpha = d.Alpha
	c.QueryTimeout = d.QueryTimeout.Duration()
	c.RefreshInterval = d.RefreshInterval.Duration()
	c.RepublishInterval = d.RepublishInterval.Duration()
	c.RecordTTL = d.RecordTTL.Duration()
	c.ProviderTTL = d.ProviderTTL.Duration()
	c.CleanupInterval = d.CleanupInterval.Duration()
	c.RateLimit = d.RateLimit
	c.RateBurst = d.RateBurst
	c.BootstrapPeers = parseBootstrapPeers(cfg.Discovery.BootstrapPeers)
	return c
}

func parseBootstrapPeers(addrs []string) []types.AddrInfo {
	var peers []types.AddrInfo
	for _, addr := range addrs {
		info, err := types.ParseAddrInfo(addr)
		if err != nil {
			logger.Debug("解析 DHT 引导节点地址失败", "addr", addr, "error", err)
			continue
		}
		peers = append(peers, info)
	}
	return peers
}
