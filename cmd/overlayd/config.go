package main

import (
	"fmt"
	"strings"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// 环境变量（均使用 COREOVERLAY_ 前缀）
const (
	EnvPrefix          = "COREOVERLAY_"
	EnvListenAddrs     = "LISTEN_ADDRS"
	EnvDataDir         = "DATA_DIR"
	EnvInMemory        = "IN_MEMORY"
	EnvIdentityKeyFile = "IDENTITY_KEY_FILE"
	EnvBootstrapPeers  = "BOOTSTRAP_PEERS"
	EnvEnableMDNS      = "ENABLE_MDNS"
	EnvMetricsAddr     = "METRICS_ADDR"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 日志级别与格式由 pkg/lib/log 直接读取 COREOVERLAY_LOG_LEVEL / COREOVERLAY_LOG_FORMAT。
func applyEnvOverrides(cfg *config.Config, getenv func(string) string) error {
	env := func(name string) string { return strings.TrimSpace(getenv(EnvPrefix + name)) }

	if v := env(EnvListenAddrs); v != "" {
		var addrs []string
		for _, s := range splitAndTrim(v, ",") {
			addr, err := normalizeListenAddr(s)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, EnvListenAddrs, err)
			}
			addrs = append(addrs, addr)
		}
		cfg.Transport.ListenAddrs = addrs
	}
	if v := env(EnvDataDir); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := env(EnvInMemory); v != "" {
		cfg.Storage.InMemory = parseBool(v)
	}
	if v := env(EnvIdentityKeyFile); v != "" {
		cfg.Identity.KeyFile = v
	}
	if v := env(EnvBootstrapPeers); v != "" {
		cfg.Discovery.BootstrapPeers = splitAndTrim(v, ",")
	}
	if v := env(EnvEnableMDNS); v != "" {
		cfg.Discovery.EnableMDNS = parseBool(v)
	}
	if v := env(EnvMetricsAddr); v != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = v
	}
	return nil
}

// normalizeListenAddr 把 host:port 转换为 multiaddr，multiaddr 原样返回
func normalizeListenAddr(s string) (string, error) {
	if strings.HasPrefix(s, "/") {
		return s, nil
	}
	addr, err := types.FromHostPort(s)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// applyLogConfig 将配置文件中的日志设置叠加到环境变量之上
func applyLogConfig(lc config.LogConfig) {
	if lc.Level == "" && lc.Format == "" {
		return
	}
	c := log.ConfigFromEnv()
	if lc.Level != "" {
		log.ParseLevelSpec(c, lc.Level)
	}
	switch lc.Format {
	case "json":
		c.Format = log.FormatJSON
	case "text":
		c.Format = log.FormatText
	}
	log.Configure(c)
}

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
