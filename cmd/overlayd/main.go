// Package main 提供 overlayd 守护进程入口
//
// overlayd 运行一个常驻的 CoreOverlay DHT 节点，默认作为引导节点
// 监听 127.0.0.1:8000，数据保存在 ./.compute-dht。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreoverlay "github.com/coreoverlay/go-coreoverlay"
	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var logger = log.Logger("overlayd")

// 命令行参数：运行时覆盖，持久化配置写在配置文件里
var (
	configFile   = flag.String("config", "", "配置文件路径（.json / .yaml）")
	listenAddr   = flag.String("listen", "", "监听地址（multiaddr 或 host:port，默认 /ip4/127.0.0.1/tcp/8000）")
	dataDir      = flag.String("data-dir", "", "数据目录（默认 ./.compute-dht）")
	identityFile = flag.String("identity", "", "身份密钥文件路径")
	bootstrap    = flag.String("bootstrap", "", "引导节点，逗号分隔")
	enableMDNS   = flag.Bool("mdns", false, "启用局域网 mDNS 发现")
	inMemory     = flag.Bool("in-memory", false, "仅使用内存存储")
	metricsAddr  = flag.String("metrics-addr", "", "/metrics 监听地址，如 127.0.0.1:9100")
	logLevel     = flag.String("log-level", "", "日志级别，格式同 COREOVERLAY_LOG_LEVEL")
	showVersion  = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("overlayd %s (%s)\n", coreoverlay.Version, coreoverlay.UserAgent())
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	applyLogConfig(cfg.Log)

	reg := newRegistry()
	opts := []coreoverlay.Option{coreoverlay.WithConfig(cfg)}
	if cfg.Metrics.Enable {
		opts = append(opts, coreoverlay.WithMetricsRegistry(reg))
	}

	eng, err := coreoverlay.New(opts...)
	if err != nil {
		return fmt.Errorf("创建引擎失败: %w", err)
	}
	defer func() { _ = eng.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("启动 overlayd", "version", coreoverlay.Version, "peer", eng.LocalPeerID().String())
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	var srv *http.Server
	if cfg.Metrics.Enable && cfg.Metrics.ListenAddr != "" {
		srv = serveMetrics(cfg.Metrics.ListenAddr, reg)
	}

	printNodeInfo(eng)
	fmt.Println("节点已启动，按 Ctrl+C 退出")
	waitForSignal()

	fmt.Println("\n正在关闭节点...")
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("关闭指标服务失败", "error", err)
		}
	}
	return nil
}

// buildConfig 构建配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（COREOVERLAY_* 前缀）
//  3. 配置文件
//  4. 引导节点默认值
func buildConfig() (*config.Config, error) {
	cfg := config.NewBootstrapConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyFlagOverrides 应用显式设置的命令行参数
func applyFlagOverrides(cfg *config.Config) error {
	if isFlagSet("listen") {
		addr, err := normalizeListenAddr(*listenAddr)
		if err != nil {
			return err
		}
		cfg.Transport.ListenAddrs = []string{addr}
	}
	if isFlagSet("data-dir") {
		cfg.Storage.DataDir = *dataDir
	}
	if isFlagSet("identity") {
		cfg.Identity.KeyFile = *identityFile
	}
	if isFlagSet("bootstrap") {
		cfg.Discovery.BootstrapPeers = splitAndTrim(*bootstrap, ",")
	}
	if isFlagSet("mdns") {
		cfg.Discovery.EnableMDNS = *enableMDNS
	}
	if isFlagSet("in-memory") {
		cfg.Storage.InMemory = *inMemory
	}
	if isFlagSet("metrics-addr") {
		cfg.Metrics.Enable = *metricsAddr != ""
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	if isFlagSet("log-level") {
		cfg.Log.Level = *logLevel
	}
	return nil
}

// isFlagSet 检查参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

// printNodeInfo 打印节点信息
func printNodeInfo(eng *coreoverlay.Engine) {
	fmt.Println("════════════════════════════════════════════════════════════")
	fmt.Printf("  PeerID:  %s\n", eng.LocalPeerID())
	for _, addr := range eng.Addrs() {
		fmt.Printf("  地址:    %s\n", addr)
	}
	cfg := eng.Config()
	if cfg.Storage.InMemory {
		fmt.Println("  存储:    内存")
	} else {
		fmt.Printf("  存储:    %s\n", cfg.Storage.DBPath())
	}
	if cfg.Metrics.Enable && cfg.Metrics.ListenAddr != "" {
		fmt.Printf("  指标:    http://%s/metrics\n", cfg.Metrics.ListenAddr)
	}
	fmt.Println("════════════════════════════════════════════════════════════")
}
