package coreoverlay

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/identity"
	"github.com/coreoverlay/go-coreoverlay/internal/core/ping"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/mdns"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var fxLogger = log.Logger("coreoverlay/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Identity → Storage → Host → Ping
//  2. DHT（Discovery.EnableDHT）
//  3. mDNS（Discovery.EnableMDNS，依赖 DHT 路由表）
//  4. 用户扩展 Fx 选项
//
// Fx App 不可重复启动，每次 Start 都会重新构建。
func buildFxApp(e *Engine) (*fx.App, error) {
	cfg := e.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	key := e.identity.PrivateKey()
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(fx.Annotate(
			func() crypto.PrivateKey { return key },
			fx.ResultTags(`name:"user_key"`),
		)),

		identity.Module(),
		storage.Module(),
		host.Module(),
		ping.Module(),
	}

	if reg := e.opts.registerer; reg != nil {
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	if cfg.Discovery.EnableDHT {
		modules = append(modules, dht.Module())
	}
	if cfg.Discovery.EnableMDNS {
		modules = append(modules, mdns.Module())
		fxLogger.Debug("已加载 mDNS 模块", "service", cfg.Discovery.MDNS.ServiceName)
	}

	if len(e.opts.userFxOptions) > 0 {
		modules = append(modules, e.opts.userFxOptions...)
	}

	modules = append(modules,
		fx.Invoke(injectEngineComponents(e)),
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app failed: %w", err)
	}
	return app, nil
}

// engineComponents 注入 Engine 的内部组件
type engineComponents struct {
	fx.In

	Identity *identity.Identity
	Host     *host.Host
	Ping     *ping.Service
	DHT      *dht.DHT   `optional:"true"`
	MDNS     *mdns.MDNS `optional:"true"`
}

func injectEngineComponents(e *Engine) func(engineComponents) {
	return func(c engineComponents) {
		e.host = c.Host
		e.ping = c.Ping
		e.dht = c.DHT
		e.mdns = c.MDNS
		fxLogger.Debug("组件注入完成",
			"peer", c.Identity.PeerID().ShortString(),
			"dht", c.DHT != nil,
			"mdns", c.MDNS != nil)
	}
}
