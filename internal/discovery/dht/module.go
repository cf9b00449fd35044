package dht

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
)

// Params DHT 依赖参数
type Params struct {
	fx.In

	Host       *host.Host
	Engine     engine.Engine         `optional:"true"`
	UnifiedCfg *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Result DHT 导出结果
type Result struct {
	fx.Out

	DHT *DHT
}

// Module 返回 DHT Fx 模块
//
// 生命周期:
//   - OnStart: 注册协议处理器，启动后台循环，后台连接引导节点
//   - OnStop: 停止 DHT
func Module() fx.Option {
	return fx.Module("discovery_dht",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// NewFromParams 从 Fx 参数创建 DHT
func NewFromParams(p Params) (Result, error) {
	opts := []Option{WithConfig(ConfigFromUnified(p.UnifiedCfg))}
	if p.Engine != nil {
		opts = append(opts, WithStorage(p.Engine))
	}
	if p.Registerer != nil && (p.UnifiedCfg == nil || p.UnifiedCfg.Metrics.Enable) {
		m, err := NewMetrics(p.Registerer)
		if err != nil {
			return Result{}, err
		}
		opts = append(opts, WithMetrics(m))
	}

	d, err := New(p.Host, opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{DHT: d}, nil
}

func registerLifecycle(lc fx.Lifecycle, d *DHT) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := d.Start(ctx); err != nil {
				logger.Error("DHT 启动失败", "error", err)
				return err
			}
			if len(d.config.BootstrapPeers) > 0 {
				d.goBackground(func() {
					if err := d.Bootstrap(d.ctx); err != nil {
						logger.Warn("DHT Bootstrap 失败", "error", err)
					}
				})
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return d.Close()
		},
	})
}
