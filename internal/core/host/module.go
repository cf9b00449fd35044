package host

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config  *config.Config `optional:"true"`
	PrivKey crypto.PrivateKey
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Host *Host
}

// Module 返回 Host Fx 模块
//
// 生命周期:
//   - OnStart: 监听 Transport.ListenAddrs
//   - OnStop: 关闭监听器与全部连接
func Module() fx.Option {
	return fx.Module("host",
		fx.Provide(ProvideHost),
		fx.Invoke(registerLifecycle),
	)
}

// OptionsFromConfig 从统一配置生成 Host 选项
func OptionsFromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	t := cfg.Transport
	return []Option{
		WithDialTimeout(time.Duration(t.DialTimeout)),
		WithHandshakeTimeout(time.Duration(t.HandshakeTimeout)),
		WithMaxPeers(t.MaxPeers),
	}
}

// ProvideHost 提供 Host 服务
func ProvideHost(in ModuleInput) (ModuleOutput, error) {
	h, err := New(in.PrivKey, OptionsFromConfig(in.Config)...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Host: h}, nil
}

type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Host   *Host
	Config *config.Config `optional:"true"`
}

func registerLifecycle(in lifecycleInput) {
	h := in.Host
	in.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var addrs []string
			if in.Config != nil {
				addrs = in.Config.Transport.ListenAddrs
			}
			if len(addrs) == 0 {
				addrs = []string{config.DefaultListenAddr}
			}
			if err := h.Listen(addrs...); err != nil {
				logger.Error("Host 启动失败", "error", err)
				return err
			}
			logger.Info("Host 已启动", "peer", h.ID().String())
			return nil
		},
		OnStop: func(_ context.Context) error {
			return h.Close()
		},
	})
}
