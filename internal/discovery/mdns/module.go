package mdns

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/peerstore"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// connectTimeout 连接新发现节点的超时
const connectTimeout = 10 * time.Second

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	Host       *host.Host
	UnifiedCfg *config.Config `optional:"true"`
}

// ModuleOutput Fx 输出
type ModuleOutput struct {
	fx.Out

	MDNS *MDNS
}

// Module 返回 mDNS Fx 模块
//
// 生命周期:
//   - OnStart: 注册服务并启动查询，新节点连接后加入 DHT 路由表
//   - OnStop: 停止服务
func Module() fx.Option {
	return fx.Module("discovery_mdns",
		fx.Provide(ProvideMDNS),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideMDNS 提供 mDNS 服务
func ProvideMDNS(in ModuleInput) (ModuleOutput, error) {
	m, err := New(in.Host, ConfigFromUnified(in.UnifiedCfg))
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{MDNS: m}, nil
}

type lifecycleInput struct {
	fx.In

	LC   fx.Lifecycle
	Host *host.Host
	MDNS *MDNS
	DHT  *dht.DHT `optional:"true"`
}

func registerLifecycle(in lifecycleInput) {
	ctx, cancel := context.WithCancel(context.Background())
	in.MDNS.SetPeerHandler(ConnectHandler(ctx, in.Host, in.DHT))

	in.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return in.MDNS.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return in.MDNS.Close()
		},
	})
}

// ConnectHandler 返回连接新发现节点的回调，d 不为 nil 时把节点加入 DHT 路由表
func ConnectHandler(ctx context.Context, h *host.Host, d *dht.DHT) PeerHandler {
	return func(info types.AddrInfo) {
		if h.IsConnected(info.ID) {
			return
		}
		go func() {
			cctx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.LANAddrTTL)
			if _, err := h.Connect(cctx, types.AddrInfo{ID: info.ID}); err != nil {
				logger.Debug("连接 mDNS 节点失败", "peer", info.ID.ShortString(), "error", err)
				return
			}
			if d != nil {
				d.AddPeer(info)
			}
			logger.Info("已连接 mDNS 节点", "peer", info.ID.ShortString())
		}()
	}
}
