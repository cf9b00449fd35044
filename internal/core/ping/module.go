package ping

import (
	"context"

	"go.uber.org/fx"
)

// Module 返回 Ping Fx 模块
func Module() fx.Option {
	return fx.Module("ping",
		fx.Provide(NewService),
		fx.Invoke(func(lc fx.Lifecycle, s *Service) {
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return s.Close() },
			})
		}),
	)
}
