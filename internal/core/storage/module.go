// Package storage 为 DHT 值记录、提供者记录和路由表快照提供 badger 存储，
// 并把它作为 Fx 模块接入引擎的生命周期
package storage

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine/badger"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var logger = log.Logger("core/storage")

type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

type Result struct {
	fx.Out

	Engine engine.Engine
}

// Module 引擎在 OnStart 启动值日志 GC，在 OnStop 关闭数据库
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(provide),
		fx.Invoke(bindLifecycle),
	)
}

func provide(p Params) (Result, error) {
	sc := config.NewConfig().Storage
	if p.Config != nil {
		sc = p.Config.Storage
	}
	eng, err := open(EngineConfig(sc))
	return Result{Engine: eng}, err
}

// EngineConfig 统一配置中的存储段到 badger 参数的映射
func EngineConfig(sc config.StorageConfig) *engine.Config {
	if sc.InMemory {
		return engine.InMemoryConfig()
	}
	out := engine.DefaultConfig(sc.DBPath())
	out.SyncWrites = sc.SyncWrites
	out.GCInterval = time.Duration(sc.GCInterval)
	out.Verbose = sc.Verbose
	return out
}

// NewInMemory 不经过 Fx 直接打开一个内存库，供独立使用 DHT 组件的场景
func NewInMemory() (engine.Engine, error) {
	return open(engine.InMemoryConfig())
}

func open(cfg *engine.Config) (engine.Engine, error) {
	eng, err := badger.New(cfg)
	if err != nil {
		logger.Error("打开记录存储失败", "path", cfg.Path, "inMemory", cfg.InMemory, "error", err)
		return nil, err
	}
	logger.Debug("记录存储已打开", "path", cfg.Path, "inMemory", cfg.InMemory)
	return eng, nil
}

func bindLifecycle(lc fx.Lifecycle, eng engine.Engine) {
	lc.Append(fx.StartStopHook(
		func(context.Context) error { return eng.Start() },
		func(context.Context) error {
			if err := eng.Close(); err != nil {
				logger.Warn("关闭记录存储失败", "error", err)
				return err
			}
			return nil
		},
	))
}
