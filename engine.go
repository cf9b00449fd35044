package coreoverlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/identity"
	"github.com/coreoverlay/go-coreoverlay/internal/core/ping"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/mdns"
	"github.com/coreoverlay/go-coreoverlay/internal/wasm"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("coreoverlay")

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// stopTimeout Close 内部停止超时
	stopTimeout = 10 * time.Second
)

// Engine CoreOverlay DHT 引擎
//
// New 只生成身份，不占用网络资源；Start 之后才监听地址并加入 DHT。
// 可以多次调用 Start/Stop，Close 之后引擎不可再用。
type Engine struct {
	opts     *options
	config   *config.Config
	identity *identity.Identity

	mu      sync.Mutex
	app     *fx.App
	started bool
	closed  bool

	// 由 Fx 注入，仅在运行期间有效
	host *host.Host
	ping *ping.Service
	dht  *dht.DHT
	mdns *mdns.MDNS

	rtMu    sync.Mutex
	runtime *wasm.Runtime
}

// CoreOverlayDHTEngine 是 Engine 的别名，与 C 接口中的名字一致
type CoreOverlayDHTEngine = Engine

// New 创建引擎（未启动）
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option failed: %w", err)
		}
	}

	cfg := o.resolveConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		id  *identity.Identity
		err error
	)
	if o.privateKey != nil {
		id, err = identity.New(o.privateKey)
	} else {
		id, err = identity.FromConfig(cfg.Identity)
	}
	if err != nil {
		return nil, fmt.Errorf("create identity failed: %w", err)
	}

	logger.Debug("引擎已创建", "peer", id.PeerID().ShortString())
	return &Engine{
		opts:     o,
		config:   cfg,
		identity: id,
	}, nil
}

// LocalKey 返回本地私钥
func (e *Engine) LocalKey() crypto.PrivateKey {
	return e.identity.PrivateKey()
}

// LocalPeerID 返回本地 PeerID
func (e *Engine) LocalPeerID() types.PeerID {
	return e.identity.PeerID()
}

// Identity 返回节点身份
func (e *Engine) Identity() *identity.Identity {
	return e.identity
}

// Config 返回生效的配置
func (e *Engine) Config() *config.Config {
	return e.config
}

// SetListenAddrs 修改监听地址，下一次 Start 生效
func (e *Engine) SetListenAddrs(addrs ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}
	t := e.config.Transport
	t.ListenAddrs = append([]string(nil), addrs...)
	if err := t.Validate(); err != nil {
		return err
	}
	e.config.Transport = t
	return nil
}

// Start 启动引擎
//
// 依次启动存储、Host（监听）、Ping、DHT 与可选的 mDNS。
// 配置了引导节点时 DHT 在后台完成 Bootstrap。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}

	logger.Info("正在启动引擎")
	app, err := buildFxApp(e)
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	if err := app.Start(initCtx); err != nil {
		e.resetComponents()
		logger.Error("引擎启动失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}

	e.app = app
	e.started = true
	logger.Info("引擎已启动", "peer", e.LocalPeerID().ShortString(), "addrs", e.host.Addrs())
	return nil
}

// Stop 停止引擎，未启动时直接返回
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(ctx)
}

func (e *Engine) stopLocked(ctx context.Context) error {
	if !e.started {
		return nil
	}
	logger.Info("正在停止引擎")
	err := e.app.Stop(ctx)
	e.app = nil
	e.started = false
	e.resetComponents()
	if err != nil {
		logger.Warn("引擎停止出错", "error", err)
		return fmt.Errorf("stop failed: %w", err)
	}
	logger.Info("引擎已停止")
	return nil
}

func (e *Engine) resetComponents() {
	e.host = nil
	e.ping = nil
	e.dht = nil
	e.mdns = nil
}

// Close 停止引擎并释放 WASM 运行时，重复调用安全
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := e.stopLocked(ctx)
	e.closed = true
	e.mu.Unlock()

	e.rtMu.Lock()
	if e.runtime != nil {
		err = multierr.Append(err, e.runtime.Close(ctx))
		e.runtime = nil
	}
	e.rtMu.Unlock()
	return err
}

// IsRunning 引擎是否在运行
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Host 返回 Host，未启动时为 nil
func (e *Engine) Host() *host.Host {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host
}

// DHT 返回 DHT，未启动或禁用时为 nil
func (e *Engine) DHT() *dht.DHT {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dht
}

// Addrs 返回带 /p2p/ 后缀的可拨号地址
func (e *Engine) Addrs() []string {
	h := e.Host()
	if h == nil {
		return nil
	}
	addrs := h.Addrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, types.FormatAddr(a, h.ID()))
	}
	return out
}

func (e *Engine) runningDHT() (*dht.DHT, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if !e.started {
		return nil, ErrNotStarted
	}
	if e.dht == nil {
		return nil, ErrDHTDisabled
	}
	return e.dht, nil
}

// Put 在 DHT 中存储值
func (e *Engine) Put(ctx context.Context, key string, value []byte) error {
	d, err := e.runningDHT()
	if err != nil {
		return err
	}
	return d.PutValue(ctx, key, value)
}

// Get 从 DHT 获取值，未找到时返回 dht.ErrKeyNotFound
func (e *Engine) Get(ctx context.Context, key string) ([]byte, error) {
	d, err := e.runningDHT()
	if err != nil {
		return nil, err
	}
	return d.GetValue(ctx, key)
}

// Provide 宣告本节点为 key 的 Provider
func (e *Engine) Provide(ctx context.Context, key string) error {
	d, err := e.runningDHT()
	if err != nil {
		return err
	}
	return d.Provide(ctx, key)
}

// FindProviders 查找 key 的 Provider
func (e *Engine) FindProviders(ctx context.Context, key string) ([]types.AddrInfo, error) {
	d, err := e.runningDHT()
	if err != nil {
		return nil, err
	}
	return d.FindProviders(ctx, key, 0)
}

// Bootstrap 连接引导节点并填充路由表
//
// addrs 为空时使用配置中的引导节点。
func (e *Engine) Bootstrap(ctx context.Context, addrs ...string) error {
	d, err := e.runningDHT()
	if err != nil {
		return err
	}
	peers := make([]types.AddrInfo, 0, len(addrs))
	for _, a := range addrs {
		info, err := types.ParseAddrInfo(a)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPeer, err)
		}
		peers = append(peers, info)
	}
	return d.Bootstrap(ctx, peers...)
}

// Ping 测量到指定节点的往返时延
//
// peer 可以是 PeerID（需已连接或在地址簿中），也可以是完整地址或 host:port。
func (e *Engine) Ping(ctx context.Context, peer string) (time.Duration, error) {
	e.mu.Lock()
	h, svc, started := e.host, e.ping, e.started
	e.mu.Unlock()
	if !started {
		return 0, ErrNotStarted
	}

	id, err := types.ParsePeerID(peer)
	if err != nil {
		info, perr := types.ParseAddrInfo(peer)
		if perr != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPeer, peer)
		}
		if id, err = h.Connect(ctx, info); err != nil {
			return 0, err
		}
	}
	return svc.Ping(ctx, id)
}

// Exec 执行一行文本命令（GET / GET_PROVIDERS / PUT / PUT_PROVIDER）
func (e *Engine) Exec(ctx context.Context, line string) (string, error) {
	d, err := e.runningDHT()
	if err != nil {
		return "", err
	}
	return d.Exec(ctx, line)
}

// Runtime 返回引擎的 WASM 运行时，首次调用时创建
//
// 运行时与网络生命周期无关，未启动的引擎也可以使用。
func (e *Engine) Runtime() (*wasm.Runtime, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	e.rtMu.Lock()
	defer e.rtMu.Unlock()
	if e.runtime != nil {
		return e.runtime, nil
	}
	rt, err := wasm.NewRuntime(context.Background(), wasm.ConfigFromUnified(e.config.Wasm))
	if err != nil {
		return nil, err
	}
	e.runtime = rt
	return rt, nil
}
