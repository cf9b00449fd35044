// Package bridge 实现 libcoreoverlay C 接口背后的逻辑
//
// cgo 导出层只负责 C 类型转换，所有状态（引擎句柄、最近错误）都在这里维护，
// 因而可以在不启用 cgo 的情况下测试。句柄是进程内递增的整数，
// 多线程并发调用安全。
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	coreoverlay "github.com/coreoverlay/go-coreoverlay"
	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var logger = log.Logger("bridge")

// OpTimeout 单次 C 调用的超时
const OpTimeout = 30 * time.Second

// Handle 引擎句柄
type Handle uint64

// registry 句柄到引擎的映射
type registry struct {
	mu      sync.RWMutex
	next    Handle
	engines map[Handle]*coreoverlay.Engine
}

var engines = &registry{engines: make(map[Handle]*coreoverlay.Engine)}

func (r *registry) add(e *coreoverlay.Engine) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.engines[r.next] = e
	return r.next
}

func (r *registry) get(h Handle) (*coreoverlay.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[h]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return e, nil
}

func (r *registry) remove(h Handle) (*coreoverlay.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[h]
	delete(r.engines, h)
	return e, ok
}

// EngineInfo new_dht 返回给宿主的引擎信息
type EngineInfo struct {
	Handle Handle
	PeerID string

	// PublicKey 序列化后的公钥，私钥不跨越 C 边界
	PublicKey []byte
}

// NewEngine 生成 Ed25519 密钥并创建未启动的引擎
func NewEngine(opts ...coreoverlay.Option) (EngineInfo, error) {
	e, err := coreoverlay.New(opts...)
	if err != nil {
		return EngineInfo{}, record(err)
	}
	pub, err := e.Identity().MarshalPublicKey()
	if err != nil {
		_ = e.Close()
		return EngineInfo{}, record(err)
	}
	h := engines.add(e)
	logger.Info("已创建引擎", "handle", uint64(h), "peer", e.LocalPeerID().ShortString())
	return EngineInfo{Handle: h, PeerID: e.LocalPeerID().String(), PublicKey: pub}, nil
}

// FreeEngine 停止并释放引擎，句柄不存在时什么都不做
func FreeEngine(h Handle) error {
	e, ok := engines.remove(h)
	if !ok {
		return nil
	}
	logger.Info("释放引擎", "handle", uint64(h))
	return record(e.Close())
}

// Start 在 listenOn 上启动引擎，listenOn 为空时监听随机端口
func Start(h Handle, listenOn string) error {
	e, err := engines.get(h)
	if err != nil {
		return record(err)
	}
	if listenOn == "" {
		listenOn = config.DefaultListenAddr
	}
	if err := e.SetListenAddrs(listenOn); err != nil {
		return record(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()
	return record(e.Start(ctx))
}

// Bootstrap 连接 addr 并执行 DHT Bootstrap
func Bootstrap(h Handle, addr string) error {
	return withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) error {
		if addr == "" {
			return ErrNilArgument
		}
		return e.Bootstrap(ctx, addr)
	})
}

// Put 存储键值
func Put(h Handle, key string, value []byte) error {
	return withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) error {
		return e.Put(ctx, key, value)
	})
}

// Get 获取值，未找到时返回 dht.ErrKeyNotFound
func Get(h Handle, key string) ([]byte, error) {
	var value []byte
	err := withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) (err error) {
		value, err = e.Get(ctx, key)
		return err
	})
	return value, err
}

// Provide 宣告为 key 的 Provider
func Provide(h Handle, key string) error {
	return withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) error {
		return e.Provide(ctx, key)
	})
}

// FindProviders 返回换行分隔的 Provider PeerID
func FindProviders(h Handle, key string) (string, error) {
	var out string
	err := withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) error {
		providers, err := e.FindProviders(ctx, key)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(providers))
		for _, p := range providers {
			ids = append(ids, p.ID.String())
		}
		out = strings.Join(ids, "\n")
		return nil
	})
	return out, err
}

// Exec 执行一行文本命令
func Exec(h Handle, line string) (string, error) {
	var out string
	err := withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) (err error) {
		out, err = e.Exec(ctx, line)
		return err
	})
	return out, err
}

// Ping 返回以微秒计的往返时延
func Ping(h Handle, peer string) (int64, error) {
	var rtt time.Duration
	err := withEngine(h, func(ctx context.Context, e *coreoverlay.Engine) (err error) {
		rtt, err = e.Ping(ctx, peer)
		return err
	})
	if err != nil {
		return -1, err
	}
	return rtt.Microseconds(), nil
}

// IsNotFound 错误是否表示键不存在
func IsNotFound(err error) bool {
	return errors.Is(err, dht.ErrKeyNotFound)
}

func withEngine(h Handle, fn func(context.Context, *coreoverlay.Engine) error) error {
	e, err := engines.get(h)
	if err != nil {
		return record(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()
	if err := fn(ctx, e); err != nil {
		return record(fmt.Errorf("engine %d: %w", uint64(h), err))
	}
	return nil
}
