// Package badger 用 BadgerDB 实现 engine.Engine
//
// 磁盘模式下定期运行值日志 GC；内存模式只用于测试和临时节点。
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var logger = log.Logger("storage/badger")

// memTableSize DHT 记录很小，64MiB 的默认内存表对嵌入进程来说过大
const memTableSize = 16 << 20

type Engine struct {
	db  *badger.DB
	cfg *engine.Config

	closed atomic.Bool
	stopGC context.CancelFunc
	gcDone sync.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

// New 校验配置、创建目录并打开数据库
func New(cfg *engine.Config) (*Engine, error) {
	if cfg == nil {
		return nil, engine.ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, err
	}

	dir := cfg.Path
	if cfg.InMemory {
		dir = ""
	}
	opts := badger.DefaultOptions(dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithMemTableSize(memTableSize).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if cfg.Verbose {
		opts = opts.WithLogger(slogAdapter{})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return &Engine{db: db, cfg: cfg, stopGC: func() {}}, nil
}

// Start 磁盘模式且 GCInterval > 0 时启动值日志 GC
func (e *Engine) Start() error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	if e.cfg.InMemory || e.cfg.GCInterval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopGC = cancel
	e.gcDone.Add(1)
	go e.runGC(ctx)
	return nil
}

func (e *Engine) runGC(ctx context.Context) {
	defer e.gcDone.Done()
	t := time.NewTicker(e.cfg.GCInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := 0
			for e.db.RunValueLogGC(e.cfg.GCDiscardRatio) == nil {
				n++
			}
			if n > 0 {
				logger.Debug("值日志 GC 完成", "rewrites", n)
			}
		}
	}
}

// check 所有按键访问的操作共用的前置检查
func (e *Engine) check(key []byte) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	if len(key) == 0 {
		return engine.ErrEmptyKey
	}
	return nil
}

func (e *Engine) Get(key []byte) (value []byte, err error) {
	if err := e.check(key); err != nil {
		return nil, err
	}
	err = e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return value, nil
}

func (e *Engine) Put(key, value []byte) error {
	return e.PutWithTTL(key, value, 0)
}

// PutWithTTL ttl <= 0 时记录不过期
func (e *Engine) PutWithTTL(key, value []byte, ttl time.Duration) error {
	if err := e.check(key); err != nil {
		return err
	}
	entry := badger.NewEntry(key, value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return mapErr(e.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(entry) }))
}

func (e *Engine) Delete(key []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return mapErr(e.db.Update(func(txn *badger.Txn) error { return txn.Delete(key) }))
}

func (e *Engine) Has(key []byte) (bool, error) {
	_, err := e.Get(key)
	switch {
	case err == nil:
		return true, nil
	case engine.IsNotFound(err):
		return false, nil
	}
	return false, err
}

// ForEach 前缀迭代，fn 拿到的 value 只在回调内有效
func (e *Engine) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if err := item.Value(func(v []byte) error { return fn(key, v) }); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 可重复调用，只有第一次真正关闭数据库
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.stopGC()
	e.gcDone.Wait()
	logger.Debug("记录存储已关闭", "path", e.cfg.Path, "inMemory", e.cfg.InMemory)
	return e.db.Close()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return engine.ErrNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return engine.ErrEmptyKey
	case errors.Is(err, badger.ErrDBClosed):
		return engine.ErrClosed
	}
	return err
}

// slogAdapter 把 badger 的 printf 风格日志转到 storage/badger 子日志器
type slogAdapter struct{}

func (slogAdapter) Errorf(f string, args ...interface{}) {
	logger.Error(fmt.Sprintf(f, args...))
}

func (slogAdapter) Warningf(f string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(f, args...))
}

func (slogAdapter) Infof(f string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(f, args...))
}

func (slogAdapter) Debugf(f string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(f, args...))
}
