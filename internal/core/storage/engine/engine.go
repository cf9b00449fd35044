// Package engine 定义存储引擎接口
//
// 所有实现必须保证线程安全。
package engine

import "time"

// Engine 键值存储引擎
type Engine interface {
	// Get 读取值，键不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入键值对
	Put(key, value []byte) error

	// PutWithTTL 写入带过期时间的键值对，过期后自动不可见
	PutWithTTL(key, value []byte, ttl time.Duration) error

	// Delete 删除键，键不存在时不报错
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// ForEach 按键序遍历指定前缀下的所有键值对
	//
	// fn 返回错误时停止遍历并返回该错误。
	// 传给 fn 的切片仅在回调期间有效。
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	// Start 启动后台任务（GC 等）
	Start() error

	// Close 关闭引擎，可重复调用
	Close() error
}
