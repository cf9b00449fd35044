package engine

import "errors"

// 记录存储在 DHT 值存储、提供者记录和路由表快照中共用以下错误。
var (
	ErrNotFound      = errors.New("recordstore: no record under key")
	ErrEmptyKey      = errors.New("recordstore: key must not be empty")
	ErrClosed        = errors.New("recordstore: store already closed")
	ErrInvalidConfig = errors.New("recordstore: bad store configuration")
)

// IsNotFound 报告 err 是否只是记录缺失，调用方据此区分缺失与读取故障
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
