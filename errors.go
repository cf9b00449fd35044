package coreoverlay

import "errors"

var (
	// ErrNotStarted 引擎未启动
	ErrNotStarted = errors.New("coreoverlay: engine not started")

	// ErrAlreadyStarted 引擎已启动
	ErrAlreadyStarted = errors.New("coreoverlay: engine already started")

	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("coreoverlay: engine closed")

	// ErrDHTDisabled 配置中禁用了 DHT
	ErrDHTDisabled = errors.New("coreoverlay: dht disabled")

	// ErrInvalidPeer 无法解析的节点地址或 PeerID
	ErrInvalidPeer = errors.New("coreoverlay: invalid peer")
)
