package dht

import (
	"errors"
	"fmt"
)

// 生命周期与配置
var (
	ErrDHTClosed      = errors.New("dht: closed")
	ErrAlreadyStarted = errors.New("dht: started twice")
	ErrInvalidConfig  = errors.New("dht: bad config")
	ErrNilHost        = errors.New("dht: nil host")
)

// 查询结果
var (
	ErrKeyNotFound      = errors.New("dht: no value stored under key")
	ErrPeerNotFound     = errors.New("dht: lookup did not reach peer")
	ErrNoNearbyPeers    = errors.New("dht: routing table empty")
	ErrNoBootstrapPeers = errors.New("dht: none of the bootstrap peers answered")
	ErrInvalidKey       = errors.New("dht: key is empty or not hex")
)

// 线路协议。ErrSenderMismatch 表示消息里的 sender 与 noise 认证出的 PeerID 不同
var (
	ErrInvalidResponse    = errors.New("dht: response does not match request")
	ErrInvalidMessage     = errors.New("dht: undecodable message")
	ErrMessageTooLarge    = errors.New("dht: frame exceeds MaxMessageSize")
	ErrSenderMismatch     = errors.New("dht: sender field disagrees with authenticated peer")
	ErrRateLimitExceeded  = errors.New("dht: peer over request budget")
	ErrUnknownMessageType = errors.New("dht: unknown message type")
)

// Exec 行协议
var (
	ErrExpectedKey    = errors.New("dht: expected key")
	ErrExpectedValue  = errors.New("dht: expected value")
	ErrUnknownCommand = errors.New("dht: unknown command, expected GET, GET_PROVIDERS, PUT or PUT_PROVIDER")
)

// OpError 记录失败的公开操作以及可选的上下文（截断的键、节点短 ID 等）
type OpError struct {
	Op     string
	Detail string
	Err    error
}

func (e *OpError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dht %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dht %s [%s]: %v", e.Op, e.Detail, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opFailed(op string, err error, detail string) error {
	return &OpError{Op: op, Detail: detail, Err: err}
}

// remoteError 对端在响应的 error 字段中给出的错误
type remoteError string

func (e remoteError) Error() string { return "dht: peer replied with error: " + string(e) }
