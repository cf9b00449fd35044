package host

import (
	"errors"

	"github.com/coreoverlay/go-coreoverlay/internal/core/security/noise"
)

var (
	// ErrHostClosed Host 已关闭
	ErrHostClosed = errors.New("host: closed")

	// ErrNoAddresses 没有可拨号的地址
	ErrNoAddresses = errors.New("host: no addresses")

	// ErrDialSelf 不能连接自身
	ErrDialSelf = errors.New("host: dial to self attempted")

	// ErrProtocolNotSupported 远端不支持所请求的协议
	ErrProtocolNotSupported = errors.New("host: protocol not supported")

	// ErrTooManyPeers 已达到连接上限
	ErrTooManyPeers = errors.New("host: too many peers")

	// ErrPeerIDMismatch 握手得到的身份与期望不符
	ErrPeerIDMismatch = noise.ErrPeerIDMismatch
)
