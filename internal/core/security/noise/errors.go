package noise

import "errors"

var (
	// ErrInvalidHandshake XX 握手消息或载荷格式错误
	ErrInvalidHandshake = errors.New("noise: malformed XX handshake")

	// ErrInvalidSignature 载荷签名未能把 noise 静态密钥绑定到身份公钥
	ErrInvalidSignature = errors.New("noise: static key not signed by identity key")

	ErrPeerIDMismatch = errors.New("noise: remote peer is not the one dialed")
	ErrNilConn        = errors.New("noise: nil connection")
)
