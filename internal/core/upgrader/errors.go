package upgrader

import "errors"

var (
	ErrNilSecurity = errors.New("upgrader: no security transport configured")
	ErrNilMuxer    = errors.New("upgrader: no stream muxer configured")

	// ErrNegotiationFailed multistream-select 未选中期望的协议
	ErrNegotiationFailed = errors.New("upgrader: multistream negotiation failed")
)
