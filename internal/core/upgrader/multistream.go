package upgrader

import (
	"context"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"
)

// defaultNegotiateTimeout 默认协商超时
const defaultNegotiateTimeout = 60 * time.Second

// negotiate 使用 multistream-select 协商单个协议
//
// 服务器端使用 MultistreamMuxer.Negotiate()，客户端使用 SelectOneOf()。
func negotiate(ctx context.Context, conn net.Conn, proto string, isServer bool) error {
	deadline := time.Now().Add(defaultNegotiateTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	var selected string
	var err error
	if isServer {
		m := mss.NewMultistreamMuxer[string]()
		m.AddHandler(proto, nil)
		selected, _, err = m.Negotiate(conn)
	} else {
		selected, err = mss.SelectOneOf([]string{proto}, conn)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNegotiationFailed, proto, err)
	}
	if selected != proto {
		return fmt.Errorf("%w: got %s, want %s", ErrNegotiationFailed, selected, proto)
	}
	return nil
}
