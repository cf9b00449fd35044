// Package ping 实现 /coreoverlay/ping/1.0.0 协议
//
// 客户端发送 32 字节随机数据，服务端原样回显，客户端据此测量 RTT。
// 同一条流上可以连续 ping。
package ping

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("core/ping")

// ProtocolID Ping 协议 ID
const ProtocolID = types.ProtocolID("/coreoverlay/ping/1.0.0")

const (
	// PingSize Ping 消息大小
	PingSize = 32

	// PingTimeout 单次 Ping 超时
	PingTimeout = 10 * time.Second

	// HandlerIdleTimeout 服务端空闲超时
	HandlerIdleTimeout = 60 * time.Second
)

// ErrDataMismatch 回显数据不匹配
var ErrDataMismatch = errors.New("ping: echo data mismatch")

// Service Ping 服务
type Service struct {
	host *host.Host
}

// NewService 创建 Ping 服务并注册处理器
func NewService(h *host.Host) *Service {
	s := &Service{host: h}
	h.SetStreamHandler(ProtocolID, s.Handler)
	return s
}

// Handler 处理 Ping 请求：读取数据并回显
func (s *Service) Handler(stream host.Stream) {
	defer stream.Close()

	buf := make([]byte, PingSize)
	for {
		_ = stream.SetReadDeadline(time.Now().Add(HandlerIdleTimeout))
		if _, err := io.ReadFull(stream, buf); err != nil {
			return
		}
		if _, err := stream.Write(buf); err != nil {
			return
		}
	}
}

// Ping 向节点发送一次 Ping 并返回 RTT
func (s *Service) Ping(ctx context.Context, peer types.PeerID) (time.Duration, error) {
	return Ping(ctx, s.host, peer)
}

// Close 注销处理器
func (s *Service) Close() error {
	s.host.RemoveStreamHandler(ProtocolID)
	return nil
}

// Ping 主动 Ping 节点并返回往返时间
func Ping(ctx context.Context, h *host.Host, peer types.PeerID) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	stream, err := h.NewStream(ctx, peer, ProtocolID)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	deadline, _ := ctx.Deadline()
	_ = stream.SetDeadline(deadline)

	rtt, err := pingOnce(stream)
	if err != nil {
		stream.Reset()
		return 0, err
	}
	logger.Debug("Ping 成功", "peer", peer.ShortString(), "rtt", rtt)
	return rtt, nil
}

func pingOnce(rw io.ReadWriter) (time.Duration, error) {
	buf := make([]byte, PingSize)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := rw.Write(buf); err != nil {
		return 0, err
	}
	echo := make([]byte, PingSize)
	if _, err := io.ReadFull(rw, echo); err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if !bytes.Equal(buf, echo) {
		return 0, ErrDataMismatch
	}
	return rtt, nil
}
