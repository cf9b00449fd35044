package muxer

import (
	"context"
	"errors"

	"github.com/libp2p/go-yamux/v5"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

var logger = log.Logger("core/muxer")

var (
	// ErrStreamReset 对端或本端 Reset 了流
	ErrStreamReset = errors.New("muxer: stream reset")

	// ErrConnClosed 底层 yamux 会话已结束
	ErrConnClosed = errors.New("muxer: connection closed")
)

// translate 把 yamux 的会话级错误映射为本包错误，其余原样返回
//
// yamux 的 GoAway/shutdown 错误同时匹配 ErrStreamReset，必须先判断会话关闭。
func translate(err error) error {
	var goAway *yamux.GoAwayError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, yamux.ErrSessionShutdown), errors.As(err, &goAway):
		return ErrConnClosed
	case errors.Is(err, yamux.ErrStreamReset):
		return ErrStreamReset
	}
	return err
}

// session 一条安全连接上的 yamux 会话
type session struct {
	*yamux.Session
}

var _ MuxedConn = session{}

func (s session) OpenStream(ctx context.Context) (MuxedStream, error) {
	st, err := s.Session.OpenStream(ctx)
	if err != nil {
		logger.Debug("yamux 打开流失败", "remote", s.RemoteAddr(), "error", err)
		return nil, translate(err)
	}
	return stream{st}, nil
}

func (s session) AcceptStream() (MuxedStream, error) {
	st, err := s.Session.AcceptStream()
	if err != nil {
		return nil, translate(err)
	}
	return stream{st}, nil
}

// stream 只改写读写错误，关闭与截止时间直接委托给 yamux
type stream struct {
	*yamux.Stream
}

var _ MuxedStream = stream{}

func (s stream) Read(p []byte) (int, error) {
	n, err := s.Stream.Read(p)
	return n, translate(err)
}

func (s stream) Write(p []byte) (int, error) {
	n, err := s.Stream.Write(p)
	return n, translate(err)
}
