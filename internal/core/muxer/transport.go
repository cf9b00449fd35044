// Package muxer 在 noise 安全连接之上用 yamux 复用出多条流
//
// 每个 DHT 请求、ping 都使用独立的流，连接本身长期保留在 host 的连接表中。
package muxer

import (
	"context"
	"io"
	"math"
	"net"
	"time"

	"github.com/libp2p/go-yamux/v5"
)

// ID multistream-select 协商时使用的协议名
const ID = "/yamux/1.0.0"

// streamWindow 单条流的最大接收窗口
const streamWindow = 16 << 20

// MuxedStream 复用出的一条双向流，可以单独半关闭任一方向
type MuxedStream interface {
	io.ReadWriteCloser
	CloseWrite() error
	CloseRead() error
	Reset() error
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// MuxedConn 一条已复用的连接
//
// AcceptStream 阻塞到对端打开新流或连接关闭；关闭后两个方法都返回 ErrConnClosed。
type MuxedConn interface {
	OpenStream(ctx context.Context) (MuxedStream, error)
	AcceptStream() (MuxedStream, error)
	Close() error
	IsClosed() bool
}

// Transport 持有所有会话共享的 yamux 参数
type Transport struct {
	cfg *yamux.Config
}

func NewTransport() *Transport {
	cfg := yamux.DefaultConfig()
	cfg.MaxStreamWindowSize = streamWindow
	cfg.MaxIncomingStreams = math.MaxUint32
	// noise 层自带缓冲
	cfg.ReadBufSize = 0
	cfg.LogOutput = io.Discard
	return &Transport{cfg: cfg}
}

// NewConn 在安全连接上建立会话，监听方传 isServer=true
func (t *Transport) NewConn(conn net.Conn, isServer bool) (MuxedConn, error) {
	open := yamux.Client
	if isServer {
		open = yamux.Server
	}
	sess, err := open(conn, t.cfg, nil)
	if err != nil {
		return nil, err
	}
	return session{sess}, nil
}

func (t *Transport) ID() string { return ID }
