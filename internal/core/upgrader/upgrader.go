// Package upgrader 将原始 TCP 连接升级为加密的多路复用连接
//
// 升级流程：
//  1. 协商安全协议（multistream-select /noise）
//  2. Noise XX 握手
//  3. 协商多路复用器（multistream-select /yamux/1.0.0）
//  4. 建立 yamux 会话
package upgrader

import (
	"context"
	"fmt"
	"net"

	"github.com/coreoverlay/go-coreoverlay/internal/core/muxer"
	"github.com/coreoverlay/go-coreoverlay/internal/core/security/noise"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("core/upgrader")

// Upgrader 连接升级器
type Upgrader struct {
	security *noise.Transport
	muxer    *muxer.Transport
}

// New 创建连接升级器
func New(security *noise.Transport, mux *muxer.Transport) (*Upgrader, error) {
	if security == nil {
		return nil, ErrNilSecurity
	}
	if mux == nil {
		return nil, ErrNilMuxer
	}
	return &Upgrader{security: security, muxer: mux}, nil
}

// Upgrade 升级连接，失败时关闭 conn
//
// 出站连接的 remotePeer 可为空，此时接受握手得到的任意身份。
func (u *Upgrader) Upgrade(ctx context.Context, conn net.Conn, dir Direction, remotePeer types.PeerID) (*Conn, error) {
	isServer := dir == DirInbound

	if err := negotiate(ctx, conn, u.security.ID(), isServer); err != nil {
		conn.Close()
		return nil, fmt.Errorf("security negotiation: %w", err)
	}

	var secConn *noise.Conn
	var err error
	if isServer {
		secConn, err = u.security.SecureInbound(ctx, conn, remotePeer)
	} else {
		secConn, err = u.security.SecureOutbound(ctx, conn, remotePeer)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("security handshake: %w", err)
	}

	if err := negotiate(ctx, secConn, u.muxer.ID(), isServer); err != nil {
		secConn.Close()
		return nil, fmt.Errorf("muxer negotiation: %w", err)
	}

	muxedConn, err := u.muxer.NewConn(secConn, isServer)
	if err != nil {
		secConn.Close()
		return nil, fmt.Errorf("muxer setup: %w", err)
	}

	logger.Debug("连接升级成功",
		"remotePeer", secConn.RemotePeer().ShortString(),
		"direction", dir.String(),
		"remoteAddr", conn.RemoteAddr().String())

	return &Conn{MuxedConn: muxedConn, secConn: secConn, dir: dir}, nil
}
