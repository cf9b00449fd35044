package noise

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("core/security/noise")

// ID Noise 协议标识
const ID = "/noise"

// Transport Noise 安全传输
type Transport struct {
	privKey   crypto.PrivateKey
	localPeer types.PeerID
}

// New 创建 Noise 传输
func New(privKey crypto.PrivateKey) (*Transport, error) {
	if privKey == nil {
		return nil, crypto.ErrNilPrivateKey
	}
	localPeer, err := crypto.PeerIDFromPrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("derive local peer id: %w", err)
	}
	return &Transport{privKey: privKey, localPeer: localPeer}, nil
}

// ID 返回协议标识
func (t *Transport) ID() string {
	return ID
}

// LocalPeer 返回本地 PeerID
func (t *Transport) LocalPeer() types.PeerID {
	return t.localPeer
}

// SecureInbound 保护入站连接
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (*Conn, error) {
	return t.secure(ctx, conn, remotePeer, false)
}

// SecureOutbound 保护出站连接
//
// remotePeer 为空时不校验远端身份（仅凭地址拨号的引导场景）。
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (*Conn, error) {
	return t.secure(ctx, conn, remotePeer, true)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, remotePeer types.PeerID, initiator bool) (*Conn, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	if d, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(d); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
		defer conn.SetDeadline(time.Time{})
	}

	secConn, err := performHandshake(conn, t.privKey, t.localPeer, remotePeer, initiator)
	if err != nil {
		logger.Debug("Noise 握手失败", "remotePeer", log.TruncateID(string(remotePeer), 8), "initiator", initiator, "error", err)
		return nil, err
	}
	logger.Debug("Noise 握手成功", "remotePeer", secConn.RemotePeer().ShortString(), "initiator", initiator)
	return secConn, nil
}
