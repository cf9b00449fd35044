package upgrader

import (
	"net"

	"github.com/coreoverlay/go-coreoverlay/internal/core/muxer"
	"github.com/coreoverlay/go-coreoverlay/internal/core/security/noise"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// Direction 连接方向
type Direction int

const (
	// DirInbound 入站
	DirInbound Direction = iota
	// DirOutbound 出站
	DirOutbound
)

func (d Direction) String() string {
	if d == DirInbound {
		return "inbound"
	}
	return "outbound"
}

// Conn 升级后的连接：加密 + 多路复用
type Conn struct {
	muxer.MuxedConn

	secConn *noise.Conn
	dir     Direction
}

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.PeerID {
	return c.secConn.LocalPeer()
}

// RemotePeer 返回远端节点 ID
func (c *Conn) RemotePeer() types.PeerID {
	return c.secConn.RemotePeer()
}

// RemotePublicKey 返回远端身份公钥
func (c *Conn) RemotePublicKey() crypto.PublicKey {
	return c.secConn.RemotePublicKey()
}

// LocalAddr 返回本地网络地址
func (c *Conn) LocalAddr() net.Addr {
	return c.secConn.LocalAddr()
}

// RemoteAddr 返回远端网络地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.secConn.RemoteAddr()
}

// Direction 返回连接方向
func (c *Conn) Direction() Direction {
	return c.dir
}
