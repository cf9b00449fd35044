package host

import (
	"github.com/coreoverlay/go-coreoverlay/internal/core/muxer"
	"github.com/coreoverlay/go-coreoverlay/internal/core/upgrader"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// Stream 已完成协议协商的流
type Stream interface {
	muxer.MuxedStream

	// Protocol 返回协商得到的协议
	Protocol() types.ProtocolID

	// RemotePeer 返回远端节点 ID
	RemotePeer() types.PeerID
}

// StreamHandler 入站流处理器，处理器负责关闭流
type StreamHandler func(Stream)

type stream struct {
	muxer.MuxedStream

	proto types.ProtocolID
	conn  *upgrader.Conn
}

func (s *stream) Protocol() types.ProtocolID {
	return s.proto
}

func (s *stream) RemotePeer() types.PeerID {
	return s.conn.RemotePeer()
}

// Notifiee 连接事件订阅者
type Notifiee interface {
	// Connected 与节点建立第一条连接时调用
	Connected(peer types.PeerID)

	// Disconnected 与节点的最后一条连接断开时调用
	Disconnected(peer types.PeerID)
}

// NotifyBundle 以函数实现 Notifiee，未设置的回调被忽略
type NotifyBundle struct {
	ConnectedF    func(types.PeerID)
	DisconnectedF func(types.PeerID)
}

func (nb *NotifyBundle) Connected(p types.PeerID) {
	if nb.ConnectedF != nil {
		nb.ConnectedF(p)
	}
}

func (nb *NotifyBundle) Disconnected(p types.PeerID) {
	if nb.DisconnectedF != nil {
		nb.DisconnectedF(p)
	}
}
