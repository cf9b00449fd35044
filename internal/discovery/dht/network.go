package dht

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreoverlay/go-coreoverlay/internal/core/peerstore"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// sendRequest 向节点发送请求并等待响应
//
// 节点地址先写入 Peerstore，由 Host 负责按需拨号。收到响应（包括错误响应）
// 时刷新路由表中该节点的活跃状态，传输失败时累计失败次数。
func (d *DHT) sendRequest(ctx context.Context, peer types.AddrInfo, req *Message) (*Message, error) {
	if d.closed.Load() {
		return nil, ErrDHTClosed
	}
	if peer.ID == d.host.ID() {
		return nil, fmt.Errorf("%w: request to self", ErrInvalidResponse)
	}
	if len(peer.Addrs) > 0 {
		d.host.Peerstore().AddAddrs(peer.ID, peer.Addrs, peerstore.RoutingAddrTTL)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := d.roundTrip(ctx, peer.ID, req)

	id, idErr := peer.ID.NodeID()
	var re remoteError
	if err != nil && !errors.As(err, &re) {
		if idErr == nil && d.routingTable.Fail(id) {
			logger.Debug("节点多次失败，已移出路由表", "peer", peer.ID.ShortString())
			d.metrics.setRoutingTableSize(d.routingTable.Size())
		}
		return nil, err
	}
	if idErr == nil {
		if !d.routingTable.Touch(id, time.Since(start)) {
			addrs := peer.Addrs
			if len(addrs) == 0 {
				addrs = d.host.Peerstore().Addrs(peer.ID)
			}
			d.routingTable.Add(&RoutingNode{ID: id, Addrs: addrs, LastSeen: time.Now(), RTT: time.Since(start)})
			d.metrics.setRoutingTableSize(d.routingTable.Size())
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (d *DHT) roundTrip(ctx context.Context, peer types.PeerID, req *Message) (*Message, error) {
	s, err := d.host.NewStream(ctx, peer, ProtocolID)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	if err := WriteMessage(s, req); err != nil {
		s.Reset()
		return nil, fmt.Errorf("write request: %w", err)
	}
	d.metrics.messageSent(req.Type)

	resp, err := ReadMessage(s)
	if err != nil {
		s.Reset()
		return nil, fmt.Errorf("read response: %w", err)
	}
	d.metrics.messageReceived(resp.Type)

	if resp.RequestID != req.RequestID || resp.Type != req.Type.ResponseType() {
		return nil, ErrInvalidResponse
	}
	if !resp.Success {
		return nil, remoteError(resp.Error)
	}
	return resp, nil
}
