package dht

import (
	"context"
	"time"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// 以下方法直接向指定节点发送单个请求，不做迭代查询。
// 命令行客户端用它们操作某个具体节点上的记录。

// StoreAt 在指定节点上存储值，value 为空表示删除
func (d *DHT) StoreAt(ctx context.Context, peer types.AddrInfo, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	_, err := d.sendRequest(ctx, peer, NewStoreRequest(d.self(), key, value, d.config.RecordTTL))
	return err
}

// FindValueAt 向指定节点查询值，节点没有该值时返回 ErrKeyNotFound 与其已知的更近节点
func (d *DHT) FindValueAt(ctx context.Context, peer types.AddrInfo, key string) ([]byte, []types.AddrInfo, error) {
	if key == "" {
		return nil, nil, ErrInvalidKey
	}
	resp, err := d.sendRequest(ctx, peer, NewFindValueRequest(d.self(), key))
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Value) > 0 {
		return resp.Value, nil, nil
	}
	return nil, recordsToAddrInfos(resp.CloserPeers), ErrKeyNotFound
}

// FindNodeAt 向指定节点查询距离 target 最近的节点
func (d *DHT) FindNodeAt(ctx context.Context, peer types.AddrInfo, target types.NodeID) ([]types.AddrInfo, error) {
	resp, err := d.sendRequest(ctx, peer, NewFindNodeRequest(d.self(), target))
	if err != nil {
		return nil, err
	}
	return recordsToAddrInfos(resp.CloserPeers), nil
}

// PingAt 向指定地址的节点发送 PING，地址可以不带 PeerID
func (d *DHT) PingAt(ctx context.Context, peer types.AddrInfo) (types.PeerID, time.Duration, error) {
	if peer.ID.IsEmpty() {
		id, err := d.host.Connect(ctx, peer)
		if err != nil {
			return "", 0, err
		}
		peer.ID = id
	}
	rtt, err := d.Ping(ctx, peer.ID)
	return peer.ID, rtt, err
}

func recordsToAddrInfos(recs []PeerRecord) []types.AddrInfo {
	out := make([]types.AddrInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.AddrInfo())
	}
	return out
}
