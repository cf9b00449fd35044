package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/discovery/dht"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// client 直接向单个节点发请求的 DHT 客户端
//
// 使用临时身份，不监听地址，不处理入站请求。
type client struct {
	host   *host.Host
	dht    *dht.DHT
	target types.AddrInfo
}

// dial 连接 node（host:port 或 multiaddr）并返回客户端
func dial(ctx context.Context, node string) (*client, error) {
	target, err := types.ParseAddrInfo(node)
	if err != nil {
		return nil, fmt.Errorf("invalid node address %q: %w", node, err)
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	if err != nil {
		return nil, err
	}
	h, err := host.New(priv)
	if err != nil {
		return nil, err
	}
	d, err := dht.New(h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	c := &client{host: h, dht: d, target: target}
	id, err := h.Connect(ctx, target)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect to %s: %w", node, err)
	}
	c.target.ID = id
	return c, nil
}

// Close 释放客户端资源
func (c *client) Close() error {
	return multierr.Combine(c.dht.Close(), c.host.Close())
}
