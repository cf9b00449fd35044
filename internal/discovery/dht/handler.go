package dht

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"golang.org/x/time/rate"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/peerstore"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// ============================================================================
//                              速率限制
// ============================================================================

// limiterCacheSize 跟踪的对端数量上限
const limiterCacheSize = 4096

// peerLimiter 按对端的令牌桶限速
type peerLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[types.PeerID, *rate.Limiter]
}

// newPeerLimiter 创建限速器，perSecond <= 0 时不限速（返回 nil）
func newPeerLimiter(perSecond float64, burst int) *peerLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	cache, _ := lru.New[types.PeerID, *rate.Limiter](limiterCacheSize)
	return &peerLimiter{limit: rate.Limit(perSecond), burst: burst, limiters: cache}
}

// Allow 检查是否允许请求
func (pl *peerLimiter) Allow(peer types.PeerID) bool {
	if pl == nil {
		return true
	}
	l, ok := pl.limiters.Get(peer)
	if !ok {
		l = rate.NewLimiter(pl.limit, pl.burst)
		pl.limiters.Add(peer, l)
	}
	return l.Allow()
}

// ============================================================================
//                              入站请求处理
// ============================================================================

// handleStream 处理一条入站 DHT 流：读取一个请求，写回一个响应
func (d *DHT) handleStream(s host.Stream) {
	defer s.Close()

	remote := s.RemotePeer()
	_ = s.SetDeadline(time.Now().Add(d.config.RequestTimeout))

	req, err := ReadMessage(s)
	if err != nil {
		logger.Debug("读取 DHT 请求失败", "peer", remote.ShortString(), "error", err)
		s.Reset()
		return
	}
	d.metrics.messageReceived(req.Type)

	resp := d.handleMessage(remote, req)
	if err := WriteMessage(s, resp); err != nil {
		logger.Debug("写入 DHT 响应失败", "peer", remote.ShortString(), "error", err)
		s.Reset()
		return
	}
	d.metrics.messageSent(resp.Type)
}

// handleMessage 处理请求并返回响应
//
// remote 为连接层已认证的身份。
func (d *DHT) handleMessage(remote types.PeerID, req *Message) *Message {
	self := d.self()

	if !req.Type.IsRequest() {
		return NewErrorResponse(req, self, ErrUnknownMessageType)
	}
	if req.Sender != "" && req.Sender != remote {
		logger.Warn("DHT 请求发送者不匹配", "claimed", req.Sender.ShortString(), "actual", remote.ShortString())
		return NewErrorResponse(req, self, ErrSenderMismatch)
	}
	if !d.limiter.Allow(remote) {
		logger.Debug("DHT 请求被限速", "peer", remote.ShortString(), "type", req.Type.String())
		return NewErrorResponse(req, self, ErrRateLimitExceeded)
	}

	d.addSender(remote, req.SenderAddrs)

	switch req.Type {
	case MessageTypePing:
		return NewResponse(req, self)
	case MessageTypeFindNode:
		return d.handleFindNode(req, self)
	case MessageTypeFindValue:
		return d.handleFindValue(req, self)
	case MessageTypeStore:
		return d.handleStore(req, self)
	case MessageTypeAddProvider:
		return d.handleAddProvider(remote, req, self)
	case MessageTypeGetProviders:
		return d.handleGetProviders(req, self)
	default:
		return NewErrorResponse(req, self, ErrUnknownMessageType)
	}
}

// addSender 将请求方加入路由表
func (d *DHT) addSender(remote types.PeerID, rawAddrs []string) {
	id, err := remote.NodeID()
	if err != nil {
		return
	}
	addrs := dialableAddrs(rawAddrs)
	if len(addrs) > 0 {
		d.host.Peerstore().AddAddrs(remote, addrs, peerstore.RoutingAddrTTL)
	}
	if d.routingTable.Add(&RoutingNode{ID: id, Addrs: addrs, LastSeen: time.Now()}) {
		d.metrics.setRoutingTableSize(d.routingTable.Size())
	}
}

func (d *DHT) handleFindNode(req *Message, self types.AddrInfo) *Message {
	target, err := req.TargetID()
	if err != nil {
		return NewErrorResponse(req, self, ErrInvalidKey)
	}
	resp := NewResponse(req, self)
	resp.CloserPeers = peerRecordsFromNodes(d.routingTable.NearestPeers(target, d.config.BucketSize))
	return resp
}

func (d *DHT) handleFindValue(req *Message, self types.AddrInfo) *Message {
	if req.Key == "" {
		return NewErrorResponse(req, self, ErrInvalidKey)
	}
	resp := NewResponse(req, self)
	if value, ok := d.values.Get(req.Key); ok {
		resp.Value = value
		return resp
	}
	resp.CloserPeers = peerRecordsFromNodes(d.routingTable.NearestPeers(types.KeyToNodeID(req.Key), d.config.BucketSize))
	return resp
}

func (d *DHT) handleStore(req *Message, self types.AddrInfo) *Message {
	if req.Key == "" {
		return NewErrorResponse(req, self, ErrInvalidKey)
	}
	ttl := req.TTLDuration()
	if ttl <= 0 || ttl > d.config.RecordTTL {
		ttl = d.config.RecordTTL
	}
	if err := d.values.Put(req.Key, req.Value, ttl, false); err != nil {
		logger.Warn("保存 DHT 记录失败", "key", req.Key, "error", err)
		return NewErrorResponse(req, self, err)
	}
	return NewResponse(req, self)
}

func (d *DHT) handleAddProvider(remote types.PeerID, req *Message, self types.AddrInfo) *Message {
	if req.Key == "" {
		return NewErrorResponse(req, self, ErrInvalidKey)
	}
	ttl := req.TTLDuration()
	if ttl <= 0 || ttl > d.config.ProviderTTL {
		ttl = d.config.ProviderTTL
	}
	info := types.AddrInfo{ID: remote, Addrs: dialableAddrs(req.SenderAddrs)}
	if err := d.providers.AddProvider(req.Key, info, ttl); err != nil {
		logger.Warn("保存 Provider 记录失败", "key", req.Key, "error", err)
		return NewErrorResponse(req, self, err)
	}
	return NewResponse(req, self)
}

func (d *DHT) handleGetProviders(req *Message, self types.AddrInfo) *Message {
	if req.Key == "" {
		return NewErrorResponse(req, self, ErrInvalidKey)
	}
	resp := NewResponse(req, self)
	for _, p := range d.providers.GetProviders(req.Key) {
		resp.Providers = append(resp.Providers, PeerRecord{ID: p.PeerID, Addrs: p.Addrs})
	}
	resp.CloserPeers = peerRecordsFromNodes(d.routingTable.NearestPeers(types.KeyToNodeID(req.Key), d.config.BucketSize))
	return resp
}

// ============================================================================
//                              地址过滤
// ============================================================================

// dialableAddrs 解析地址并丢弃无法拨号的（未指定 IP、非 TCP）
func dialableAddrs(raw []string) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(raw))
	for _, a := range parseAddrs(raw) {
		if manet.IsIPUnspecified(a) {
			continue
		}
		if _, err := a.ValueForProtocol(ma.P_TCP); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
