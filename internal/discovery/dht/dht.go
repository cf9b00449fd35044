package dht

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/peerstore"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("discovery/dht")

// DHT Kademlia DHT 实现
type DHT struct {
	host    *host.Host
	config  *Config
	metrics *Metrics

	routingTable *RoutingTable
	values       *ValueStore
	providers    *ProviderStore
	limiter      *peerLimiter

	// provided 本节点宣告过的键，参与重新发布
	providedMu sync.Mutex
	provided   map[string]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	closed  atomic.Bool

	// bgMu 保证 closed 检查与 wg.Add 不会和 Close 中的 wg.Wait 交错
	bgMu sync.Mutex
	wg   sync.WaitGroup
}

// Option DHT 选项
type Option func(*DHT)

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(d *DHT) {
		if cfg != nil {
			d.config = cfg
		}
	}
}

// WithStorage 使用存储引擎持久化值与 Provider 记录
func WithStorage(eng engine.Engine) Option {
	return func(d *DHT) {
		d.values = NewValueStore(eng)
		d.providers = NewProviderStore(eng, d.config.MaxProviderKeys)
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *Metrics) Option {
	return func(d *DHT) {
		d.metrics = m
	}
}

// New 创建 DHT 实例，调用 Start 之前不处理入站请求
func New(h *host.Host, opts ...Option) (*DHT, error) {
	if h == nil {
		return nil, ErrNilHost
	}

	localID, err := h.ID().NodeID()
	if err != nil {
		return nil, fmt.Errorf("dht: local peer id: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &DHT{
		host:     h,
		config:   DefaultConfig(),
		provided: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.config.Validate(); err != nil {
		cancel()
		return nil, err
	}

	if d.values == nil {
		d.values = NewValueStore(nil)
	}
	if d.providers == nil {
		d.providers = NewProviderStore(nil, d.config.MaxProviderKeys)
	}
	d.routingTable = NewRoutingTable(localID, d.config.BucketSize)
	d.limiter = newPeerLimiter(d.config.RateLimit, d.config.RateBurst)

	for _, p := range d.config.BootstrapPeers {
		if !p.ID.IsEmpty() && len(p.Addrs) > 0 {
			d.AddPeer(p)
		}
	}
	return d, nil
}

// Start 启动 DHT：注册协议处理器并启动后台循环
func (d *DHT) Start(_ context.Context) error {
	if d.closed.Load() {
		return ErrDHTClosed
	}
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	logger.Info("正在启动 DHT", "peer", d.host.ID().ShortString(), "persistent", d.values.Persistent())

	if n, err := d.providers.Load(); err != nil {
		logger.Warn("恢复 Provider 记录失败", "error", err)
	} else if n > 0 {
		logger.Debug("已恢复 Provider 记录", "count", n)
	}

	d.host.SetStreamHandler(ProtocolID, d.handleStream)
	d.host.Notify(&host.NotifyBundle{ConnectedF: d.peerConnected})

	d.wg.Add(2)
	go d.refreshLoop()
	go d.cleanupLoop()
	if d.config.RepublishInterval > 0 {
		d.wg.Add(1)
		go d.republishLoop()
	}

	logger.Info("DHT 启动成功")
	return nil
}

// Close 停止 DHT，不关闭 Host 与存储引擎
func (d *DHT) Close() error {
	d.bgMu.Lock()
	first := d.closed.CompareAndSwap(false, true)
	d.bgMu.Unlock()
	if !first {
		return nil
	}
	logger.Info("正在停止 DHT")
	if d.started.Load() {
		d.host.RemoveStreamHandler(ProtocolID)
	}
	d.cancel()
	d.wg.Wait()
	logger.Info("DHT 已停止")
	return nil
}

// Host 返回底层 Host
func (d *DHT) Host() *host.Host {
	return d.host
}

// RoutingTable 返回路由表
func (d *DHT) RoutingTable() *RoutingTable {
	return d.routingTable
}

// Values 返回本地值存储
func (d *DHT) Values() *ValueStore {
	return d.values
}

// Providers 返回本地 Provider 存储
func (d *DHT) Providers() *ProviderStore {
	return d.providers
}

// self 返回本节点在消息中使用的身份与地址
func (d *DHT) self() types.AddrInfo {
	return d.host.AddrInfo()
}

// AddPeer 将已知节点加入路由表与地址簿
func (d *DHT) AddPeer(info types.AddrInfo) bool {
	id, err := info.ID.NodeID()
	if err != nil || info.ID == d.host.ID() {
		return false
	}
	if len(info.Addrs) > 0 {
		d.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.RoutingAddrTTL)
	}
	added := d.routingTable.Add(&RoutingNode{ID: id, Addrs: info.Addrs, LastSeen: time.Now()})
	d.metrics.setRoutingTableSize(d.routingTable.Size())
	return added
}

// peerConnected 新连接建立时探测对端是否支持 DHT 协议
func (d *DHT) peerConnected(peer types.PeerID) {
	d.goBackground(func() {
		if _, err := d.Ping(d.ctx, peer); err != nil {
			logger.Debug("对端不支持 DHT 或探测失败", "peer", peer.ShortString(), "error", err)
		}
	})
}

// goBackground 在 DHT 未关闭时启动一个由 Close 等待的后台任务，已关闭时返回 false
func (d *DHT) goBackground(fn func()) bool {
	d.bgMu.Lock()
	defer d.bgMu.Unlock()
	if d.closed.Load() {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
	return true
}

// ============================================================================
//                              DHT 操作
// ============================================================================

// Bootstrap 连接引导节点并用自身 ID 执行一次查询以填充路由表
//
// 引导节点可以不带 PeerID（仅地址），身份由握手确定。
func (d *DHT) Bootstrap(ctx context.Context, peers ...types.AddrInfo) (err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("bootstrap", start, err) }()

	if d.closed.Load() {
		return ErrDHTClosed
	}
	if len(peers) == 0 {
		peers = d.config.BootstrapPeers
	}

	logger.Info("DHT Bootstrap 开始", "peerCount", len(peers), "routingTableSize", d.routingTable.Size())

	success := 0
	for _, p := range peers {
		id, cerr := d.host.Connect(ctx, p)
		if cerr != nil {
			logger.Warn("DHT Bootstrap: 连接引导节点失败", "addr", p.String(), "error", cerr)
			continue
		}
		if p.ID.IsEmpty() {
			p.ID = id
		}
		d.host.Peerstore().AddAddrs(id, p.Addrs, peerstore.BootstrapAddrTTL)
		if len(p.Addrs) == 0 {
			p.Addrs = d.host.Peerstore().Addrs(id)
		}
		if _, perr := d.Ping(ctx, id); perr != nil {
			logger.Warn("DHT Bootstrap: 引导节点不支持 DHT", "peer", id.ShortString(), "error", perr)
			continue
		}
		d.AddPeer(p)
		success++
	}

	if d.routingTable.Size() == 0 {
		return opFailed("bootstrap", ErrNoBootstrapPeers, "")
	}

	if _, qerr := d.lookup(ctx, d.routingTable.LocalID()); qerr != nil && !errors.Is(qerr, ErrNoNearbyPeers) {
		logger.Warn("DHT Bootstrap: 自查询失败", "error", qerr)
	}

	logger.Info("DHT Bootstrap 完成",
		"success", success,
		"routingTableSize", d.routingTable.Size(),
		"duration", time.Since(start))
	return nil
}

// lookup 执行 FIND_NODE 迭代查询
func (d *DHT) lookup(ctx context.Context, target types.NodeID) ([]*RoutingNode, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.QueryTimeout)
	defer cancel()

	self := d.self()
	q := newIterativeQuery(d, target, func() *Message {
		return NewFindNodeRequest(self, target)
	}, nil)
	return q.Run(ctx)
}

// GetClosestPeers 返回距离 key 最近的 K 个节点
func (d *DHT) GetClosestPeers(ctx context.Context, key string) (_ []types.AddrInfo, err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("get_closest_peers", start, err) }()

	nodes, err := d.lookup(ctx, types.KeyToNodeID(key))
	if err != nil {
		return nil, opFailed("get_closest_peers", err, "")
	}
	out := make([]types.AddrInfo, len(nodes))
	for i, n := range nodes {
		out[i] = n.AddrInfo()
	}
	return out, nil
}

// FindPeer 查找节点地址
func (d *DHT) FindPeer(ctx context.Context, peer types.PeerID) (_ types.AddrInfo, err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("find_peer", start, err) }()

	id, err := peer.NodeID()
	if err != nil {
		return types.AddrInfo{}, opFailed("find_peer", err, "")
	}
	if n := d.routingTable.Find(id); n != nil && len(n.Addrs) > 0 {
		return n.AddrInfo(), nil
	}
	if d.host.IsConnected(peer) {
		return d.host.Peerstore().PeerInfo(peer), nil
	}

	nodes, err := d.lookup(ctx, id)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return types.AddrInfo{}, opFailed("find_peer", err, "")
	}
	for _, n := range nodes {
		if n.ID == id {
			return n.AddrInfo(), nil
		}
	}
	if addrs := d.host.Peerstore().Addrs(peer); len(addrs) > 0 {
		return types.AddrInfo{ID: peer, Addrs: addrs}, nil
	}
	return types.AddrInfo{}, opFailed("find_peer", ErrPeerNotFound, peer.ShortString())
}

// PutValue 存储值：写入本地并复制到最近的 K 个节点
//
// value 为空时删除该键（本地与远端）。远端复制失败不影响本地结果。
func (d *DHT) PutValue(ctx context.Context, key string, value []byte) (err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("put_value", start, err) }()

	if key == "" {
		return opFailed("put_value", ErrInvalidKey, "")
	}
	if err := d.values.Put(key, value, d.config.RecordTTL, true); err != nil {
		return opFailed("put_value", err, "local store")
	}
	d.metrics.setRecords(d.values.Size(), d.providers.Size())

	stored := d.replicate(ctx, key, func(self types.AddrInfo) *Message {
		return NewStoreRequest(self, key, value, d.config.RecordTTL)
	})
	logger.Debug("DHT 记录已发布", "key", truncateKey(key), "replicas", stored)
	return nil
}

// replicate 向距离 key 最近的节点并发发送请求，返回成功数
func (d *DHT) replicate(ctx context.Context, key string, newReq func(types.AddrInfo) *Message) int {
	nodes, err := d.lookup(ctx, types.KeyToNodeID(key))
	if err != nil {
		if !errors.Is(err, ErrNoNearbyPeers) {
			logger.Debug("复制前查询失败", "key", truncateKey(key), "error", err)
		}
		return 0
	}

	self := d.self()
	var ok atomic.Int32
	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n *RoutingNode) {
			defer wg.Done()
			if _, err := d.sendRequest(ctx, n.AddrInfo(), newReq(self)); err != nil {
				logger.Debug("复制到节点失败", "peer", n.PeerID().ShortString(), "error", err)
				return
			}
			ok.Add(1)
		}(n)
	}
	wg.Wait()
	return int(ok.Load())
}

// GetValue 获取值：先查本地，未命中时执行 FIND_VALUE 迭代查询
func (d *DHT) GetValue(ctx context.Context, key string) (_ []byte, err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("get_value", start, err) }()

	if key == "" {
		return nil, opFailed("get_value", ErrInvalidKey, "")
	}
	if v, ok := d.values.Get(key); ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.QueryTimeout)
	defer cancel()

	var value []byte
	self := d.self()
	q := newIterativeQuery(d, types.KeyToNodeID(key), func() *Message {
		return NewFindValueRequest(self, key)
	}, func(resp *Message) bool {
		if len(resp.Value) > 0 {
			value = resp.Value
			return true
		}
		return false
	})
	if _, err := q.Run(ctx); err != nil && value == nil {
		if errors.Is(err, ErrNoNearbyPeers) {
			return nil, opFailed("get_value", ErrKeyNotFound, truncateKey(key))
		}
		return nil, opFailed("get_value", err, "")
	}
	if value == nil {
		return nil, opFailed("get_value", ErrKeyNotFound, truncateKey(key))
	}
	return value, nil
}

// Provide 宣告本节点为 key 的提供者
func (d *DHT) Provide(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("provide", start, err) }()

	if key == "" {
		return opFailed("provide", ErrInvalidKey, "")
	}
	if err := d.providers.AddProvider(key, d.self(), d.config.ProviderTTL); err != nil {
		return opFailed("provide", err, "local store")
	}
	d.providedMu.Lock()
	d.provided[key] = struct{}{}
	d.providedMu.Unlock()
	d.metrics.setRecords(d.values.Size(), d.providers.Size())

	announced := d.replicate(ctx, key, func(self types.AddrInfo) *Message {
		return NewAddProviderRequest(self, key, d.config.ProviderTTL)
	})
	logger.Debug("Provider 已宣告", "key", truncateKey(key), "replicas", announced)
	return nil
}

// FindProviders 查找 key 的提供者，count <= 0 时收集查询过程中遇到的全部提供者
func (d *DHT) FindProviders(ctx context.Context, key string, count int) (_ []types.AddrInfo, err error) {
	start := time.Now()
	defer func() { d.metrics.observeQuery("find_providers", start, err) }()

	if key == "" {
		return nil, opFailed("find_providers", ErrInvalidKey, "")
	}

	seen := make(map[types.PeerID]struct{})
	var result []types.AddrInfo
	collect := func(info types.AddrInfo) bool {
		if _, ok := seen[info.ID]; ok || info.ID.IsEmpty() {
			return false
		}
		seen[info.ID] = struct{}{}
		result = append(result, info)
		return count > 0 && len(result) >= count
	}

	for _, p := range d.providers.GetProviders(key) {
		if collect(p.AddrInfo()) {
			return result, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.QueryTimeout)
	defer cancel()

	self := d.self()
	q := newIterativeQuery(d, types.KeyToNodeID(key), func() *Message {
		return NewGetProvidersRequest(self, key)
	}, func(resp *Message) bool {
		done := false
		for _, p := range resp.Providers {
			if collect(p.AddrInfo()) {
				done = true
			}
		}
		return done
	})
	if _, err := q.Run(ctx); err != nil && len(result) == 0 && !errors.Is(err, ErrNoNearbyPeers) {
		return nil, opFailed("find_providers", err, "")
	}

	for _, p := range result {
		if len(p.Addrs) > 0 && p.ID != d.host.ID() {
			d.host.Peerstore().AddAddrs(p.ID, p.Addrs, peerstore.RoutingAddrTTL)
		}
	}
	return result, nil
}

// Ping 发送 DHT PING 请求并返回往返时间
func (d *DHT) Ping(ctx context.Context, peer types.PeerID) (time.Duration, error) {
	start := time.Now()
	if _, err := d.sendRequest(ctx, types.AddrInfo{ID: peer}, NewPingRequest(d.self())); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// ============================================================================
//                              后台循环
// ============================================================================

// refreshLoop 路由表刷新循环
func (d *DHT) refreshLoop() {
	defer d.wg.Done()

	interval := d.config.RefreshInterval
	if interval <= 0 {
		interval = BucketRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.refreshBuckets(interval)
		case <-d.ctx.Done():
			return
		}
	}
}

// refreshBuckets 对长时间未刷新的桶执行随机 ID 查询
func (d *DHT) refreshBuckets(interval time.Duration) {
	if removed := d.routingTable.RemoveExpiredNodes(); removed > 0 {
		logger.Debug("移除过期路由节点", "count", removed)
	}
	for _, idx := range d.routingTable.BucketsNeedingRefresh(interval) {
		var random types.NodeID
		_, _ = rand.Read(random[:])
		target := d.routingTable.RandomIDInBucket(idx, random)
		if _, err := d.lookup(d.ctx, target); err != nil {
			logger.Debug("桶刷新查询失败", "bucket", idx, "error", err)
		}
		d.routingTable.MarkBucketRefreshed(idx)
	}
	d.metrics.setRoutingTableSize(d.routingTable.Size())
}

// cleanupLoop 清理循环
func (d *DHT) cleanupLoop() {
	defer d.wg.Done()

	interval := d.config.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *DHT) cleanup() {
	values := d.values.CleanupExpired()
	providers := d.providers.CleanupExpired()
	if values > 0 || providers > 0 {
		logger.Debug("清理过期记录", "values", values, "providers", providers)
	}
	d.metrics.setRecords(d.values.Size(), d.providers.Size())
}

// republishLoop 本地记录重新发布循环
func (d *DHT) republishLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RepublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.republish()
		case <-d.ctx.Done():
			return
		}
	}
}

// republish 重新发布本节点写入的值与宣告的 Provider
func (d *DHT) republish() {
	records := 0
	for key, rec := range d.values.Records() {
		if !rec.Local {
			continue
		}
		if err := d.PutValue(d.ctx, key, rec.Value); err != nil {
			logger.Debug("重新发布记录失败", "key", truncateKey(key), "error", err)
			continue
		}
		records++
	}

	d.providedMu.Lock()
	keys := make([]string, 0, len(d.provided))
	for k := range d.provided {
		keys = append(keys, k)
	}
	d.providedMu.Unlock()

	for _, key := range keys {
		if err := d.Provide(d.ctx, key); err != nil {
			logger.Debug("重新宣告 Provider 失败", "key", truncateKey(key), "error", err)
		}
	}

	if records > 0 || len(keys) > 0 {
		logger.Info("DHT 本地记录已重新发布", "records", records, "providers", len(keys))
	}
}

// truncateKey 截取 key 用于日志显示
func truncateKey(key string) string {
	if len(key) > 16 {
		return key[:16] + "..."
	}
	return key
}
