package dht

import (
	"sort"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// ============================================================================
//                              常量定义
// ============================================================================

const (
	// KeySize 键空间位数（SHA-256）
	KeySize = 256

	// BucketSize K 桶大小 (K)
	BucketSize = 20

	// Alpha 并发查询数
	Alpha = 3

	// BucketRefreshInterval 桶刷新间隔
	BucketRefreshInterval = time.Hour

	// NodeExpireTime 节点过期时间
	NodeExpireTime = 24 * time.Hour

	// MaxFailures 节点连续失败多少次后移出路由表
	MaxFailures = 3
)

// ============================================================================
//                              路由节点
// ============================================================================

// RoutingNode 路由表中的节点
type RoutingNode struct {
	// ID 节点在键空间中的位置
	ID types.NodeID

	// Addrs 节点地址
	Addrs []ma.Multiaddr

	// LastSeen 最后活跃时间
	LastSeen time.Time

	// RTT 往返延迟
	RTT time.Duration

	// FailCount 连续失败次数
	FailCount int
}

// PeerID 返回节点的 PeerID
func (n *RoutingNode) PeerID() types.PeerID {
	return n.ID.PeerID()
}

// AddrInfo 返回节点的地址信息
func (n *RoutingNode) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: n.PeerID(), Addrs: n.Addrs}
}

// IsExpired 检查节点是否过期
func (n *RoutingNode) IsExpired(now time.Time) bool {
	return now.Sub(n.LastSeen) > NodeExpireTime
}

// ============================================================================
//                              K 桶
// ============================================================================

// KBucket K 桶
//
// nodes 按活跃度排序，最近活跃的在前；桶满时新节点进入替换缓存。
type KBucket struct {
	size int

	nodes            []*RoutingNode
	replacementCache []*RoutingNode
	lastRefresh      time.Time

	mu sync.RWMutex
}

// NewKBucket 创建新的 K 桶
func NewKBucket(size int) *KBucket {
	if size <= 0 {
		size = BucketSize
	}
	return &KBucket{
		size:             size,
		nodes:            make([]*RoutingNode, 0, size),
		replacementCache: make([]*RoutingNode, 0, size),
		lastRefresh:      time.Now(),
	}
}

// Size 返回桶中节点数量
func (b *KBucket) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.nodes)
}

// IsFull 检查桶是否已满
func (b *KBucket) IsFull() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.nodes) >= b.size
}

// Nodes 返回所有节点的副本
func (b *KBucket) Nodes() []*RoutingNode {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*RoutingNode, len(b.nodes))
	copy(result, b.nodes)
	return result
}

// Add 添加节点，桶满时放入替换缓存并返回 false
func (b *KBucket) Add(node *RoutingNode) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.nodes {
		if existing.ID == node.ID {
			if len(node.Addrs) == 0 {
				node.Addrs = existing.Addrs
			}
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			b.nodes = append([]*RoutingNode{node}, b.nodes...)
			return true
		}
	}

	if len(b.nodes) < b.size {
		b.nodes = append([]*RoutingNode{node}, b.nodes...)
		return true
	}

	b.addToReplacementCache(node)
	return false
}

func (b *KBucket) addToReplacementCache(node *RoutingNode) {
	for i, existing := range b.replacementCache {
		if existing.ID == node.ID {
			b.replacementCache = append(b.replacementCache[:i], b.replacementCache[i+1:]...)
			break
		}
	}
	b.replacementCache = append([]*RoutingNode{node}, b.replacementCache...)
	if len(b.replacementCache) > b.size {
		b.replacementCache = b.replacementCache[:b.size]
	}
}

// Remove 移除节点，并从替换缓存中提升一个候选
func (b *KBucket) Remove(id types.NodeID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(id)
}

func (b *KBucket) removeLocked(id types.NodeID) bool {
	for i, node := range b.nodes {
		if node.ID == id {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			if len(b.replacementCache) > 0 {
				replacement := b.replacementCache[0]
				b.replacementCache = b.replacementCache[1:]
				b.nodes = append(b.nodes, replacement)
			}
			return true
		}
	}

	for i, node := range b.replacementCache {
		if node.ID == id {
			b.replacementCache = append(b.replacementCache[:i], b.replacementCache[i+1:]...)
			return true
		}
	}
	return false
}

// Get 获取节点
func (b *KBucket) Get(id types.NodeID) *RoutingNode {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, node := range b.nodes {
		if node.ID == id {
			return node
		}
	}
	return nil
}

// Touch 标记节点活跃：移到前端并清零失败计数
func (b *KBucket) Touch(id types.NodeID, rtt time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, node := range b.nodes {
		if node.ID == id {
			node.LastSeen = time.Now()
			node.FailCount = 0
			if rtt > 0 {
				node.RTT = rtt
			}
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			b.nodes = append([]*RoutingNode{node}, b.nodes...)
			return true
		}
	}
	return false
}

// Fail 记录一次失败，达到 MaxFailures 时移除节点并返回 true
func (b *KBucket) Fail(id types.NodeID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, node := range b.nodes {
		if node.ID == id {
			node.FailCount++
			if node.FailCount >= MaxFailures {
				return b.removeLocked(id)
			}
			return false
		}
	}
	return false
}

// NeedRefresh 检查是否需要刷新
func (b *KBucket) NeedRefresh(interval time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Since(b.lastRefresh) > interval
}

// MarkRefreshed 标记已刷新
func (b *KBucket) MarkRefreshed() {
	b.mu.Lock()
	b.lastRefresh = time.Now()
	b.mu.Unlock()
}

// ============================================================================
//                              路由表
// ============================================================================

// RoutingTable Kademlia 路由表
type RoutingTable struct {
	localID    types.NodeID
	bucketSize int
	buckets    [KeySize]*KBucket
	mu         sync.RWMutex
}

// NewRoutingTable 创建路由表
func NewRoutingTable(localID types.NodeID, bucketSize int) *RoutingTable {
	if bucketSize <= 0 {
		bucketSize = BucketSize
	}
	rt := &RoutingTable{localID: localID, bucketSize: bucketSize}
	for i := range rt.buckets {
		rt.buckets[i] = NewKBucket(bucketSize)
	}
	return rt
}

// LocalID 返回本地节点 ID
func (rt *RoutingTable) LocalID() types.NodeID {
	return rt.localID
}

func (rt *RoutingTable) bucketFor(id types.NodeID) *KBucket {
	idx := BucketIndex(rt.localID, id)
	if idx < 0 {
		return nil
	}
	return rt.buckets[idx]
}

// Add 添加节点，本地节点会被忽略
func (rt *RoutingTable) Add(node *RoutingNode) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.bucketFor(node.ID)
	if b == nil {
		return false
	}
	if node.LastSeen.IsZero() {
		node.LastSeen = time.Now()
	}
	return b.Add(node)
}

// Remove 移除节点
func (rt *RoutingTable) Remove(id types.NodeID) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.bucketFor(id)
	if b == nil {
		return false
	}
	return b.Remove(id)
}

// Find 查找节点
func (rt *RoutingTable) Find(id types.NodeID) *RoutingNode {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.bucketFor(id)
	if b == nil {
		return nil
	}
	return b.Get(id)
}

// Touch 标记节点活跃
func (rt *RoutingTable) Touch(id types.NodeID, rtt time.Duration) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.bucketFor(id)
	if b == nil {
		return false
	}
	return b.Touch(id, rtt)
}

// Fail 记录节点失败，节点被移除时返回 true
func (rt *RoutingTable) Fail(id types.NodeID) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.bucketFor(id)
	if b == nil {
		return false
	}
	return b.Fail(id)
}

// Size 返回路由表中的节点总数
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	total := 0
	for _, b := range rt.buckets {
		total += b.Size()
	}
	return total
}

// NearestPeers 返回距离 target 最近的 count 个节点
func (rt *RoutingTable) NearestPeers(target types.NodeID, count int) []*RoutingNode {
	nodes := rt.AllNodes()
	sort.Slice(nodes, func(i, j int) bool {
		return CompareDistance(nodes[i].ID, nodes[j].ID, target) < 0
	})
	if len(nodes) > count {
		nodes = nodes[:count]
	}
	return nodes
}

// AllNodes 返回所有节点
func (rt *RoutingTable) AllNodes() []*RoutingNode {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var nodes []*RoutingNode
	for _, b := range rt.buckets {
		nodes = append(nodes, b.Nodes()...)
	}
	return nodes
}

// BucketsNeedingRefresh 返回需要刷新的非空桶索引
func (rt *RoutingTable) BucketsNeedingRefresh(interval time.Duration) []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var result []int
	for i, b := range rt.buckets {
		if b.Size() > 0 && b.NeedRefresh(interval) {
			result = append(result, i)
		}
	}
	return result
}

// MarkBucketRefreshed 标记桶已刷新
func (rt *RoutingTable) MarkBucketRefreshed(index int) {
	if index < 0 || index >= KeySize {
		return
	}
	rt.buckets[index].MarkRefreshed()
}

// RemoveExpiredNodes 移除过期节点，返回移除数量
func (rt *RoutingTable) RemoveExpiredNodes() int {
	now := time.Now()
	removed := 0
	for _, node := range rt.AllNodes() {
		if node.IsExpired(now) && rt.Remove(node.ID) {
			removed++
		}
	}
	return removed
}

// RandomIDInBucket 生成落在指定桶中的随机 ID，用于桶刷新
func (rt *RoutingTable) RandomIDInBucket(index int, random types.NodeID) types.NodeID {
	id := random
	// 前 index 位与本地相同，第 index 位相反
	for bit := 0; bit <= index && bit < KeySize; bit++ {
		byteIdx, mask := bit/8, byte(0x80>>(bit%8))
		local := rt.localID[byteIdx] & mask
		if bit == index {
			local ^= mask
		}
		id[byteIdx] = (id[byteIdx] &^ mask) | local
	}
	return id
}
