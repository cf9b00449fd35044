// Package peerstore 实现节点地址簿与公钥簿
//
// 条目数量由 LRU 限制，超出容量时淘汰最久未访问的节点。
package peerstore

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// DefaultCapacity 默认容量
const DefaultCapacity = 4096

// ErrPeerIDMismatch 公钥哈希与 PeerID 对不上
var ErrPeerIDMismatch = errors.New("peerstore: pubkey hashes to a different peer")

type expiringAddr struct {
	addr    ma.Multiaddr
	expires time.Time
}

type peerRecord struct {
	addrs  map[string]expiringAddr
	pubKey crypto.PublicKey
}

// Peerstore 节点信息存储
type Peerstore struct {
	mu    sync.Mutex
	peers *lru.Cache[types.PeerID, *peerRecord]
	now   func() time.Time
}

// New 创建 Peerstore，capacity <= 0 时使用 DefaultCapacity
func New(capacity int) *Peerstore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, _ := lru.New[types.PeerID, *peerRecord](capacity)
	return &Peerstore{peers: cache, now: time.Now}
}

func (ps *Peerstore) record(id types.PeerID) *peerRecord {
	rec, ok := ps.peers.Get(id)
	if !ok {
		rec = &peerRecord{addrs: make(map[string]expiringAddr)}
		ps.peers.Add(id, rec)
	}
	return rec
}

// AddAddrs 添加地址，已存在的地址仅在新 TTL 更长时延长
func (ps *Peerstore) AddAddrs(id types.PeerID, addrs []ma.Multiaddr, ttl time.Duration) {
	if id.IsEmpty() || len(addrs) == 0 {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	rec := ps.record(id)
	expires := ps.expiry(ttl)
	for _, a := range addrs {
		if a == nil {
			continue
		}
		key := string(a.Bytes())
		if old, ok := rec.addrs[key]; ok && old.expires.After(expires) {
			continue
		}
		rec.addrs[key] = expiringAddr{addr: a, expires: expires}
	}
}

func (ps *Peerstore) expiry(ttl time.Duration) time.Time {
	if ttl >= BootstrapAddrTTL {
		return time.Unix(1<<62, 0)
	}
	return ps.now().Add(ttl)
}

// Addrs 返回未过期的地址
func (ps *Peerstore) Addrs(id types.PeerID) []ma.Multiaddr {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	rec, ok := ps.peers.Get(id)
	if !ok {
		return nil
	}
	now := ps.now()
	out := make([]ma.Multiaddr, 0, len(rec.addrs))
	for k, ea := range rec.addrs {
		if now.After(ea.expires) {
			delete(rec.addrs, k)
			continue
		}
		out = append(out, ea.addr)
	}
	return out
}

// ClearAddrs 清除节点的所有地址
func (ps *Peerstore) ClearAddrs(id types.PeerID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if rec, ok := ps.peers.Peek(id); ok {
		rec.addrs = make(map[string]expiringAddr)
	}
}

// PeerInfo 返回节点的 AddrInfo
func (ps *Peerstore) PeerInfo(id types.PeerID) types.AddrInfo {
	return types.AddrInfo{ID: id, Addrs: ps.Addrs(id)}
}

// AddPubKey 记录节点公钥，公钥必须与 PeerID 匹配
func (ps *Peerstore) AddPubKey(id types.PeerID, pub crypto.PublicKey) error {
	ok, err := crypto.VerifyPeerID(pub, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPeerIDMismatch
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.record(id).pubKey = pub
	return nil
}

// PubKey 返回节点公钥
func (ps *Peerstore) PubKey(id types.PeerID) (crypto.PublicKey, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	rec, ok := ps.peers.Peek(id)
	if !ok || rec.pubKey == nil {
		return nil, false
	}
	return rec.pubKey, true
}

// Peers 返回所有已知节点
func (ps *Peerstore) Peers() []types.PeerID {
	return ps.peers.Keys()
}

// RemovePeer 删除节点的全部信息
func (ps *Peerstore) RemovePeer(id types.PeerID) {
	ps.peers.Remove(id)
}

// Len 返回节点数量
func (ps *Peerstore) Len() int {
	return ps.peers.Len()
}
