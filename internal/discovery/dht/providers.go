package dht

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

const (
	// providerPrefix Provider 记录在存储引擎中的键前缀
	// 完整键为 dht/p/<key>/<peerID>
	providerPrefix = "dht/p/"

	// DefaultMaxProviderKeys 内存中最多缓存的键数量
	DefaultMaxProviderKeys = 1 << 16

	// MaxProvidersPerKey 每个键最多保留的 Provider 数量
	MaxProvidersPerKey = BucketSize * 2
)

// ProviderRecord Provider 记录
type ProviderRecord struct {
	// PeerID 节点 ID
	PeerID types.PeerID `json:"peer_id"`

	// Addrs 节点地址
	Addrs []string `json:"addrs,omitempty"`

	// ExpiresAt 过期时间
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired 检查是否过期
func (pr *ProviderRecord) IsExpired(now time.Time) bool {
	return now.After(pr.ExpiresAt)
}

// AddrInfo 返回 Provider 的地址信息，无法解析的地址被跳过
func (pr *ProviderRecord) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: pr.PeerID, Addrs: parseAddrs(pr.Addrs)}
}

// ProviderStore Provider 存储
//
// 内存部分为 LRU 缓存（键数量有上限）；给定存储引擎时同时写入 BadgerDB，
// 重启后由 Load 恢复。
type ProviderStore struct {
	engine engine.Engine
	cache  *lru.Cache[string, []*ProviderRecord]
	mu     sync.Mutex

	now func() time.Time
}

// NewProviderStore 创建 Provider 存储，eng 可为 nil
func NewProviderStore(eng engine.Engine, maxKeys int) *ProviderStore {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxProviderKeys
	}
	cache, _ := lru.New[string, []*ProviderRecord](maxKeys)
	return &ProviderStore{engine: eng, cache: cache, now: time.Now}
}

// Load 从存储引擎恢复未过期的 Provider 记录
func (ps *ProviderStore) Load() (int, error) {
	if ps.engine == nil {
		return 0, nil
	}

	now := ps.now()
	loaded := 0
	err := ps.engine.ForEach([]byte(providerPrefix), func(k, v []byte) error {
		rest := strings.TrimPrefix(string(k), providerPrefix)
		i := strings.LastIndex(rest, "/")
		if i < 0 {
			return nil
		}
		var rec ProviderRecord
		if err := json.Unmarshal(v, &rec); err != nil || rec.IsExpired(now) {
			return nil
		}
		ps.addLocked(rest[:i], &rec)
		loaded++
		return nil
	})
	return loaded, err
}

// AddProvider 添加或刷新 Provider
func (ps *ProviderStore) AddProvider(key string, info types.AddrInfo, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	rec := &ProviderRecord{
		PeerID:    info.ID,
		Addrs:     info.AddrStrings(),
		ExpiresAt: ps.now().Add(ttl),
	}

	ps.mu.Lock()
	ps.addLocked(key, rec)
	ps.mu.Unlock()

	if ps.engine != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return ps.engine.PutWithTTL(providerKey(key, info.ID), data, ttl)
	}
	return nil
}

func (ps *ProviderStore) addLocked(key string, rec *ProviderRecord) {
	providers, _ := ps.cache.Get(key)
	for i, p := range providers {
		if p.PeerID == rec.PeerID {
			if len(rec.Addrs) == 0 {
				rec.Addrs = p.Addrs
			}
			providers[i] = rec
			ps.cache.Add(key, providers)
			return
		}
	}
	providers = append(providers, rec)
	if len(providers) > MaxProvidersPerKey {
		providers = providers[len(providers)-MaxProvidersPerKey:]
	}
	ps.cache.Add(key, providers)
}

// GetProviders 返回未过期的 Provider
func (ps *ProviderStore) GetProviders(key string) []*ProviderRecord {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	providers, ok := ps.cache.Get(key)
	if !ok {
		return nil
	}
	now := ps.now()
	result := make([]*ProviderRecord, 0, len(providers))
	for _, p := range providers {
		if !p.IsExpired(now) {
			result = append(result, p)
		}
	}
	return result
}

// RemoveProvider 移除 Provider
func (ps *ProviderStore) RemoveProvider(key string, peer types.PeerID) error {
	ps.mu.Lock()
	if providers, ok := ps.cache.Get(key); ok {
		kept := providers[:0]
		for _, p := range providers {
			if p.PeerID != peer {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			ps.cache.Remove(key)
		} else {
			ps.cache.Add(key, kept)
		}
	}
	ps.mu.Unlock()

	if ps.engine != nil {
		return ps.engine.Delete(providerKey(key, peer))
	}
	return nil
}

// Keys 返回缓存中的键
func (ps *ProviderStore) Keys() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.cache.Keys()
}

// Size 返回缓存中的键数量
func (ps *ProviderStore) Size() int {
	return ps.cache.Len()
}

// CleanupExpired 清理过期记录，返回清理的记录数
func (ps *ProviderStore) CleanupExpired() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	removed := 0
	for _, key := range ps.cache.Keys() {
		providers, ok := ps.cache.Peek(key)
		if !ok {
			continue
		}
		kept := providers[:0]
		for _, p := range providers {
			if p.IsExpired(now) {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			ps.cache.Remove(key)
		} else {
			ps.cache.Add(key, kept)
		}
	}
	return removed
}

func providerKey(key string, peer types.PeerID) []byte {
	return []byte(providerPrefix + key + "/" + string(peer))
}

func parseAddrs(addrs []string) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, s := range addrs {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
