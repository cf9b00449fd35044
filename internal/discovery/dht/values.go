package dht

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
)

// valuePrefix 值记录在存储引擎中的键前缀
const valuePrefix = "dht/v/"

// ValueRecord 值记录
type ValueRecord struct {
	// Value 值
	Value []byte `json:"value"`

	// ExpiresAt 过期时间
	ExpiresAt time.Time `json:"expires_at"`

	// Local 是否由本节点发布（参与重新发布）
	Local bool `json:"local,omitempty"`
}

// IsExpired 检查是否过期
func (vr *ValueRecord) IsExpired(now time.Time) bool {
	return now.After(vr.ExpiresAt)
}

// ValueStore 值存储
//
// 给定存储引擎时记录写入 BadgerDB（带 TTL），否则仅保存在内存中。
// 写入空值等同于删除。
type ValueStore struct {
	engine engine.Engine

	mu    sync.RWMutex
	store map[string]*ValueRecord

	now func() time.Time
}

// NewValueStore 创建值存储，eng 可为 nil
func NewValueStore(eng engine.Engine) *ValueStore {
	return &ValueStore{
		engine: eng,
		store:  make(map[string]*ValueRecord),
		now:    time.Now,
	}
}

// Persistent 是否写入存储引擎
func (vs *ValueStore) Persistent() bool {
	return vs.engine != nil
}

// Put 存储值，value 为空时删除该键
func (vs *ValueStore) Put(key string, value []byte, ttl time.Duration, local bool) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(value) == 0 {
		return vs.Delete(key)
	}

	rec := &ValueRecord{
		Value:     append([]byte(nil), value...),
		ExpiresAt: vs.now().Add(ttl),
		Local:     local,
	}

	if vs.engine != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return vs.engine.PutWithTTL([]byte(valuePrefix+key), data, ttl)
	}

	vs.mu.Lock()
	vs.store[key] = rec
	vs.mu.Unlock()
	return nil
}

// Get 获取值
func (vs *ValueStore) Get(key string) ([]byte, bool) {
	rec, ok := vs.Record(key)
	if !ok {
		return nil, false
	}
	return rec.Value, true
}

// Record 获取完整记录
func (vs *ValueStore) Record(key string) (*ValueRecord, bool) {
	if vs.engine != nil {
		data, err := vs.engine.Get([]byte(valuePrefix + key))
		if err != nil {
			if !engine.IsNotFound(err) {
				logger.Warn("读取值记录失败", "key", key, "error", err)
			}
			return nil, false
		}
		var rec ValueRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.Warn("值记录损坏", "key", key, "error", err)
			return nil, false
		}
		if rec.IsExpired(vs.now()) {
			return nil, false
		}
		return &rec, true
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()

	rec, ok := vs.store[key]
	if !ok || rec.IsExpired(vs.now()) {
		return nil, false
	}
	return rec, true
}

// Delete 删除值
func (vs *ValueStore) Delete(key string) error {
	if vs.engine != nil {
		return vs.engine.Delete([]byte(valuePrefix + key))
	}
	vs.mu.Lock()
	delete(vs.store, key)
	vs.mu.Unlock()
	return nil
}

// Records 返回所有未过期记录
func (vs *ValueStore) Records() map[string]*ValueRecord {
	now := vs.now()
	out := make(map[string]*ValueRecord)

	if vs.engine != nil {
		err := vs.engine.ForEach([]byte(valuePrefix), func(k, v []byte) error {
			var rec ValueRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if !rec.IsExpired(now) {
				out[strings.TrimPrefix(string(k), valuePrefix)] = &rec
			}
			return nil
		})
		if err != nil {
			logger.Warn("遍历值记录失败", "error", err)
		}
		return out
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()
	for k, rec := range vs.store {
		if !rec.IsExpired(now) {
			out[k] = rec
		}
	}
	return out
}

// Keys 返回所有未过期的键（已排序）
func (vs *ValueStore) Keys() []string {
	recs := vs.Records()
	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size 返回记录数量
func (vs *ValueStore) Size() int {
	return len(vs.Records())
}

// CleanupExpired 清理过期记录，返回清理数量
//
// BadgerDB 依赖条目 TTL 自行过期，这里只处理内存存储。
func (vs *ValueStore) CleanupExpired() int {
	if vs.engine != nil {
		return 0
	}

	now := vs.now()
	vs.mu.Lock()
	defer vs.mu.Unlock()

	removed := 0
	for k, rec := range vs.store {
		if rec.IsExpired(now) {
			delete(vs.store, k)
			removed++
		}
	}
	return removed
}
