package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreoverlay/go-coreoverlay/internal/core/storage"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
)

func newMemEngine(t *testing.T) engine.Engine {
	t.Helper()
	eng, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

// valueStores 返回内存与 BadgerDB 两种值存储
func valueStores(t *testing.T) map[string]*ValueStore {
	return map[string]*ValueStore{
		"memory": NewValueStore(nil),
		"badger": NewValueStore(newMemEngine(t)),
	}
}

func TestValueStore_PutGet(t *testing.T) {
	for name, vs := range valueStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, vs.Put("k1", []byte("v1"), time.Hour, true))
			require.NoError(t, vs.Put("k2", []byte("v2"), time.Hour, false))

			v, ok := vs.Get("k1")
			require.True(t, ok)
			assert.Equal(t, []byte("v1"), v)

			rec, ok := vs.Record("k1")
			require.True(t, ok)
			assert.True(t, rec.Local)

			assert.Equal(t, []string{"k1", "k2"}, vs.Keys())
			assert.Equal(t, 2, vs.Size())

			_, ok = vs.Get("missing")
			assert.False(t, ok)
		})
	}
}

func TestValueStore_EmptyValueDeletes(t *testing.T) {
	for name, vs := range valueStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, vs.Put("k", []byte("v"), time.Hour, false))
			require.NoError(t, vs.Put("k", nil, time.Hour, false))

			_, ok := vs.Get("k")
			assert.False(t, ok)
		})
	}
}

func TestValueStore_EmptyKey(t *testing.T) {
	vs := NewValueStore(nil)
	assert.ErrorIs(t, vs.Put("", []byte("v"), time.Hour, false), ErrInvalidKey)
}

func TestValueStore_Expiry(t *testing.T) {
	for name, vs := range valueStores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			vs.now = func() time.Time { return now }
			require.NoError(t, vs.Put("k", []byte("v"), time.Minute, false))

			vs.now = func() time.Time { return now.Add(2 * time.Minute) }
			_, ok := vs.Get("k")
			assert.False(t, ok)
			assert.Empty(t, vs.Keys())
		})
	}
}

func TestValueStore_CleanupExpired(t *testing.T) {
	vs := NewValueStore(nil)
	now := time.Now()
	vs.now = func() time.Time { return now }
	require.NoError(t, vs.Put("old", []byte("v"), time.Minute, false))
	require.NoError(t, vs.Put("new", []byte("v"), time.Hour, false))

	vs.now = func() time.Time { return now.Add(10 * time.Minute) }
	assert.Equal(t, 1, vs.CleanupExpired())
	assert.Equal(t, []string{"new"}, vs.Keys())
}

func TestValueStore_PersistsAcrossInstances(t *testing.T) {
	eng := newMemEngine(t)
	require.NoError(t, NewValueStore(eng).Put("k", []byte("v"), time.Hour, true))

	v, ok := NewValueStore(eng).Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}
