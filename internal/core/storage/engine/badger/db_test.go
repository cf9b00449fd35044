package badger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreoverlay/go-coreoverlay/internal/core/storage/engine"
)

// testEngine 创建测试用引擎
func testEngine(t *testing.T, inMemory bool) *Engine {
	t.Helper()

	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	cfg.InMemory = inMemory
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("failed to close engine: %v", err)
		}
	})
	return e
}

func TestEngine_PutGetDelete(t *testing.T) {
	for _, inMemory := range []bool{false, true} {
		e := testEngine(t, inMemory)

		key, value := []byte("k"), []byte("v")
		if err := e.Put(key, value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := e.Get(key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Errorf("Get returned %q, want %q", got, value)
		}

		if ok, _ := e.Has(key); !ok {
			t.Error("Has returned false after Put")
		}
		if err := e.Delete(key); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := e.Get(key); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("Get after Delete returned %v, want ErrNotFound", err)
		}
	}
}

func TestEngine_EmptyKey(t *testing.T) {
	e := testEngine(t, true)
	if err := e.Put(nil, []byte("v")); !errors.Is(err, engine.ErrEmptyKey) {
		t.Errorf("Put(nil) returned %v, want ErrEmptyKey", err)
	}
	if _, err := e.Get(nil); !errors.Is(err, engine.ErrEmptyKey) {
		t.Errorf("Get(nil) returned %v, want ErrEmptyKey", err)
	}
}

func TestEngine_TTL(t *testing.T) {
	e := testEngine(t, true)

	// BadgerDB 的 TTL 以秒为精度
	if err := e.PutWithTTL([]byte("short"), []byte("v"), time.Second); err != nil {
		t.Fatalf("PutWithTTL failed: %v", err)
	}
	if ok, _ := e.Has([]byte("short")); !ok {
		t.Fatal("entry should be visible before expiry")
	}
	time.Sleep(2100 * time.Millisecond)
	if ok, _ := e.Has([]byte("short")); ok {
		t.Error("entry should expire after TTL")
	}
}

func TestEngine_ForEachPrefix(t *testing.T) {
	e := testEngine(t, true)
	for _, k := range []string{"/a/1", "/a/2", "/b/1"} {
		if err := e.Put([]byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	err := e.ForEach([]byte("/a/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "/a/1" || keys[1] != "/a/2" {
		t.Errorf("ForEach returned %v", keys)
	}

	stop := errors.New("stop")
	err = e.ForEach(nil, func(k, v []byte) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("ForEach should propagate callback error, got %v", err)
	}
}

func TestEngine_Closed(t *testing.T) {
	cfg := engine.InMemoryConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := e.Put([]byte("k"), nil); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Put after Close returned %v, want ErrClosed", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("New(nil) returned %v", err)
	}
	if _, err := New(&engine.Config{}); !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("New(empty) returned %v", err)
	}
}

func TestEngine_VerboseOnDisk(t *testing.T) {
	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "verbose.db"))
	cfg.Verbose = true
	cfg.GCInterval = 10 * time.Millisecond
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}
