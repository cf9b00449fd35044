package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Discovery.DHT.BucketSize)
	assert.Equal(t, 3, cfg.Discovery.DHT.Alpha)
	assert.Equal(t, time.Hour, cfg.Discovery.DHT.RepublishInterval.Duration())
	assert.Equal(t, 24*time.Hour, cfg.Discovery.DHT.RecordTTL.Duration())
	assert.Equal(t, []string{DefaultListenAddr}, cfg.Transport.ListenAddrs)

	t.Log("✅ NewConfig 测试通过")
}

// TestNewBootstrapConfig 测试引导节点配置
func TestNewBootstrapConfig(t *testing.T) {
	cfg := NewBootstrapConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/8000"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, "./.compute-dht", cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join("./.compute-dht", "dht.db"), cfg.Storage.DBPath())
}

// TestConfig_ValidateErrors 测试非法配置
func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad key type", func(c *Config) { c.Identity.KeyType = "RSA" }},
		{"bad listen addr", func(c *Config) { c.Transport.ListenAddrs = []string{"127.0.0.1:80"} }},
		{"zero bucket", func(c *Config) { c.Discovery.DHT.BucketSize = 0 }},
		{"republish >= ttl", func(c *Config) { c.Discovery.DHT.RepublishInterval = c.Discovery.DHT.RecordTTL }},
		{"bad bootstrap", func(c *Config) { c.Discovery.BootstrapPeers = []string{"/ip4/1.2.3.4/tcp/1/p2p/!!"} }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad wasm mode", func(c *Config) { c.Wasm.Mode = "jit" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"metrics addr without enable", func(c *Config) {
			c.Metrics.Enable = false
			c.Metrics.ListenAddr = "127.0.0.1:9100"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)
}

// TestStorage_InMemory 内存模式允许空目录
func TestStorage_InMemory(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.DataDir = ""
	cfg.Storage.InMemory = true
	assert.NoError(t, cfg.Validate())
}

// TestDuration_JSON 测试 Duration 的 JSON 编解码
func TestDuration_JSON(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"1m30s"}`), &v))
	assert.Equal(t, 90*time.Second, v.D.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"d":1000}`), &v))
	assert.Equal(t, time.Microsecond, v.D.Duration())

	assert.Error(t, json.Unmarshal([]byte(`{"d":"soon"}`), &v))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

// TestLoad_YAML 测试 YAML 文件加载
func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	data := `
transport:
  listen_addrs: ["/ip4/127.0.0.1/tcp/9000"]
discovery:
  enable_mdns: true
  dht:
    alpha: 5
    query_timeout: 5s
storage:
  in_memory: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/9000"}, cfg.Transport.ListenAddrs)
	assert.True(t, cfg.Discovery.EnableMDNS)
	assert.Equal(t, 5, cfg.Discovery.DHT.Alpha)
	assert.Equal(t, 5*time.Second, cfg.Discovery.DHT.QueryTimeout.Duration())
	// 未设置的字段保持默认值
	assert.Equal(t, 20, cfg.Discovery.DHT.BucketSize)
	assert.True(t, cfg.Storage.InMemory)
}

// TestLoad_UnknownField 未知字段应报错
func TestLoad_UnknownField(t *testing.T) {
	_, err := FromJSON([]byte(`{"nat":{"enable":true}}`))
	assert.Error(t, err)

	_, err = FromYAML([]byte("realm: {}\n"))
	assert.Error(t, err)
}

// TestSave_RoundTrip 测试保存后再加载
func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Discovery.BootstrapPeers = []string{"127.0.0.1:8000"}
	cfg.Wasm.Mode = "interpreter"

	for _, name := range []string{"c.json", "c.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.Save(path))
		loaded, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg.Discovery.BootstrapPeers, loaded.Discovery.BootstrapPeers)
		assert.Equal(t, "interpreter", loaded.Wasm.Mode)
		assert.Equal(t, cfg.Discovery.DHT.RecordTTL, loaded.Discovery.DHT.RecordTTL)
	}
}
