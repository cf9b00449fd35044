package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/coreoverlay/go-coreoverlay/internal/platform"
)

// 引导节点默认值
const (
	// DefaultBootstrapDataDir 引导节点数据目录
	DefaultBootstrapDataDir = "./.compute-dht"

	// DefaultBootstrapKeyFile 引导节点密钥文件
	DefaultBootstrapKeyFile = "./.compute-dht/identity.key"
)

// StorageConfig 存储配置
//
// 数据目录结构：
//
//	${DataDir}/
//	├── dht.db/        # BadgerDB（DHT 记录与 Provider）
//	└── identity.key   # 节点密钥（可选）
type StorageConfig struct {
	// DataDir 数据目录，默认为平台工作目录
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// InMemory 是否仅使用内存存储（忽略 DataDir）
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites 每次写入是否同步到磁盘
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval BadgerDB 值日志 GC 间隔
	GCInterval Duration `json:"gc_interval" yaml:"gc_interval"`

	// Verbose 输出 BadgerDB 内部日志
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultStorageConfig 返回默认存储配置
//
// 无法确定用户目录时回退到 ./.compute-dht。
func DefaultStorageConfig() StorageConfig {
	dir, err := platform.WorkDir()
	if err != nil {
		dir = DefaultBootstrapDataDir
	}
	return StorageConfig{
		DataDir:    dir,
		GCInterval: Duration(10 * time.Minute),
	}
}

// Validate 验证存储配置
func (c StorageConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("storage: data_dir cannot be empty")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "dht.db")
}
