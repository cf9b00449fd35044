package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Metadata 包或模块的元数据
type Metadata struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// PackageModule 包内的单个模块
type PackageModule struct {
	Metadata Metadata `json:"metadata"`
	Content  []byte   `json:"content"`
}

// Package WASM 包：包元数据加若干具名模块
type Package struct {
	Metadata Metadata        `json:"package_metadata"`
	Modules  []PackageModule `json:"modules"`
}

// AddModule 添加模块
func (p *Package) AddModule(meta Metadata, content []byte) {
	p.Modules = append(p.Modules, PackageModule{Metadata: meta, Content: content})
}

// AddFile 从文件读取模块内容并添加
func (p *Package) AddFile(path string, meta Metadata) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p.AddModule(meta, content)
	return nil
}

// Module 按名称查找模块内容
func (p *Package) Module(name string) ([]byte, bool) {
	for _, m := range p.Modules {
		if m.Metadata.Name == name {
			return m.Content, true
		}
	}
	return nil, false
}

// Validate 检查包元数据与模块名
func (p *Package) Validate() error {
	if p.Metadata.Name == "" {
		return fmt.Errorf("%w: package name is empty", ErrInvalidPackage)
	}
	seen := make(map[string]struct{}, len(p.Modules))
	for i, m := range p.Modules {
		if m.Metadata.Name == "" {
			return fmt.Errorf("%w: module %d has no name", ErrInvalidPackage, i)
		}
		if _, dup := seen[m.Metadata.Name]; dup {
			return fmt.Errorf("%w: duplicate module %q", ErrInvalidPackage, m.Metadata.Name)
		}
		seen[m.Metadata.Name] = struct{}{}
	}
	return nil
}

// Pack 将包编码为 zstd 压缩的 JSON
func Pack(w io.Writer, p *Package) error {
	if err := p.Validate(); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(p); err != nil {
		_ = enc.Close()
		return fmt.Errorf("wasm: encode package: %w", err)
	}
	return enc.Close()
}

// Unpack 解码 Pack 生成的数据
func Unpack(r io.Reader) (*Package, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	defer dec.Close()

	var p Package
	if err := json.NewDecoder(dec).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPackage 实例化包内全部模块，模块以其名称注册
//
// 任一模块失败时关闭已加载的模块。
func (r *Runtime) LoadPackage(ctx context.Context, p *Package) (map[string]*Module, error) {
	mods := make(map[string]*Module, len(p.Modules))
	for _, m := range p.Modules {
		mod, err := r.Load(ctx, m.Metadata.Name, m.Content)
		if err != nil {
			for _, loaded := range mods {
				_ = loaded.Close(ctx)
			}
			return nil, fmt.Errorf("wasm: load module %q: %w", m.Metadata.Name, err)
		}
		mods[m.Metadata.Name] = mod
	}
	logger.Info("WASM 包已加载", "package", p.Metadata.Name, "version", p.Metadata.Version, "modules", len(mods))
	return mods, nil
}
