// Package platform 提供宿主平台信息
//
// 这些值通过 FFI 暴露给宿主应用（ovr_arch、ovr_os、ovr_user_agent），
// 名称沿用宿主侧已有的约定（x86_64、aarch64、macos 等）。
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// 版本信息
const (
	// OverlayVersion 协议族版本
	OverlayVersion = "0.1.0"

	// RuntimeName 嵌入的 WASM 运行时名称
	RuntimeName = "WAZERO"

	// RuntimeModule 运行时的 Go 模块路径，版本从构建信息中读取
	RuntimeModule = "github.com/tetratelabs/wazero"
)

// RuntimeVersion 链接进当前二进制的 wazero 版本（不带 v 前缀），未链接时为 "unknown"
var RuntimeVersion = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return moduleVersion(info, RuntimeModule)
})

func moduleVersion(info *debug.BuildInfo, path string) string {
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			dep = dep.Replace
		}
		return strings.TrimPrefix(dep.Version, "v")
	}
	return "unknown"
}

// WorkDirName 工作目录名称
const WorkDirName = "compute-dht"

// ErrNoHomeDir 无法确定用户目录
var ErrNoHomeDir = errors.New("platform: home directory environment variable not set")

// Arch 返回 CPU 架构名称
func Arch() string {
	return archName(runtime.GOARCH)
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	case "ppc64", "ppc64le":
		return "powerpc64"
	case "ppc":
		return "powerpc"
	case "loong64":
		return "loongarch64"
	case "mips", "mipsle":
		return "mips"
	case "mips64", "mips64le":
		return "mips64"
	default:
		return goarch
	}
}

// OS 返回操作系统名称
func OS() string {
	return osName(runtime.GOOS)
}

func osName(goos string) string {
	if goos == "darwin" {
		return "macos"
	}
	return goos
}

// UserAgent 返回 User-Agent 字符串
//
// 格式：OVERLAY/<v> COREOVERLAY/<v> DHT/Kademlia <RUNTIME>/<v>
func UserAgent() string {
	return fmt.Sprintf("OVERLAY/%s COREOVERLAY/%s DHT/Kademlia %s/%s",
		OverlayVersion, OverlayVersion, RuntimeName, RuntimeVersion())
}

// WorkDir 返回默认工作目录
//
//   - Unix: $HOME/.compute-dht
//   - Windows: %APPDATA%/compute-dht
func WorkDir() (string, error) {
	return workDir(runtime.GOOS, os.Getenv)
}

func workDir(goos string, getenv func(string) string) (string, error) {
	if goos == "windows" {
		appData := getenv("APPDATA")
		if appData == "" {
			return "", ErrNoHomeDir
		}
		return filepath.Join(appData, WorkDirName), nil
	}
	home := getenv("HOME")
	if home == "" {
		return "", ErrNoHomeDir
	}
	return filepath.Join(home, "."+WorkDirName), nil
}
