package coreoverlay

import "github.com/coreoverlay/go-coreoverlay/internal/platform"

// Version 当前版本
const Version = platform.OverlayVersion

// UserAgent 返回库的 User-Agent 字符串
func UserAgent() string {
	return platform.UserAgent()
}
