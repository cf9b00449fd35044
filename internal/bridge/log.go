package bridge

import (
	"log/slog"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
)

// hostLogger 记录宿主应用通过 ovry_* 传入的日志
var hostLogger = log.Logger("host-app")

// Log 将宿主消息写入结构化日志
func Log(level slog.Level, msg string) {
	switch {
	case level >= slog.LevelError:
		hostLogger.Error(msg)
	case level >= slog.LevelWarn:
		hostLogger.Warn(msg)
	default:
		hostLogger.Info(msg)
	}
}

// Add 返回 a + b（按二进制补码回绕）
func Add(a, b int64) int64 {
	return a + b
}
