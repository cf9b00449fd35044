// Package log 提供 CoreOverlay 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，按组件（子系统）输出结构化日志。
//
// 环境变量：
//   - COREOVERLAY_LOG_LEVEL: 日志级别，支持按组件配置
//     格式: 组件=级别,组件=级别,默认级别
//     示例: discovery/dht=debug,core/host=warn,info
//   - COREOVERLAY_LOG_FORMAT: text 或 json
//
// 使用方式：
//
//	var logger = log.Logger("discovery/dht")
//	logger.Info("节点加入路由表", "peer", log.TruncateID(id, 8))
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]slog.Level

	// Format 输出格式
	Format Format
}

// LevelFor 返回组件的日志级别
func (c *Config) LevelFor(component string) slog.Level {
	if level, ok := c.ComponentLevels[component]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	output   io.Writer = os.Stderr
	outputMu sync.RWMutex

	cfgMu sync.RWMutex
	cfg   = ConfigFromEnv()

	// handlers 缓存各组件的 handler，用于动态调整级别
	handlers sync.Map // map[string]*componentHandler
)

// ConfigFromEnv 从环境变量解析配置
func ConfigFromEnv() *Config {
	c := &Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}
	if s := os.Getenv("COREOVERLAY_LOG_LEVEL"); s != "" {
		ParseLevelSpec(c, s)
	}
	if strings.EqualFold(os.Getenv("COREOVERLAY_LOG_FORMAT"), "json") {
		c.Format = FormatJSON
	}
	return c
}

// ParseLevelSpec 解析 "组件=级别,...,默认级别" 格式的配置串
func ParseLevelSpec(c *Config, spec string) {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(v); ok {
				c.ComponentLevels[strings.TrimSpace(k)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			c.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Configure 替换全局日志配置
//
// 已创建的 LazyLogger 会在下一次调用时使用新配置。
func Configure(c *Config) {
	if c == nil {
		return
	}
	if c.ComponentLevels == nil {
		c.ComponentLevels = make(map[string]slog.Level)
	}
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
	handlers.Range(func(key, value any) bool {
		handlers.Delete(key)
		return true
	})
}

// SetOutput 设置日志输出目标
//
// 示例：
//
//	file, _ := os.OpenFile("overlay.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
//	log.SetOutput(file)
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// SetLevel 动态设置组件的日志级别
func SetLevel(component string, level slog.Level) {
	cfgMu.Lock()
	cfg.ComponentLevels[component] = level
	cfgMu.Unlock()
	if h, ok := handlers.Load(component); ok {
		h.(*componentHandler).setLevel(level)
	}
}

// SetDefaultLevel 设置默认日志级别（不影响单独配置过的组件）
func SetDefaultLevel(level slog.Level) {
	cfgMu.Lock()
	cfg.DefaultLevel = level
	overrides := cfg.ComponentLevels
	cfgMu.Unlock()
	handlers.Range(func(key, value any) bool {
		if _, ok := overrides[key.(string)]; !ok {
			value.(*componentHandler).setLevel(level)
		}
		return true
	})
}

// dynamicWriter 每次写入时查找当前的输出目标
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}

// componentHandler 支持动态级别的组件 handler
type componentHandler struct {
	mu    sync.RWMutex
	level slog.Level
	inner slog.Handler
}

func newComponentHandler(component string) *componentHandler {
	cfgMu.RLock()
	level := cfg.LevelFor(component)
	format := cfg.Format
	cfgMu.RUnlock()

	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug, // 由 componentHandler 负责过滤
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	var inner slog.Handler
	if format == FormatJSON {
		inner = slog.NewJSONHandler(dynamicWriter{}, opts)
	} else {
		inner = slog.NewTextHandler(dynamicWriter{}, opts)
	}

	return &componentHandler{
		level: level,
		inner: inner.WithAttrs([]slog.Attr{slog.String("component", component)}),
	}
}

func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return level >= h.level
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &componentHandler{level: h.level, inner: h.inner.WithAttrs(attrs)}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &componentHandler{level: h.level, inner: h.inner.WithGroup(name)}
}

func (h *componentHandler) setLevel(level slog.Level) {
	h.mu.Lock()
	h.level = level
	h.mu.Unlock()
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 首次日志调用时才创建组件 handler，之后复用；
// Configure 之后会按新配置重建。
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) logger() *slog.Logger {
	if h, ok := handlers.Load(l.component); ok {
		return slog.New(h.(*componentHandler))
	}
	h, _ := handlers.LoadOrStore(l.component, newComponentHandler(l.component))
	return slog.New(h.(*componentHandler))
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) { l.logger().Debug(msg, args...) }

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) { l.logger().Info(msg, args...) }

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) { l.logger().Warn(msg, args...) }

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) { l.logger().Error(msg, args...) }

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger().DebugContext(ctx, msg, args...)
}

// InfoContext 带 context 的 Info 日志
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger().InfoContext(ctx, msg, args...)
}

// Log 以指定级别输出日志
func (l *LazyLogger) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.logger().Log(ctx, level, msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.logger().With(args...)
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// Discard 返回一个丢弃所有日志的 slog.Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}
