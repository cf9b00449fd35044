package bridge

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// MaxBufferLen C 侧传入缓冲区的最大长度，cgo 拷贝以 C.int 计长
const MaxBufferLen = math.MaxInt32

var (
	// ErrInvalidHandle 句柄不存在或已释放
	ErrInvalidHandle = errors.New("bridge: invalid engine handle")

	// ErrNilArgument 必需的参数为空
	ErrNilArgument = errors.New("bridge: required argument is null")

	// ErrArgumentTooLarge 缓冲区长度超过 MaxBufferLen
	ErrArgumentTooLarge = errors.New("bridge: argument too large")

	// ErrUnexpectedResult WASM 冒烟模块返回了意外的结果
	ErrUnexpectedResult = errors.New("bridge: unexpected wasm result")
)

// lastError 最近一次失败调用的错误信息（进程级）
var lastError struct {
	mu  sync.Mutex
	msg string
}

// SetLastError 记录错误，err 为 nil 时不做任何事
func SetLastError(err error) {
	if err == nil {
		return
	}
	lastError.mu.Lock()
	lastError.msg = err.Error()
	lastError.mu.Unlock()
}

// LastError 返回最近一次错误信息，没有错误时返回空字符串
func LastError() string {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	return lastError.msg
}

// ClearLastError 清除错误信息
func ClearLastError() {
	lastError.mu.Lock()
	lastError.msg = ""
	lastError.mu.Unlock()
}

// record 记录错误并原样返回，便于在导出函数中一行处理
func record(err error) error {
	SetLastError(err)
	return err
}

// CheckBufferLen 校验 C 侧缓冲区长度，超限时记录并返回 ErrArgumentTooLarge
func CheckBufferLen(n uint64) error {
	if n > MaxBufferLen {
		return record(fmt.Errorf("%w: %d bytes", ErrArgumentTooLarge, n))
	}
	return nil
}
