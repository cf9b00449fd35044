package mdns

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("mdns: discovery already running")
	ErrAlreadyClosed  = errors.New("mdns: discovery stopped")
	ErrInvalidConfig  = errors.New("mdns: invalid config")
	ErrNilHost        = errors.New("mdns: host is nil")

	// ErrPortUnknown 主机尚未监听 TCP 端口，此时只浏览不广播
	ErrPortUnknown = errors.New("mdns: no tcp listen port to advertise")

	ErrNoLocalIPs = errors.New("mdns: no lan address to advertise")
)

// stageError 标注广播服务在哪一步失败
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("mdns: advertise (%s): %v", e.stage, e.err) }

func (e *stageError) Unwrap() error { return e.err }

func advertiseFailed(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}
