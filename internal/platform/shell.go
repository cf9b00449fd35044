package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrCommandFailed 命令以非零状态退出
var ErrCommandFailed = errors.New("platform: command failed")

// Command 外部命令描述
type Command struct {
	// Name 可执行文件名或路径
	Name string

	// Args 参数列表
	Args []string

	// Dir 工作目录，为空时使用当前目录
	Dir string

	// Env 附加环境变量（在当前进程环境之上追加）
	Env map[string]string
}

// ExecCommand 执行外部命令并返回标准输出
//
// 命令以非零状态退出时返回 ErrCommandFailed，错误信息包含标准错误输出。
func ExecCommand(ctx context.Context, cmd Command) (string, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		env := os.Environ()
		for k, v := range cmd.Env {
			env = append(env, k+"="+v)
		}
		c.Env = env
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s", ErrCommandFailed, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("platform: run %s: %w", cmd.Name, err)
	}
	return stdout.String(), nil
}
