package dht

import (
	"context"
	"fmt"
	"strings"
)

// 行协议命令
const (
	CmdGet          = "GET"
	CmdGetProviders = "GET_PROVIDERS"
	CmdPut          = "PUT"
	CmdPutProvider  = "PUT_PROVIDER"
)

// Exec 执行一行文本命令并返回输出
//
// 支持的命令：
//
//	GET <key>
//	GET_PROVIDERS <key>
//	PUT <key> <value>
//	PUT_PROVIDER <key>
//
// 参数以单个空格分隔，PUT 的值取第三个字段。
// 值字段存在但为空时（"PUT k "）写入空值，即删除该记录。
func (d *DHT) Exec(ctx context.Context, line string) (string, error) {
	args := strings.Split(strings.TrimRight(line, "\r\n"), " ")
	cmd := args[0]
	arg := func(i int) (string, bool) {
		if i < len(args) {
			return args[i], true
		}
		return "", false
	}

	switch cmd {
	case CmdGet:
		key, _ := arg(1)
		if key == "" {
			return "", ErrExpectedKey
		}
		value, err := d.GetValue(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to get record: %w", err)
		}
		return fmt.Sprintf("Got record %q %q", key, value), nil

	case CmdGetProviders:
		key, _ := arg(1)
		if key == "" {
			return "", ErrExpectedKey
		}
		providers, err := d.FindProviders(ctx, key, 0)
		if err != nil {
			return "", fmt.Errorf("failed to get providers: %w", err)
		}
		lines := make([]string, 0, len(providers))
		for _, p := range providers {
			lines = append(lines, fmt.Sprintf("Peer %s provides key %q", p.ID, key))
		}
		return strings.Join(lines, "\n"), nil

	case CmdPut:
		key, _ := arg(1)
		if key == "" {
			return "", ErrExpectedKey
		}
		value, ok := arg(2)
		if !ok {
			return "", ErrExpectedValue
		}
		if err := d.PutValue(ctx, key, []byte(value)); err != nil {
			return "", fmt.Errorf("failed to put record: %w", err)
		}
		return fmt.Sprintf("Successfully put record %q", key), nil

	case CmdPutProvider:
		key, _ := arg(1)
		if key == "" {
			return "", ErrExpectedKey
		}
		if err := d.Provide(ctx, key); err != nil {
			return "", fmt.Errorf("failed to put provider record: %w", err)
		}
		return fmt.Sprintf("Successfully put provider record %q", key), nil

	default:
		return "", ErrUnknownCommand
	}
}
