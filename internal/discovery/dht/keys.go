package dht

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// HexKeySize 命令行客户端使用的键长度（字节）
const HexKeySize = sha1.Size

// GenerateKeyFromString 对输入做 SHA-1，返回 40 位十六进制键
func GenerateKeyFromString(input string) string {
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// RandomKey 返回随机的 40 位十六进制键
func RandomKey() string {
	var b [HexKeySize]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ParseHexKey 校验并规范化十六进制键（必须为 20 字节）
func ParseHexKey(s string) (string, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != HexKeySize {
		return "", fmt.Errorf("%w: expected %d bytes (%d hex characters), got %d",
			ErrInvalidKey, HexKeySize, HexKeySize*2, len(b))
	}
	return hex.EncodeToString(b), nil
}
