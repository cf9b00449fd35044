package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// 密钥文件格式：
//
//	┌──────────────────────────────────────────┐
//	│  Magic:     "COVL-KEY"  (8 bytes)         │
//	│  Version:   uint8                         │
//	│  Encrypted: uint8 (0=否, 1=是)             │
//	│  Data:      MarshalPrivateKey 或加密数据    │
//	└──────────────────────────────────────────┘
//
// 加密数据：Salt(16) | Nonce(12) | AES-256-GCM 密文
const (
	keyFileMagic   = "COVL-KEY"
	keyFileVersion = 1

	saltSize  = 16
	nonceSize = 12

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// SaveKeyFile 将私钥写入文件，passphrase 为空时不加密
func SaveKeyFile(path string, key PrivateKey, passphrase []byte) error {
	data, err := EncodeKeyFile(key, passphrase)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeyFile 从文件读取私钥
func LoadKeyFile(path string, passphrase []byte) (PrivateKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeKeyFile(data, passphrase)
}

// LoadOrCreateKeyFile 读取密钥文件，不存在时生成新密钥并保存
//
// 返回值 created 表示是否新生成。
func LoadOrCreateKeyFile(path string, keyType KeyType, passphrase []byte) (key PrivateKey, created bool, err error) {
	key, err = LoadKeyFile(path, passphrase)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, false, err
	}

	key, _, err = GenerateKeyPair(keyType)
	if err != nil {
		return nil, false, err
	}
	if err := SaveKeyFile(path, key, passphrase); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// EncodeKeyFile 编码密钥文件内容
func EncodeKeyFile(key PrivateKey, passphrase []byte) ([]byte, error) {
	payload, err := MarshalPrivateKey(key)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(keyFileMagic)
	buf.WriteByte(keyFileVersion)

	if len(passphrase) == 0 {
		buf.WriteByte(0)
		buf.Write(payload)
		return buf.Bytes(), nil
	}

	buf.WriteByte(1)
	sealed, err := seal(payload, passphrase)
	if err != nil {
		return nil, err
	}
	buf.Write(sealed)
	return buf.Bytes(), nil
}

// DecodeKeyFile 解码密钥文件内容
func DecodeKeyFile(data, passphrase []byte) (PrivateKey, error) {
	header := len(keyFileMagic) + 2
	if len(data) < header || string(data[:len(keyFileMagic)]) != keyFileMagic {
		return nil, ErrInvalidKeyFile
	}
	if data[len(keyFileMagic)] != keyFileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidKeyFile, data[len(keyFileMagic)])
	}

	encrypted := data[len(keyFileMagic)+1] == 1
	body := data[header:]
	if encrypted {
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		plain, err := open(body, passphrase)
		if err != nil {
			return nil, err
		}
		body = plain
	}
	return UnmarshalPrivateKeyBytes(body)
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func seal(plain, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	out := append(salt, nonce...)
	return gcm.Seal(out, nonce, plain, nil), nil
}

func open(sealed, passphrase []byte) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize {
		return nil, ErrInvalidKeyFile
	}
	salt, nonce, ct := sealed[:saltSize], sealed[saltSize:saltSize+nonceSize], sealed[saltSize+nonceSize:]
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
