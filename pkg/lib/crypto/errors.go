package crypto

import "errors"

// 密钥相关错误
var (
	// ErrBadKeyType 不支持的密钥类型
	ErrBadKeyType = errors.New("crypto: invalid or unsupported key type")

	// ErrNilPrivateKey 私钥为空
	ErrNilPrivateKey = errors.New("crypto: nil private key")

	// ErrNilPublicKey 公钥为空
	ErrNilPublicKey = errors.New("crypto: nil public key")

	// ErrInvalidKeySize 密钥大小无效
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidPublicKey 公钥无效
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")
)

// 序列化相关错误
var (
	// ErrUnmarshalFailed 反序列化失败
	ErrUnmarshalFailed = errors.New("crypto: unmarshal failed")
)

// 密钥文件相关错误
var (
	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("crypto: key not found")

	// ErrInvalidKeyFile 密钥文件格式无效
	ErrInvalidKeyFile = errors.New("crypto: invalid key file")

	// ErrWrongPassphrase 口令错误或文件被篡改
	ErrWrongPassphrase = errors.New("crypto: wrong passphrase")

	// ErrPassphraseRequired 加密密钥文件需要口令
	ErrPassphraseRequired = errors.New("crypto: passphrase required")
)
