// Package lib 包含与具体组件无关的基础库
//
//   - crypto: 密钥生成与序列化、签名、PeerID 派生、加密密钥文件
//   - log: 基于 log/slog 的分组件日志
//
// 这些包可以被外部程序直接引用，不依赖 internal/ 下的任何组件。
package lib
