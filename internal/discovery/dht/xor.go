package dht

import (
	"bytes"
	"math/bits"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// XORDistance 计算两个 NodeID 的 XOR 距离（大端序）
func XORDistance(a, b types.NodeID) types.NodeID {
	var d types.NodeID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// CompareDistance 比较 a 和 b 到 target 的距离
// 返回：
//
//	-1 如果 dist(a, target) < dist(b, target)
//	 0 如果 dist(a, target) == dist(b, target)
//	 1 如果 dist(a, target) > dist(b, target)
func CompareDistance(a, b, target types.NodeID) int {
	da := XORDistance(a, target)
	db := XORDistance(b, target)
	return bytes.Compare(da[:], db[:])
}

// CommonPrefixLen 计算两个 NodeID 的公共前缀位数
func CommonPrefixLen(a, b types.NodeID) int {
	for i := range a {
		if x := a[i] ^ b[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return KeySize
}

// BucketIndex 计算 peer 相对 local 所在的桶索引
//
// 桶索引等于公共前缀长度；ID 相同时返回 -1。
func BucketIndex(local, peer types.NodeID) int {
	cpl := CommonPrefixLen(local, peer)
	if cpl >= KeySize {
		return -1
	}
	return cpl
}

// HammingDistance 返回两个 NodeID 之间不同的位数
func HammingDistance(a, b types.NodeID) int {
	n := 0
	for i := range a {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}
