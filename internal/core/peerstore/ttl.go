package peerstore

import (
	"math"
	"time"
)

// 地址按来源设置不同的保留时间
const (
	// BootstrapAddrTTL 配置中的引导节点地址，不过期
	BootstrapAddrTTL = time.Duration(math.MaxInt64 - 1)

	// ConnectedAddrTTL 实际拨通过的地址
	ConnectedAddrTTL = 30 * time.Minute

	// RoutingAddrTTL 从 FIND_NODE / 提供者响应中学到的地址
	RoutingAddrTTL = 10 * time.Minute

	// LANAddrTTL 局域网广播得到的地址，节点离开后应很快失效
	LANAddrTTL = 5 * time.Minute
)
