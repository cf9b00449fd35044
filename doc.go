// Package coreoverlay 是 CoreOverlay 覆盖网络引擎的入口包
//
// Engine 组装身份、存储、Host、Ping、Kademlia DHT 与可选的 mDNS 发现，
// 并附带一个按需创建的 WASM 运行时。C 动态库 libcoreoverlay 通过
// internal/bridge 持有 Engine 句柄。
//
// 使用示例：
//
//	eng, err := coreoverlay.New(
//	    coreoverlay.WithListenAddrs("/ip4/0.0.0.0/tcp/0"),
//	    coreoverlay.WithBootstrapPeers("127.0.0.1:8000"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	_ = eng.Put(ctx, "key", []byte("value"))
package coreoverlay
