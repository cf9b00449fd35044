package bridge

import (
	"context"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/ping"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// BootstrapPeersEnv 覆盖 overlay_ping 目标的环境变量（逗号分隔）
const BootstrapPeersEnv = "COREOVERLAY_BOOTSTRAP_PEERS"

// DefaultBootstrapPeer 默认引导节点
const DefaultBootstrapPeer = "127.0.0.1:8000"

// BootstrapPeers 返回 overlay_ping 使用的引导节点
func BootstrapPeers() []string {
	v := strings.TrimSpace(os.Getenv(BootstrapPeersEnv))
	if v == "" {
		return []string{DefaultBootstrapPeer}
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PingResult 单个引导节点的 Ping 结果
type PingResult struct {
	Addr   string
	PeerID types.PeerID
	RTT    int64 // 微秒
	Err    error
}

// OverlayPing 在 listenOn 上打开临时 Host，依次 Ping 引导节点后关闭
//
// 单个节点失败只记录日志；全部失败时返回合并后的错误。
func OverlayPing(listenOn string, peers ...string) ([]PingResult, error) {
	logger.Info("OVERLAY_PING: " + listenOn)
	if listenOn == "" {
		listenOn = config.DefaultListenAddr
	}
	if len(peers) == 0 {
		peers = BootstrapPeers()
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	if err != nil {
		return nil, record(err)
	}
	h, err := host.New(priv)
	if err != nil {
		return nil, record(err)
	}
	defer h.Close()
	if err := h.Listen(listenOn); err != nil {
		return nil, record(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()

	results := make([]PingResult, 0, len(peers))
	var errs error
	for _, addr := range peers {
		res := pingPeer(ctx, h, addr)
		if res.Err != nil {
			logger.Warn("OVERLAY_PING 失败", "addr", addr, "error", res.Err)
			errs = multierr.Append(errs, res.Err)
		} else {
			logger.Info("OVERLAY_PING 成功", "addr", addr, "peer", res.PeerID.ShortString(), "rtt_us", res.RTT)
		}
		results = append(results, res)
	}
	if len(multierr.Errors(errs)) == len(peers) && errs != nil {
		return results, record(errs)
	}
	return results, nil
}

func pingPeer(ctx context.Context, h *host.Host, addr string) PingResult {
	res := PingResult{Addr: addr}
	info, err := types.ParseAddrInfo(addr)
	if err != nil {
		res.Err = err
		return res
	}
	id, err := h.Connect(ctx, info)
	if err != nil {
		res.Err = err
		return res
	}
	res.PeerID = id
	rtt, err := ping.Ping(ctx, h, id)
	if err != nil {
		res.Err = err
		return res
	}
	res.RTT = rtt.Microseconds()
	return res
}
