package mdns

import (
	"net"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// tcpPort 返回第一个 TCP 监听端口，没有时返回 0
func tcpPort(addrs []ma.Multiaddr) int {
	for _, a := range addrs {
		v, err := a.ValueForProtocol(ma.P_TCP)
		if err != nil {
			continue
		}
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return 0
}

// lanAddrs 过滤出局域网可达的 TCP 地址
func lanAddrs(addrs []ma.Multiaddr) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if _, err := a.ValueForProtocol(ma.P_TCP); err != nil {
			continue
		}
		ip, err := manet.ToIP(a)
		if err != nil || !isLANIP(ip) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// isLANIP 是否为局域网可达地址（私网或链路本地），排除已知的隧道网段
func isLANIP(ip net.IP) bool {
	if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	if isNonRoutableIP(ip) {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// virtualInterfacePrefixes 虚拟网卡前缀（VPN、容器、虚拟机）
var virtualInterfacePrefixes = []string{
	"utun", "ipsec", "awdl", "llw",
	"docker", "br-", "veth", "virbr", "vboxnet", "vmnet",
	"tun", "tap", "tailscale", "wg",
}

func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	for _, p := range virtualInterfacePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// nonRoutableNets 跨机通常不可达的网段
var nonRoutableNets = mustParseCIDRs(
	"198.18.0.0/15", // 基准测试网段，常被代理软件占用
	"100.64.0.0/10", // CGNAT
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

func isNonRoutableIP(ip net.IP) bool {
	for _, n := range nonRoutableNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
