package types

import (
	"errors"
	"fmt"
	"net"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ErrInvalidAddr 无效的节点地址
var ErrInvalidAddr = errors.New("invalid peer address")

// p2pComponent 地址中携带 PeerID 的分隔段
//
// PeerID 不是 multihash 编码，因此不交给 go-multiaddr 解析，
// 而是在解析前从地址尾部剥离。
const p2pComponent = "/p2p/"

// AddrInfo 节点 ID 及其地址列表
type AddrInfo struct {
	ID    PeerID
	Addrs []ma.Multiaddr
}

// String 返回可读表示
func (ai AddrInfo) String() string {
	addrs := make([]string, len(ai.Addrs))
	for i, a := range ai.Addrs {
		addrs[i] = a.String()
	}
	return fmt.Sprintf("{%s: [%s]}", ai.ID.ShortString(), strings.Join(addrs, ", "))
}

// AddrStrings 返回地址的字符串形式
func (ai AddrInfo) AddrStrings() []string {
	out := make([]string, 0, len(ai.Addrs))
	for _, a := range ai.Addrs {
		out = append(out, a.String())
	}
	return out
}

// ParseAddrInfo 解析节点地址
//
// 支持的格式：
//   - /ip4/1.2.3.4/tcp/8000/p2p/<PeerID>
//   - /ip4/1.2.3.4/tcp/8000（PeerID 未知，由握手确定）
//   - 1.2.3.4:8000（host:port，便于命令行输入）
func ParseAddrInfo(s string) (AddrInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AddrInfo{}, ErrInvalidAddr
	}

	if !strings.HasPrefix(s, "/") {
		addr, err := FromHostPort(s)
		if err != nil {
			return AddrInfo{}, err
		}
		return AddrInfo{Addrs: []ma.Multiaddr{addr}}, nil
	}

	var id PeerID
	if i := strings.LastIndex(s, p2pComponent); i >= 0 {
		pid, err := ParsePeerID(s[i+len(p2pComponent):])
		if err != nil {
			return AddrInfo{}, fmt.Errorf("%w: %v", ErrInvalidAddr, err)
		}
		id = pid
		s = s[:i]
	}

	info := AddrInfo{ID: id}
	if s == "" {
		return info, nil
	}
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return AddrInfo{}, fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	info.Addrs = []ma.Multiaddr{addr}
	return info, nil
}

// FromHostPort 将 host:port 转换为 TCP multiaddr
func FromHostPort(hostport string) (ma.Multiaddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	addr, err := manet.FromNetAddr(tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	return addr, nil
}

// FormatAddr 返回带 /p2p/ 后缀的完整地址
func FormatAddr(addr ma.Multiaddr, id PeerID) string {
	if id.IsEmpty() {
		return addr.String()
	}
	return addr.String() + p2pComponent + id.String()
}
