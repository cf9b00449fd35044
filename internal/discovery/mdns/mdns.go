// Package mdns 提供基于 mDNS 的局域网节点发现
//
// 每个节点以 <实例名>.<服务标签>.<域名> 注册服务，TXT 记录携带 PeerID 与
// 可拨号地址；同时周期性查询同一服务标签，把新发现的节点交给回调处理
// （通常是连接并加入 DHT 路由表）。
package mdns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("discovery/mdns")

// PeerHandler 新节点发现回调
type PeerHandler func(types.AddrInfo)

// peerEntry 已发现节点
type peerEntry struct {
	info     types.AddrInfo
	lastSeen time.Time
}

// MDNS mDNS 发现服务
type MDNS struct {
	host   *host.Host
	config *Config

	server *mdns.Server

	peersMu sync.RWMutex
	peers   map[types.PeerID]peerEntry

	handlerMu sync.RWMutex
	handler   PeerHandler

	mu      sync.Mutex
	running bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// query 执行一次查询，测试中替换
	query func(*mdns.QueryParam) error
}

// New 创建 mDNS 服务
func New(h *host.Host, cfg *Config) (*MDNS, error) {
	if h == nil {
		return nil, ErrNilHost
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Enabled {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &MDNS{
		host:   h,
		config: cfg,
		peers:  make(map[types.PeerID]peerEntry),
		query:  mdns.Query,
	}, nil
}

// SetPeerHandler 设置新节点回调
func (m *MDNS) SetPeerHandler(h PeerHandler) {
	m.handlerMu.Lock()
	m.handler = h
	m.handlerMu.Unlock()
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 注册 mDNS 服务并启动查询循环
//
// 注册失败时仍以客户端模式运行。
func (m *MDNS) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	if m.running {
		return ErrAlreadyStarted
	}
	if !m.config.Enabled {
		logger.Debug("mDNS 未启用")
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	serverMode := true
	if err := m.startServer(); err != nil {
		serverMode = false
		logger.Warn("mDNS 服务注册失败，仅作为客户端运行", "error", err)
	}

	m.wg.Add(1)
	go m.queryLoop()

	m.running = true
	logger.Info("mDNS 发现已启动",
		"service", m.config.ServiceTag,
		"serverMode", serverMode)
	return nil
}

// Close 停止服务
func (m *MDNS) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	wasRunning := m.running
	m.running = false
	if m.cancel != nil {
		m.cancel()
	}
	server := m.server
	m.server = nil
	m.mu.Unlock()

	if server != nil {
		_ = server.Shutdown()
	}
	m.wg.Wait()
	if wasRunning {
		logger.Info("mDNS 发现已停止")
	}
	return nil
}

// IsRunning 是否运行中
func (m *MDNS) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ============================================================================
//                              服务注册
// ============================================================================

// instanceName 服务实例名
func (m *MDNS) instanceName() string {
	return "coreoverlay-" + m.host.ID().ShortString()
}

func (m *MDNS) startServer() error {
	port := tcpPort(m.host.ListenAddrs())
	if port == 0 {
		return ErrPortUnknown
	}
	ips, err := m.localIPs()
	if err != nil {
		return advertiseFailed("list interfaces", err)
	}
	if len(ips) == 0 {
		return ErrNoLocalIPs
	}

	txt := buildTXTRecords(m.host.ID(), lanAddrs(m.host.Addrs()))
	service, err := mdns.NewMDNSService(m.instanceName(), m.config.ServiceTag, m.config.Domain, "", port, ips, txt)
	if err != nil {
		return advertiseFailed("create service", err)
	}

	cfg := &mdns.Config{Zone: service}
	if iface := m.iface(); iface != nil {
		cfg.Iface = iface
	}
	server, err := mdns.NewServer(cfg)
	if err != nil {
		return advertiseFailed("create server", err)
	}
	m.server = server

	logger.Debug("mDNS 服务已注册",
		"instance", m.instanceName(),
		"port", port,
		"txt", txt)
	return nil
}

func (m *MDNS) iface() *net.Interface {
	if m.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(m.config.Interface)
	if err != nil {
		logger.Warn("找不到指定接口", "interface", m.config.Interface, "error", err)
		return nil
	}
	return iface
}

// localIPs 返回可广播的局域网地址，跳过回环、未启用和虚拟网卡
func (m *MDNS) localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if m.config.Interface != "" && iface.Name != m.config.Interface {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || !isLANIP(ipNet.IP) {
				continue
			}
			if ipNet.IP.To4() == nil && m.config.DisableIPv6 {
				continue
			}
			ips = append(ips, ipNet.IP)
		}
	}
	return ips, nil
}

// ============================================================================
//                              查询
// ============================================================================

func (m *MDNS) queryLoop() {
	defer m.wg.Done()

	m.runQuery()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runQuery()
			m.cleanup()
		}
	}
}

// runQuery 执行一次查询并处理结果
func (m *MDNS) runQuery() {
	entries := make(chan *mdns.ServiceEntry, 16)
	params := &mdns.QueryParam{
		Service:             m.config.ServiceTag,
		Domain:              strings.TrimSuffix(m.config.Domain, "."),
		Timeout:             m.config.QueryTimeout,
		Interface:           m.iface(),
		Entries:             entries,
		WantUnicastResponse: true,
		DisableIPv6:         m.config.DisableIPv6,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			m.handleEntry(entry)
		}
	}()

	if err := m.query(params); err != nil {
		logger.Debug("mDNS 查询失败", "error", err)
	}
	close(entries)
	<-done
}

// handleEntry 处理一条服务条目
func (m *MDNS) handleEntry(entry *mdns.ServiceEntry) {
	info, ok := parseEntry(entry)
	if !ok || info.ID == m.host.ID() {
		return
	}

	m.peersMu.Lock()
	_, exists := m.peers[info.ID]
	m.peers[info.ID] = peerEntry{info: info, lastSeen: time.Now()}
	m.peersMu.Unlock()

	if exists {
		return
	}
	logger.Debug("mDNS 发现节点", "peer", info.ID.ShortString(), "addrs", info.AddrStrings())

	m.handlerMu.RLock()
	handler := m.handler
	m.handlerMu.RUnlock()
	if handler != nil {
		handler(info)
	}
}

// cleanup 移除长时间未再出现的节点
func (m *MDNS) cleanup() {
	cutoff := time.Now().Add(-m.config.PeerTTL)

	m.peersMu.Lock()
	defer m.peersMu.Unlock()
	for id, e := range m.peers {
		if e.lastSeen.Before(cutoff) {
			delete(m.peers, id)
		}
	}
}

// Peers 返回已发现的节点
func (m *MDNS) Peers() []types.AddrInfo {
	m.peersMu.RLock()
	defer m.peersMu.RUnlock()

	out := make([]types.AddrInfo, 0, len(m.peers))
	for _, e := range m.peers {
		out = append(out, e.info)
	}
	return out
}

// ============================================================================
//                              TXT 记录
// ============================================================================

const (
	txtID    = "id="
	txtAddrs = "addrs="

	// maxTXTLen 单条 TXT 记录的最大长度
	maxTXTLen = 255
)

// buildTXTRecords 构建 TXT 记录
//
// 始终包含 "id=<PeerID>"；地址拆分到多条 "addrs=" 中，每条不超过 255 字节。
func buildTXTRecords(id types.PeerID, addrs []ma.Multiaddr) []string {
	txt := []string{txtID + id.String()}

	cur := txtAddrs
	for _, a := range addrs {
		s := a.String()
		if len(txtAddrs)+len(s) > maxTXTLen {
			continue
		}
		next := s
		if cur != txtAddrs {
			next = "," + s
		}
		if len(cur)+len(next) > maxTXTLen {
			txt = append(txt, cur)
			cur, next = txtAddrs, s
		}
		cur += next
	}
	if cur != txtAddrs {
		txt = append(txt, cur)
	}
	return txt
}

// parseEntry 从服务条目解析节点信息
//
// TXT 中没有地址时回退到 A/AAAA 记录加服务端口。
func parseEntry(entry *mdns.ServiceEntry) (types.AddrInfo, bool) {
	if entry == nil {
		return types.AddrInfo{}, false
	}

	var info types.AddrInfo
	seen := make(map[string]struct{})
	for _, field := range entry.InfoFields {
		switch {
		case strings.HasPrefix(field, txtID):
			id := types.PeerID(strings.TrimPrefix(field, txtID))
			if id.Validate() != nil {
				return types.AddrInfo{}, false
			}
			info.ID = id
		case strings.HasPrefix(field, txtAddrs):
			for _, s := range strings.Split(strings.TrimPrefix(field, txtAddrs), ",") {
				if _, dup := seen[s]; dup || s == "" {
					continue
				}
				seen[s] = struct{}{}
				if a, err := ma.NewMultiaddr(s); err == nil {
					info.Addrs = append(info.Addrs, a)
				}
			}
		}
	}
	if info.ID.IsEmpty() {
		return types.AddrInfo{}, false
	}

	if len(info.Addrs) == 0 && entry.Port > 0 {
		port := strconv.Itoa(entry.Port)
		if entry.AddrV4 != nil && isLANIP(entry.AddrV4) {
			if a, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%s", entry.AddrV4, port)); err == nil {
				info.Addrs = append(info.Addrs, a)
			}
		}
		if entry.AddrV6 != nil && isLANIP(entry.AddrV6) {
			if a, err := ma.NewMultiaddr(fmt.Sprintf("/ip6/%s/tcp/%s", entry.AddrV6, port)); err == nil {
				info.Addrs = append(info.Addrs, a)
			}
		}
	}
	if len(info.Addrs) == 0 {
		return types.AddrInfo{}, false
	}
	return info, true
}
