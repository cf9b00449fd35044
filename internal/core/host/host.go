// Package host 实现 P2P 主机
//
// Host 管理 TCP 监听、连接升级（Noise + yamux）、流协议协商
// 以及节点地址簿。每条入站流通过 multistream-select 选择协议后
// 交给对应的 StreamHandler。
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/coreoverlay/go-coreoverlay/internal/core/muxer"
	"github.com/coreoverlay/go-coreoverlay/internal/core/peerstore"
	"github.com/coreoverlay/go-coreoverlay/internal/core/security/noise"
	"github.com/coreoverlay/go-coreoverlay/internal/core/upgrader"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/log"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

var logger = log.Logger("core/host")

// Host P2P 主机
type Host struct {
	ctx    context.Context
	cancel context.CancelFunc

	id       types.PeerID
	privKey  crypto.PrivateKey
	config   Config
	upgrader *upgrader.Upgrader
	peers    *peerstore.Peerstore

	// multistream-select muxer 用于入站协议协商
	mux *mss.MultistreamMuxer[string]

	mu        sync.RWMutex
	listeners []manet.Listener
	conns     map[types.PeerID][]*upgrader.Conn
	notifiees []Notifiee

	closed atomic.Bool
	wg     sync.WaitGroup
}

// New 创建 Host，调用 Listen 之前不接受入站连接
func New(privKey crypto.PrivateKey, opts ...Option) (*Host, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	sec, err := noise.New(privKey)
	if err != nil {
		return nil, fmt.Errorf("create security transport: %w", err)
	}
	up, err := upgrader.New(sec, muxer.NewTransport())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		ctx:      ctx,
		cancel:   cancel,
		id:       sec.LocalPeer(),
		privKey:  privKey,
		config:   cfg,
		upgrader: up,
		peers:    peerstore.New(cfg.PeerstoreCapacity),
		mux:      mss.NewMultistreamMuxer[string](),
		conns:    make(map[types.PeerID][]*upgrader.Conn),
	}, nil
}

// ID 返回本地节点 ID
func (h *Host) ID() types.PeerID {
	return h.id
}

// PrivateKey 返回本地身份私钥
func (h *Host) PrivateKey() crypto.PrivateKey {
	return h.privKey
}

// Peerstore 返回地址簿
func (h *Host) Peerstore() *peerstore.Peerstore {
	return h.peers
}

// Listen 监听指定地址
func (h *Host) Listen(addrs ...string) error {
	if h.closed.Load() {
		return ErrHostClosed
	}

	for _, s := range addrs {
		laddr, err := ma.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("parse listen addr %q: %w", s, err)
		}
		l, err := manet.Listen(laddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s, err)
		}

		h.mu.Lock()
		h.listeners = append(h.listeners, l)
		h.mu.Unlock()

		logger.Info("开始监听", "addr", l.Multiaddr().String())

		h.wg.Add(1)
		go h.acceptLoop(l)
	}
	return nil
}

// ListenAddrs 返回实际监听地址（端口已解析）
func (h *Host) ListenAddrs() []ma.Multiaddr {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ma.Multiaddr, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

// Addrs 返回可拨号地址，未指定地址展开为各网卡地址
func (h *Host) Addrs() []ma.Multiaddr {
	listen := h.ListenAddrs()
	ifaceAddrs, err := manet.InterfaceMultiaddrs()
	if err != nil {
		return listen
	}
	resolved, err := manet.ResolveUnspecifiedAddresses(listen, ifaceAddrs)
	if err != nil {
		return listen
	}
	return resolved
}

// AddrInfo 返回本节点的 AddrInfo
func (h *Host) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: h.id, Addrs: h.Addrs()}
}

// Notify 注册连接事件订阅者
func (h *Host) Notify(n Notifiee) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifiees = append(h.notifiees, n)
}

// SetStreamHandler 为指定协议设置流处理器
func (h *Host) SetStreamHandler(proto types.ProtocolID, handler StreamHandler) {
	h.mux.AddHandler(string(proto), func(p string, rwc io.ReadWriteCloser) error {
		s, ok := rwc.(*stream)
		if !ok {
			return fmt.Errorf("unexpected stream type for protocol %s", p)
		}
		handler(s)
		return nil
	})
	logger.Debug("注册协议处理器", "protocol", string(proto))
}

// RemoveStreamHandler 移除指定协议的流处理器
func (h *Host) RemoveStreamHandler(proto types.ProtocolID) {
	h.mux.RemoveHandler(string(proto))
}

// Connect 连接到节点并返回其 PeerID
//
// ai.ID 为空时仅凭地址拨号，身份由握手确定。ai.Addrs 为空时
// 使用地址簿中的地址。已连接时直接返回。
func (h *Host) Connect(ctx context.Context, ai types.AddrInfo) (types.PeerID, error) {
	if h.closed.Load() {
		return "", ErrHostClosed
	}
	if ai.ID == h.id {
		return "", ErrDialSelf
	}
	if ai.ID != "" {
		if h.IsConnected(ai.ID) {
			return ai.ID, nil
		}
		h.peers.AddAddrs(ai.ID, ai.Addrs, peerstore.RoutingAddrTTL)
	}

	addrs := ai.Addrs
	if len(addrs) == 0 && ai.ID != "" {
		addrs = h.peers.Addrs(ai.ID)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoAddresses, ai.ID.ShortString())
	}

	var errs error
	for _, addr := range addrs {
		c, err := h.dialAddr(ctx, addr, ai.ID)
		if err == nil {
			remote := c.RemotePeer()
			if remote == h.id {
				c.Close()
				return "", ErrDialSelf
			}
			h.peers.AddAddrs(remote, []ma.Multiaddr{addr}, peerstore.ConnectedAddrTTL)
			if err := h.addConn(c); err != nil {
				return "", err
			}
			logger.Debug("连接节点成功", "peer", remote.ShortString(), "addr", addr.String())
			return remote, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			break
		}
	}
	logger.Debug("连接节点失败", "peer", ai.ID.ShortString(), "error", errs)
	return "", errs
}

func (h *Host) dialAddr(ctx context.Context, addr ma.Multiaddr, expect types.PeerID) (*upgrader.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, h.config.DialTimeout)
	defer cancel()

	var d manet.Dialer
	raw, err := d.DialContext(dctx, addr)
	if err != nil {
		return nil, err
	}
	return h.upgrader.Upgrade(dctx, raw, upgrader.DirOutbound, expect)
}

// NewStream 打开到节点的新流，按顺序协商 protos 中第一个远端支持的协议
func (h *Host) NewStream(ctx context.Context, peer types.PeerID, protos ...types.ProtocolID) (Stream, error) {
	if h.closed.Load() {
		return nil, ErrHostClosed
	}
	if len(protos) == 0 {
		return nil, fmt.Errorf("%w: no protocol given", ErrProtocolNotSupported)
	}

	c := h.connTo(peer)
	if c == nil {
		if _, err := h.Connect(ctx, types.AddrInfo{ID: peer}); err != nil {
			return nil, err
		}
		if c = h.connTo(peer); c == nil {
			return nil, fmt.Errorf("connection to %s lost", peer.ShortString())
		}
	}

	ms, err := c.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	deadline := time.Now().Add(h.config.NegotiateTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ms.SetDeadline(deadline)

	names := make([]string, len(protos))
	for i, p := range protos {
		names[i] = string(p)
	}
	selected, err := mss.SelectOneOf(names, ms)
	if err != nil {
		ms.Reset()
		if isNotSupported(err) {
			return nil, fmt.Errorf("%w: %v", ErrProtocolNotSupported, protos)
		}
		return nil, fmt.Errorf("protocol negotiation: %w", err)
	}
	_ = ms.SetDeadline(time.Time{})

	return &stream{MuxedStream: ms, proto: types.ProtocolID(selected), conn: c}, nil
}

func isNotSupported(err error) bool {
	var ns mss.ErrNotSupported[string]
	return errors.As(err, &ns)
}

// IsConnected 检查是否与节点存在连接
func (h *Host) IsConnected(peer types.PeerID) bool {
	return h.connTo(peer) != nil
}

// Peers 返回已连接节点
func (h *Host) Peers() []types.PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.PeerID, 0, len(h.conns))
	for p := range h.conns {
		out = append(out, p)
	}
	return out
}

// ClosePeer 关闭与节点的所有连接
func (h *Host) ClosePeer(peer types.PeerID) error {
	h.mu.RLock()
	conns := append([]*upgrader.Conn(nil), h.conns[peer]...)
	h.mu.RUnlock()

	var errs error
	for _, c := range conns {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

func (h *Host) connTo(peer types.PeerID) *upgrader.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns[peer] {
		if !c.IsClosed() {
			return c
		}
	}
	return nil
}

func (h *Host) acceptLoop(l manet.Listener) {
	defer h.wg.Done()

	for {
		raw, err := l.Accept()
		if err != nil {
			if h.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("接受连接失败", "error", err)
			continue
		}

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleInbound(raw)
		}()
	}
}

func (h *Host) handleInbound(raw net.Conn) {
	ctx, cancel := context.WithTimeout(h.ctx, h.config.HandshakeTimeout)
	defer cancel()

	c, err := h.upgrader.Upgrade(ctx, raw, upgrader.DirInbound, "")
	if err != nil {
		logger.Debug("入站连接升级失败", "remoteAddr", raw.RemoteAddr().String(), "error", err)
		return
	}
	if err := h.addConn(c); err != nil {
		logger.Debug("拒绝入站连接", "peer", c.RemotePeer().ShortString(), "error", err)
	}
}

// addConn 登记连接并启动流接收循环，失败时关闭连接
func (h *Host) addConn(c *upgrader.Conn) error {
	remote := c.RemotePeer()

	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		c.Close()
		return ErrHostClosed
	}
	existing := h.conns[remote]
	if len(existing) == 0 && h.config.MaxPeers > 0 && len(h.conns) >= h.config.MaxPeers {
		h.mu.Unlock()
		c.Close()
		return ErrTooManyPeers
	}
	h.conns[remote] = append(existing, c)
	first := len(existing) == 0
	notifiees := append([]Notifiee(nil), h.notifiees...)
	h.mu.Unlock()

	if pub := c.RemotePublicKey(); pub != nil {
		_ = h.peers.AddPubKey(remote, pub)
	}

	h.wg.Add(1)
	go h.streamLoop(c)

	if first {
		for _, n := range notifiees {
			n.Connected(remote)
		}
	}
	return nil
}

func (h *Host) removeConn(c *upgrader.Conn) {
	remote := c.RemotePeer()

	h.mu.Lock()
	conns := h.conns[remote]
	for i, cc := range conns {
		if cc == c {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	last := len(conns) == 0
	if last {
		delete(h.conns, remote)
	} else {
		h.conns[remote] = conns
	}
	notifiees := append([]Notifiee(nil), h.notifiees...)
	h.mu.Unlock()

	if last {
		logger.Debug("节点已断开", "peer", remote.ShortString())
		for _, n := range notifiees {
			n.Disconnected(remote)
		}
	}
}

func (h *Host) streamLoop(c *upgrader.Conn) {
	defer h.wg.Done()
	defer h.removeConn(c)

	for {
		ms, err := c.AcceptStream()
		if err != nil {
			c.Close()
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleStream(c, ms)
		}()
	}
}

func (h *Host) handleStream(c *upgrader.Conn, ms muxer.MuxedStream) {
	_ = ms.SetReadDeadline(time.Now().Add(h.config.NegotiateTimeout))
	proto, handler, err := h.mux.Negotiate(ms)
	if err != nil {
		logger.Debug("入站流协议协商失败", "peer", c.RemotePeer().ShortString(), "error", err)
		ms.Reset()
		return
	}
	_ = ms.SetReadDeadline(time.Time{})

	s := &stream{MuxedStream: ms, proto: types.ProtocolID(proto), conn: c}
	if handler == nil {
		s.Reset()
		return
	}
	if err := handler(proto, s); err != nil {
		logger.Debug("流处理失败", "protocol", proto, "error", err)
		s.Reset()
	}
}

// Close 关闭所有监听器与连接
func (h *Host) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.cancel()

	h.mu.Lock()
	listeners := h.listeners
	h.listeners = nil
	var conns []*upgrader.Conn
	for _, cs := range h.conns {
		conns = append(conns, cs...)
	}
	h.mu.Unlock()

	var errs error
	for _, l := range listeners {
		errs = multierr.Append(errs, l.Close())
	}
	for _, c := range conns {
		if err := c.Close(); err != nil && !errors.Is(err, muxer.ErrConnClosed) {
			errs = multierr.Append(errs, err)
		}
	}
	h.wg.Wait()

	logger.Info("Host 已关闭", "peer", h.id.ShortString())
	return errs
}
