package noise

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// maxPlaintextSize 一帧最多 65535 字节密文，扣掉 16 字节 AEAD tag
const maxPlaintextSize = 65535 - 16

// Conn 握手完成后的加密连接，Read 与 Write 可以并发调用
type Conn struct {
	net.Conn

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	localPeer  types.PeerID
	remotePeer types.PeerID
	remotePub  crypto.PublicKey

	readMu  sync.Mutex
	pending []byte // 上一帧中调用方尚未读走的明文

	writeMu sync.Mutex
}

func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.pending) == 0 {
		frame, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		if frame == nil {
			return 0, io.EOF
		}
		plain, err := c.recvCS.Decrypt(frame[:0], nil, frame)
		if err != nil {
			return 0, fmt.Errorf("noise decrypt: %w", err)
		}
		c.pending = plain
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write 超过 maxPlaintextSize 的数据拆成多帧
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sent := 0
	for sent < len(p) {
		chunk := p[sent:min(sent+maxPlaintextSize, len(p))]
		sealed, err := c.sendCS.Encrypt(nil, nil, chunk)
		if err != nil {
			return sent, fmt.Errorf("noise encrypt: %w", err)
		}
		if err := writeFrame(c.Conn, sealed); err != nil {
			return sent, err
		}
		sent += len(chunk)
	}
	return sent, nil
}

func (c *Conn) LocalPeer() types.PeerID  { return c.localPeer }
func (c *Conn) RemotePeer() types.PeerID { return c.remotePeer }

// RemotePublicKey 握手时验证过签名的对端身份公钥
func (c *Conn) RemotePublicKey() crypto.PublicKey { return c.remotePub }
