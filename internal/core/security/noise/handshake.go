// Package noise 在 TCP 连接上做 Noise_XX_25519_ChaChaPoly_SHA256 握手
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// payload 携带序列化的身份公钥，以及身份私钥对
// "noise-libp2p-static-key:" + noise 静态公钥 的签名，两端据此把
// noise 会话绑定到对方的 PeerID。
package noise

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"

	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

const payloadSigPrefix = "noise-libp2p-static-key:"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// xxMessages XX 模式共三条消息，发起方写第 0、2 条
const xxMessages = 3

// handshake 一次握手的状态，run 结束后 send/recv 可用于加密传输
type handshake struct {
	conn      net.Conn
	state     *noise.HandshakeState
	initiator bool
	payload   []byte

	remotePayload []byte
	send, recv    *noise.CipherState
}

// performHandshake remotePeer 为空时接受任意签名有效的对端
func performHandshake(conn net.Conn, privKey crypto.PrivateKey, localPeer, remotePeer types.PeerID, isInitiator bool) (*Conn, error) {
	static, err := staticKeypairFor(privKey)
	if err != nil {
		return nil, err
	}
	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     isInitiator,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("noise state: %w", err)
	}
	payload, err := signedPayload(privKey, static.Public)
	if err != nil {
		return nil, err
	}

	hs := &handshake{conn: conn, state: state, initiator: isInitiator, payload: payload}
	if err := hs.run(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}

	remoteStatic := state.PeerStatic()
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("%w: remote static key length %d", ErrInvalidHandshake, len(remoteStatic))
	}
	remotePub, actual, err := verifyPayload(hs.remotePayload, remoteStatic)
	if err != nil {
		return nil, err
	}
	if remotePeer != "" && actual != remotePeer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, remotePeer, actual)
	}

	return &Conn{
		Conn:       conn,
		sendCS:     hs.send,
		recvCS:     hs.recv,
		localPeer:  localPeer,
		remotePeer: actual,
		remotePub:  remotePub,
	}, nil
}

// run 按消息序号交替读写。第 0 条消息不带 payload，响应方在第 1 条、
// 发起方在第 2 条带上各自的身份 payload
func (hs *handshake) run() error {
	for i := 0; i < xxMessages; i++ {
		var cs1, cs2 *noise.CipherState
		writing := (i%2 == 0) == hs.initiator
		if writing {
			var out []byte
			if i > 0 {
				out = hs.payload
			}
			msg, c1, c2, err := hs.state.WriteMessage(nil, out)
			if err != nil {
				return fmt.Errorf("write message %d: %w", i+1, err)
			}
			if err := writeFrame(hs.conn, msg); err != nil {
				return fmt.Errorf("send message %d: %w", i+1, err)
			}
			cs1, cs2 = c1, c2
		} else {
			msg, err := readFrame(hs.conn)
			if err != nil {
				return fmt.Errorf("receive message %d: %w", i+1, err)
			}
			in, c1, c2, err := hs.state.ReadMessage(nil, msg)
			if err != nil {
				return fmt.Errorf("read message %d: %w", i+1, err)
			}
			if i > 0 {
				hs.remotePayload = in
			}
			cs1, cs2 = c1, c2
		}
		// cs1 是发起方的发送方向
		if cs1 != nil {
			if hs.initiator {
				hs.send, hs.recv = cs1, cs2
			} else {
				hs.send, hs.recv = cs2, cs1
			}
		}
	}
	return nil
}

// staticKeypairFor Ed25519 身份直接换算成 X25519 密钥；其它类型每次握手
// 生成随机静态密钥，身份绑定只靠 payload 签名
func staticKeypairFor(privKey crypto.PrivateKey) (noise.DHKey, error) {
	ek, ok := privKey.(*crypto.Ed25519PrivateKey)
	if !ok {
		return noise.DH25519.GenerateKeypair(rand.Reader)
	}
	raw, err := ek.GetPublic().Raw()
	if err != nil {
		return noise.DHKey{}, err
	}
	pub, err := montgomeryPublic(raw)
	if err != nil {
		return noise.DHKey{}, err
	}
	return noise.DHKey{Private: montgomeryPrivate(ek.Seed()), Public: pub}, nil
}

func signedPayload(privKey crypto.PrivateKey, staticPub []byte) ([]byte, error) {
	identity, err := crypto.MarshalPublicKey(privKey.GetPublic())
	if err != nil {
		return nil, fmt.Errorf("marshal identity key: %w", err)
	}
	sig, err := privKey.Sign(append([]byte(payloadSigPrefix), staticPub...))
	if err != nil {
		return nil, fmt.Errorf("sign static key: %w", err)
	}
	return (&handshakePayload{IdentityKey: identity, IdentitySig: sig}).Marshal(), nil
}

// verifyPayload 检查对端身份公钥确实签过它的 noise 静态公钥
func verifyPayload(raw, remoteStatic []byte) (crypto.PublicKey, types.PeerID, error) {
	var p handshakePayload
	if err := p.Unmarshal(raw); err != nil {
		return nil, "", err
	}
	pub, err := crypto.UnmarshalPublicKeyBytes(p.IdentityKey)
	if err != nil {
		return nil, "", fmt.Errorf("remote identity key: %w", err)
	}
	ok, err := pub.Verify(append([]byte(payloadSigPrefix), remoteStatic...), p.IdentitySig)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrInvalidSignature
	}
	id, err := crypto.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, "", err
	}
	return pub, id, nil
}

// montgomeryPrivate RFC 7748 clamping 后的 SHA512(seed)[:32]
func montgomeryPrivate(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// montgomeryPublic Edwards y 坐标换算为 Montgomery u = (1+y)/(1-y)
func montgomeryPublic(edPub []byte) ([]byte, error) {
	if len(edPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key length %d", len(edPub))
	}
	p, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("ed25519 point: %w", err)
	}
	return p.BytesMontgomery(), nil
}

// 握手与传输阶段都使用 2 字节大端长度前缀的帧
func writeFrame(w io.Writer, data []byte) error {
	frame := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(data)), uint16(len(data)))
	_, err := w.Write(append(frame, data...))
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	_, err := io.ReadFull(r, data)
	return data, err
}
