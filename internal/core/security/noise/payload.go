package noise

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// 握手 payload 的 protobuf 字段号
//
//	message NoiseHandshakePayload {
//	  bytes identity_key = 1;
//	  bytes identity_sig = 2;
//	}
const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
)

// handshakePayload Noise 握手中携带的身份信息
type handshakePayload struct {
	IdentityKey []byte
	IdentitySig []byte
}

func (p *handshakePayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentityKey)
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentitySig)
	return b
}

// Unmarshal 解析 payload，忽略未知字段
func (p *handshakePayload) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("payload tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.BytesType && (num == fieldIdentityKey || num == fieldIdentitySig) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("payload field %d: %w", num, protowire.ParseError(n))
			}
			if num == fieldIdentityKey {
				p.IdentityKey = append([]byte(nil), v...)
			} else {
				p.IdentitySig = append([]byte(nil), v...)
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("payload field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	if len(p.IdentityKey) == 0 || len(p.IdentitySig) == 0 {
		return fmt.Errorf("%w: missing identity", ErrInvalidHandshake)
	}
	return nil
}
