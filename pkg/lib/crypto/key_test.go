package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair_SignVerify(t *testing.T) {
	for _, kt := range []KeyType{KeyTypeEd25519, KeyTypeSecp256k1} {
		t.Run(kt.String(), func(t *testing.T) {
			priv, pub, err := GenerateKeyPair(kt)
			require.NoError(t, err)
			assert.Equal(t, kt, priv.Type())
			assert.True(t, pub.Equals(priv.GetPublic()))

			msg := []byte("core overlay")
			sig, err := priv.Sign(msg)
			require.NoError(t, err)

			ok, err := pub.Verify(msg, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = pub.Verify([]byte("tampered"), sig)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = pub.Verify(msg, []byte{1, 2, 3})
			require.NoError(t, err)
			assert.False(t, ok, "malformed signature must not verify")
		})
	}
}

func TestGenerateKeyPair_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 64)
	a, _, err := GenerateKeyPairWithReader(KeyTypeEd25519, bytes.NewReader(seed))
	require.NoError(t, err)
	b, _, err := GenerateKeyPairWithReader(KeyTypeEd25519, bytes.NewReader(seed))
	require.NoError(t, err)
	assert.True(t, a.Equals(b))

	_, _, err = GenerateKeyPair(KeyType(99))
	assert.ErrorIs(t, err, ErrBadKeyType)
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, kt := range []KeyType{KeyTypeEd25519, KeyTypeSecp256k1} {
		priv, pub, err := GenerateKeyPair(kt)
		require.NoError(t, err)

		pb, err := MarshalPublicKey(pub)
		require.NoError(t, err)
		assert.Equal(t, byte(kt), pb[0])
		pub2, err := UnmarshalPublicKeyBytes(pb)
		require.NoError(t, err)
		assert.True(t, pub.Equals(pub2))

		sb, err := MarshalPrivateKey(priv)
		require.NoError(t, err)
		priv2, err := UnmarshalPrivateKeyBytes(sb)
		require.NoError(t, err)
		assert.True(t, priv.Equals(priv2))
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := UnmarshalPublicKeyBytes([]byte{2, 0})
	assert.ErrorIs(t, err, ErrUnmarshalFailed)

	_, err = UnmarshalPublicKeyBytes([]byte{2, 0, 0, 0, 5, 1})
	assert.ErrorIs(t, err, ErrUnmarshalFailed)

	_, err = UnmarshalPublicKeyBytes([]byte{9, 0, 0, 0, 1, 1})
	assert.ErrorIs(t, err, ErrBadKeyType)

	_, err = UnmarshalEd25519PublicKey(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = MarshalPublicKey(nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)
}

func TestUnmarshalEd25519PrivateKey_FromSeed(t *testing.T) {
	priv, _, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	seed := priv.(*Ed25519PrivateKey).Seed()
	fromSeed, err := UnmarshalEd25519PrivateKey(seed)
	require.NoError(t, err)
	assert.True(t, priv.Equals(fromSeed))
}

func TestParseKeyType(t *testing.T) {
	kt, err := ParseKeyType("")
	require.NoError(t, err)
	assert.Equal(t, KeyTypeEd25519, kt)

	kt, err = ParseKeyType("secp256k1")
	require.NoError(t, err)
	assert.Equal(t, KeyTypeSecp256k1, kt)

	_, err = ParseKeyType("rsa")
	assert.ErrorIs(t, err, ErrBadKeyType)
}
