package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

func TestGenerate(t *testing.T) {
	for _, kt := range []crypto.KeyType{crypto.KeyTypeEd25519, crypto.KeyTypeSecp256k1} {
		id, err := Generate(kt)
		require.NoError(t, err)
		assert.NoError(t, id.PeerID().Validate())
		assert.Equal(t, kt, id.PrivateKey().Type())

		ok, err := crypto.VerifyPeerID(id.PublicKey(), id.PeerID())
		require.NoError(t, err)
		assert.True(t, ok)

		nid, err := id.PeerID().NodeID()
		require.NoError(t, err)
		assert.Equal(t, nid, id.NodeID())
	}
}

func TestNew_NilKey(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilPrivateKey)
}

func TestFromConfig_KeyFilePersists(t *testing.T) {
	cfg := config.DefaultIdentityConfig()
	cfg.KeyFile = filepath.Join(t.TempDir(), "node.key")

	first, err := FromConfig(cfg)
	require.NoError(t, err)
	second, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.PeerID(), second.PeerID())
}

func TestFromConfig_Ephemeral(t *testing.T) {
	a, err := FromConfig(config.DefaultIdentityConfig())
	require.NoError(t, err)
	b, err := FromConfig(config.DefaultIdentityConfig())
	require.NoError(t, err)
	assert.NotEqual(t, a.PeerID(), b.PeerID())
}

func TestSign(t *testing.T) {
	id, err := Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	sig, err := id.Sign([]byte("data"))
	require.NoError(t, err)
	ok, err := id.PublicKey().Verify([]byte("data"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := id.MarshalPublicKey()
	require.NoError(t, err)
	pub, err := crypto.UnmarshalPublicKeyBytes(raw)
	require.NoError(t, err)
	assert.True(t, pub.Equals(id.PublicKey()))
}

func TestModule_UserKey(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	var id *Identity
	var key crypto.PrivateKey
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Provide(fx.Annotate(func() crypto.PrivateKey { return priv }, fx.ResultTags(`name:"user_key"`))),
		Module(),
		fx.Populate(&id, &key),
	)
	app.RequireStart().RequireStop()

	assert.True(t, crypto.KeyEqual(priv, id.PrivateKey()))
	assert.True(t, crypto.KeyEqual(priv, key))
}

func TestModule_Default(t *testing.T) {
	var id *Identity
	app := fxtest.New(t, fx.NopLogger, Module(), fx.Populate(&id))
	app.RequireStart().RequireStop()
	require.NotNil(t, id)
	assert.NoError(t, id.PeerID().Validate())
}
