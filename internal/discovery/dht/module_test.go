package dht

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/internal/core/host"
	"github.com/coreoverlay/go-coreoverlay/internal/core/storage"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

func TestModule_Lifecycle(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Storage.InMemory = true
	cfg.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Metrics.Enable = true
	reg := prometheus.NewRegistry()

	var d *DHT
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(func() crypto.PrivateKey { return priv }),
		fx.Provide(func() prometheus.Registerer { return reg }),
		storage.Module(),
		host.Module(),
		Module(),
		fx.Populate(&d),
	)
	app.RequireStart()

	require.NotNil(t, d)
	assert.True(t, d.Values().Persistent())
	require.NoError(t, d.Values().Put("k", []byte("v"), time.Hour, true))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	app.RequireStop()
	assert.ErrorIs(t, d.Bootstrap(context.Background()), ErrDHTClosed)
}

func TestNewFromParams_ConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Discovery.DHT.BucketSize = 8
	cfg.Discovery.DHT.RateLimit = 0

	res, err := NewFromParams(Params{Host: newTestHost(t), UnifiedCfg: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { res.DHT.Close() })

	assert.Equal(t, 8, res.DHT.config.BucketSize)
	assert.Nil(t, res.DHT.limiter)
	assert.False(t, res.DHT.Values().Persistent())
}
