package dht

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_ArgumentErrors(t *testing.T) {
	d := newTestDHT(t)
	ctx := context.Background()

	tests := []struct {
		line string
		err  error
	}{
		{"GET", ErrExpectedKey},
		{"GET ", ErrExpectedKey},
		{"GET_PROVIDERS", ErrExpectedKey},
		{"PUT", ErrExpectedKey},
		{"PUT key", ErrExpectedValue},
		{"PUT  value", ErrExpectedKey},
		{"PUT_PROVIDER", ErrExpectedKey},
		{"DELETE key", ErrUnknownCommand},
		{"", ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := d.Exec(ctx, tt.line)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestExec_Commands(t *testing.T) {
	nodes := newTestNetwork(t, 3)
	ctx := testContext(t)

	out, err := nodes[1].Exec(ctx, "PUT fruit apple\n")
	require.NoError(t, err)
	assert.Equal(t, `Successfully put record "fruit"`, out)

	out, err = nodes[2].Exec(ctx, "GET fruit")
	require.NoError(t, err)
	assert.Equal(t, `Got record "fruit" "apple"`, out)

	out, err = nodes[1].Exec(ctx, "PUT_PROVIDER fruit")
	require.NoError(t, err)
	assert.Equal(t, `Successfully put provider record "fruit"`, out)

	out, err = nodes[2].Exec(ctx, "GET_PROVIDERS fruit")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(`Peer %s provides key "fruit"`, nodes[1].Host().ID()), out)
}

func TestExec_GetMissing(t *testing.T) {
	d := newTestDHT(t)
	_, err := d.Exec(context.Background(), "GET nothing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestExec_PutEmptyValueDeletes(t *testing.T) {
	d := newTestDHT(t)
	ctx := context.Background()

	_, err := d.Exec(ctx, "PUT fruit apple")
	require.NoError(t, err)
	out, err := d.Exec(ctx, "GET fruit")
	require.NoError(t, err)
	assert.Equal(t, `Got record "fruit" "apple"`, out)

	out, err = d.Exec(ctx, "PUT fruit ")
	require.NoError(t, err)
	assert.Equal(t, `Successfully put record "fruit"`, out)

	_, err = d.Exec(ctx, "GET fruit")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
