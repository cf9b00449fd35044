package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

func nodeID(b ...byte) types.NodeID {
	var id types.NodeID
	copy(id[:], b)
	return id
}

func TestXORDistance(t *testing.T) {
	a := types.KeyToNodeID("alice")
	b := types.KeyToNodeID("bob")

	assert.Equal(t, types.EmptyNodeID, XORDistance(a, a))
	assert.Equal(t, XORDistance(a, b), XORDistance(b, a))
	assert.NotEqual(t, types.EmptyNodeID, XORDistance(a, b))
}

func TestCompareDistance(t *testing.T) {
	target := nodeID(0x00)
	near := nodeID(0x01)
	far := nodeID(0x80)

	assert.Equal(t, -1, CompareDistance(near, far, target))
	assert.Equal(t, 1, CompareDistance(far, near, target))
	assert.Equal(t, 0, CompareDistance(near, near, target))
}

func TestCommonPrefixLen(t *testing.T) {
	tests := []struct {
		name string
		a, b types.NodeID
		want int
	}{
		{"相同", nodeID(0xAB), nodeID(0xAB), KeySize},
		{"首位不同", nodeID(0x00), nodeID(0x80), 0},
		{"第 8 位不同", nodeID(0xFF, 0x00), nodeID(0xFF, 0x80), 8},
		{"第 15 位不同", nodeID(0xFF, 0x00), nodeID(0xFF, 0x01), 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommonPrefixLen(tt.a, tt.b))
		})
	}
}

func TestBucketIndex(t *testing.T) {
	local := nodeID(0x00)
	assert.Equal(t, -1, BucketIndex(local, local))
	assert.Equal(t, 0, BucketIndex(local, nodeID(0x80)))
	assert.Equal(t, 7, BucketIndex(local, nodeID(0x01)))
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(nodeID(0x0F), nodeID(0x0F)))
	assert.Equal(t, 4, HammingDistance(nodeID(0x0F), nodeID(0x00)))
	assert.Equal(t, 9, HammingDistance(nodeID(0xFF, 0x01), nodeID(0x00, 0x00)))
}
