package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		BlockSize:        16,
		MaxBlocks:        8,
		NumLayers:        2,
		NumHeads:         4,
		HeadDim:          64,
		DTypeBytes:       2,
		MaxBatchSize:     4,
		MaxTokensPerStep: 64,
	}
}

// TestBlockAllocator_AllocateFree verifies the round-trip property:
// allocate(n) followed by free_blocks(ids) restores the allocator to
// its prior state.
func TestBlockAllocator_AllocateFree(t *testing.T) {
	// GIVEN a fresh pool of 8 blocks
	a := NewBlockAllocator(testConfig())
	require.Equal(t, 8, a.FreeCount())
	require.Equal(t, 0, a.AllocatedCount())

	// WHEN 3 blocks are allocated
	ids, ok := a.Allocate(3)
	require.True(t, ok)
	assert.Len(t, ids, 3)
	assert.Equal(t, 5, a.FreeCount())
	assert.Equal(t, 3, a.AllocatedCount())

	// AND freed again
	a.FreeBlocks(ids)

	// THEN the allocator returns to its prior state
	assert.Equal(t, 8, a.FreeCount())
	assert.Equal(t, 0, a.AllocatedCount())
}

// TestBlockAllocator_AllOrNothing verifies allocation failure leaves the
// pool unchanged.
func TestBlockAllocator_AllOrNothing(t *testing.T) {
	a := NewBlockAllocator(testConfig())
	_, ok := a.Allocate(5)
	require.True(t, ok)
	assert.Equal(t, 3, a.FreeCount())

	// WHEN an allocation for more than what remains is attempted
	ids, ok := a.Allocate(4)

	// THEN it fails and the pool is untouched
	assert.False(t, ok)
	assert.Nil(t, ids)
	assert.Equal(t, 3, a.FreeCount())
	assert.Equal(t, 5, a.AllocatedCount())
}

// TestBlockAllocator_RefCounting verifies a block only returns to the
// free pool once its refcount reaches zero, and is never handed out
// twice while live.
func TestBlockAllocator_RefCounting(t *testing.T) {
	a := NewBlockAllocator(testConfig())
	ids, ok := a.Allocate(1)
	require.True(t, ok)
	id := ids[0]

	a.blocks[id].RefCount = 2 // simulate a second reference (future prefix sharing)

	a.Free(id)
	assert.Equal(t, 1, a.AllocatedCount(), "block should still be live after one free with refcount 2")
	assert.Equal(t, 7, a.FreeCount())

	a.Free(id)
	assert.Equal(t, 0, a.AllocatedCount())
	assert.Equal(t, 8, a.FreeCount())
}

// TestBlockAllocator_FreeOutOfRange verifies out-of-range ids are ignored,
// not fatal.
func TestBlockAllocator_FreeOutOfRange(t *testing.T) {
	a := NewBlockAllocator(testConfig())
	assert.NotPanics(t, func() {
		a.Free(BlockID(999))
		a.Free(BlockID(-1))
	})
	assert.Equal(t, 8, a.FreeCount())
}

// TestBlockAllocator_BytesAccounting verifies the per-block byte formula:
// 2 (K+V) * block_size * num_heads * head_dim * dtype_bytes * num_layers.
func TestBlockAllocator_BytesAccounting(t *testing.T) {
	cfg := testConfig()
	a := NewBlockAllocator(cfg)
	want := int64(2 * cfg.BlockSize * cfg.NumHeads * cfg.HeadDim * cfg.DTypeBytes * cfg.NumLayers)
	assert.Equal(t, want, a.BytesPerBlock())
	assert.Equal(t, want*int64(cfg.MaxBlocks), a.BytesCapacity())

	a.Allocate(2)
	assert.Equal(t, want*2, a.BytesUsed())
}

func TestBlocksNeeded(t *testing.T) {
	cases := []struct {
		tokens, blockSize, want int
	}{
		{0, 16, 0},
		{1, 16, 1},
		{16, 16, 1},
		{17, 16, 2},
		{32, 16, 2},
		{33, 16, 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, blocksNeeded(c.tokens, c.blockSize))
	}
}
