package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKVCacheManager_AllocateAppendsTable verifies allocate/extend append
// to a request's block table rather than replacing it.
func TestKVCacheManager_AllocateAppendsTable(t *testing.T) {
	km := NewKVCacheManager(testConfig())

	first := km.Allocate("r1", 2)
	require.Len(t, first, 2)
	second := km.Extend("r1", 1)
	require.Len(t, second, 1)

	table := km.GetBlockTable("r1")
	assert.Len(t, table, 3)
	assert.Equal(t, append(append([]BlockID{}, first...), second...), table)
}

// TestKVCacheManager_AllocateFailureReturnsEmpty verifies a failed
// allocation returns nil/empty rather than partially mutating the table.
func TestKVCacheManager_AllocateFailureReturnsEmpty(t *testing.T) {
	km := NewKVCacheManager(testConfig()) // 8 blocks total
	ids := km.Allocate("r1", 100)
	assert.Empty(t, ids)
	assert.Empty(t, km.GetBlockTable("r1"))
}

// TestKVCacheManager_FreeReleasesAllBlocks verifies Free removes the
// table and returns every id to the allocator.
func TestKVCacheManager_FreeReleasesAllBlocks(t *testing.T) {
	km := NewKVCacheManager(testConfig())
	km.Allocate("r1", 3)
	km.Allocate("r2", 2)
	require.Equal(t, 3, km.allocator.FreeCount())

	km.Free("r1")

	assert.Empty(t, km.GetBlockTable("r1"))
	assert.Equal(t, 6, km.allocator.FreeCount())
	assert.Equal(t, 2, km.allocator.AllocatedCount())
}

// TestKVCacheManager_DisjointIds verifies two live requests never share a
// block id.
func TestKVCacheManager_DisjointIds(t *testing.T) {
	km := NewKVCacheManager(testConfig())
	a := km.Allocate("r1", 3)
	b := km.Allocate("r2", 3)

	seen := make(map[BlockID]bool)
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		assert.False(t, seen[id], "id %d allocated to both r1 and r2", id)
	}
}

// TestKVCacheManager_BlocksForTokensUsesConfiguredSize verifies
// BlocksForTokens reads block size from the manager's own configuration,
// never a hard-coded value.
func TestKVCacheManager_BlocksForTokensUsesConfiguredSize(t *testing.T) {
	cfg := testConfig()
	cfg.BlockSize = 4
	km := NewKVCacheManager(cfg)
	assert.Equal(t, 5, km.BlocksForTokens(20))
	assert.Equal(t, 1, km.BlocksForTokens(1))
	assert.Equal(t, 0, km.BlocksForTokens(0))
}

// TestKVCacheManager_Stats verifies the aggregate stats snapshot.
func TestKVCacheManager_Stats(t *testing.T) {
	km := NewKVCacheManager(testConfig())
	km.Allocate("r1", 2)
	km.Allocate("r2", 1)

	stats := km.Stats()
	assert.Equal(t, 8, stats.TotalBlocks)
	assert.Equal(t, 3, stats.AllocatedBlocks)
	assert.Equal(t, 5, stats.FreeBlocks)
	assert.Equal(t, 2, stats.Sequences)
	assert.InDelta(t, float64(3)/float64(8), stats.Utilization, 1e-9)
}

// TestKVCacheManager_UpdateBlockTokensFingerprint verifies the optional
// content fingerprint path: it is set when content is supplied, and left
// alone otherwise.
func TestKVCacheManager_UpdateBlockTokensFingerprint(t *testing.T) {
	km := NewKVCacheManager(testConfig())
	ids := km.Allocate("r1", 1)
	require.Len(t, ids, 1)

	km.UpdateBlockTokens(ids[0], 16, nil)
	assert.Equal(t, uint64(0), km.allocator.blocks[ids[0]].Fingerprint)

	km.UpdateBlockTokens(ids[0], 16, []byte("hello world"))
	assert.NotZero(t, km.allocator.blocks[ids[0]].Fingerprint)
	assert.Equal(t, 16, km.allocator.blocks[ids[0]].Occupancy)
}
