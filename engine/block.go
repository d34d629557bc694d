package engine

import (
	"github.com/cespare/xxhash"
	"github.com/gammazero/deque"
)

// BlockID identifies a single cache block by its fixed position in the pool.
type BlockID int

// Block is one fixed-capacity slab of attention cache memory.
//
// Occupancy never exceeds the allocator's configured block size. RefCount
// is >=1 while the block is live and 0 exactly when it sits in the free
// pool. Fingerprint is reserved for future cross-request prefix sharing;
// today it is computed (via UpdateOccupancy's optional content) but never
// consulted by the scheduler or cache manager.
type Block struct {
	ID          BlockID
	Occupancy   int
	RefCount    int
	Fingerprint uint64
}

// BlockAllocator owns a fixed pool of cache blocks and serves allocation
// and free requests over a free list. It never looks at request identity;
// that mapping belongs to KVCacheManager.
type BlockAllocator struct {
	blockSize      int
	numLayers      int
	numHeads       int
	headDim        int
	dtypeBytes     int
	blocks         []Block
	free           deque.Deque[BlockID]
	allocatedCount int
}

// NewBlockAllocator builds a pool of maxBlocks blocks, all free.
func NewBlockAllocator(cfg Config) *BlockAllocator {
	a := &BlockAllocator{
		blockSize:  cfg.BlockSize,
		numLayers:  cfg.NumLayers,
		numHeads:   cfg.NumHeads,
		headDim:    cfg.HeadDim,
		dtypeBytes: cfg.DTypeBytes,
		blocks:     make([]Block, cfg.MaxBlocks),
	}
	for i := 0; i < cfg.MaxBlocks; i++ {
		a.blocks[i] = Block{ID: BlockID(i)}
		a.free.PushBack(BlockID(i))
	}
	return a
}

// CanAllocate reports whether n blocks are currently free.
func (a *BlockAllocator) CanAllocate(n int) bool {
	return a.free.Len() >= n
}

// Allocate atomically removes n identifiers from the free pool and resets
// their metadata. All-or-nothing: if fewer than n are free, the pool is
// left unchanged and ok is false.
func (a *BlockAllocator) Allocate(n int) (ids []BlockID, ok bool) {
	if !a.CanAllocate(n) {
		return nil, false
	}
	ids = make([]BlockID, 0, n)
	for i := 0; i < n; i++ {
		id := a.free.PopFront()
		blk := &a.blocks[id]
		blk.Occupancy = 0
		blk.RefCount = 1
		blk.Fingerprint = 0
		a.allocatedCount++
		ids = append(ids, id)
	}
	return ids, true
}

// Free decrements id's refcount; at zero the block returns to the free
// pool. Out-of-range ids are ignored, and freeing an already-free block
// is a no-op.
func (a *BlockAllocator) Free(id BlockID) {
	if id < 0 || int(id) >= len(a.blocks) {
		return
	}
	blk := &a.blocks[id]
	if blk.RefCount <= 0 {
		return
	}
	blk.RefCount--
	if blk.RefCount == 0 {
		a.free.PushBack(id)
		a.allocatedCount--
	}
}

// FreeBlocks applies Free to every id.
func (a *BlockAllocator) FreeBlocks(ids []BlockID) {
	for _, id := range ids {
		a.Free(id)
	}
}

// UpdateOccupancy sets block id's token occupancy counter. When content is
// non-nil, it also derives the block's content fingerprint via xxhash —
// exercised for future prefix-sharing metadata, never read back today.
func (a *BlockAllocator) UpdateOccupancy(id BlockID, numTokens int, content []byte) {
	if id < 0 || int(id) >= len(a.blocks) {
		return
	}
	blk := &a.blocks[id]
	blk.Occupancy = numTokens
	if content != nil {
		blk.Fingerprint = xxhash.Sum64(content)
	}
}

// FreeCount returns the number of currently free blocks.
func (a *BlockAllocator) FreeCount() int { return a.free.Len() }

// AllocatedCount returns the number of currently allocated blocks.
func (a *BlockAllocator) AllocatedCount() int { return a.allocatedCount }

// MaxBlocks returns the pool's total capacity.
func (a *BlockAllocator) MaxBlocks() int { return len(a.blocks) }

// BytesPerBlock returns the memory footprint of a single block across all
// layers and heads: 2 (K+V) * block_size * num_heads * head_dim * dtype_bytes * num_layers.
func (a *BlockAllocator) BytesPerBlock() int64 {
	return 2 * int64(a.blockSize) * int64(a.numHeads) * int64(a.headDim) * int64(a.dtypeBytes) * int64(a.numLayers)
}

// BytesUsed returns the memory footprint of all currently allocated blocks.
func (a *BlockAllocator) BytesUsed() int64 {
	return int64(a.allocatedCount) * a.BytesPerBlock()
}

// BytesCapacity returns the memory footprint of the entire pool.
func (a *BlockAllocator) BytesCapacity() int64 {
	return int64(len(a.blocks)) * a.BytesPerBlock()
}

// blocksNeeded returns ceil(numTokens / blockSize).
func blocksNeeded(numTokens, blockSize int) int {
	if numTokens <= 0 {
		return 0
	}
	return (numTokens + blockSize - 1) / blockSize
}
