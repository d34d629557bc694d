package engine

// KVCacheManager maps each request to its ordered block table and
// forwards allocation and free to a BlockAllocator. It holds no block
// storage itself — it only borrows identifiers from the allocator.
//
// An earlier revision kept two maps updated in lockstep that always
// held the same contents. There is exactly one map here; nothing
// downstream needs the duplicate.
type KVCacheManager struct {
	allocator  *BlockAllocator
	blockSize  int
	blockTable map[string][]BlockID
}

// NewKVCacheManager builds a manager over a freshly constructed allocator.
func NewKVCacheManager(cfg Config) *KVCacheManager {
	return &KVCacheManager{
		allocator:  NewBlockAllocator(cfg),
		blockSize:  cfg.BlockSize,
		blockTable: make(map[string][]BlockID),
	}
}

// CanAllocate delegates to the underlying allocator.
func (km *KVCacheManager) CanAllocate(n int) bool {
	return km.allocator.CanAllocate(n)
}

// Allocate allocates n blocks and appends them to requestID's block
// table, creating the table if absent. Returns the newly appended ids,
// empty if allocation failed. The block table is append-only until Free.
func (km *KVCacheManager) Allocate(requestID string, n int) []BlockID {
	ids, ok := km.allocator.Allocate(n)
	if !ok {
		return nil
	}
	km.blockTable[requestID] = append(km.blockTable[requestID], ids...)
	return ids
}

// Extend is an alias of Allocate, used during decode to grow a table.
func (km *KVCacheManager) Extend(requestID string, n int) []BlockID {
	return km.Allocate(requestID, n)
}

// Free removes requestID's block table and releases every id to the
// allocator. Calling Free twice for the same id without an intervening
// Allocate never happens because the table is removed on the first call.
func (km *KVCacheManager) Free(requestID string) {
	ids, ok := km.blockTable[requestID]
	if !ok {
		return
	}
	delete(km.blockTable, requestID)
	km.allocator.FreeBlocks(ids)
}

// GetBlockTable returns a read-only copy of requestID's block table.
func (km *KVCacheManager) GetBlockTable(requestID string) []BlockID {
	ids := km.blockTable[requestID]
	if len(ids) == 0 {
		return nil
	}
	out := make([]BlockID, len(ids))
	copy(out, ids)
	return out
}

// UpdateBlockTokens sets block id's per-block occupancy counter, for
// diagnostics and for future prefix sharing. The Scheduler does not call
// it: UpdateAfterStep leaves per-block occupancy untouched, so it changes
// only when a caller invokes this method. content is optional; when
// provided it is hashed into the block's fingerprint.
func (km *KVCacheManager) UpdateBlockTokens(id BlockID, numTokens int, content []byte) {
	km.allocator.UpdateOccupancy(id, numTokens, content)
}

// BlocksForTokens returns ceil(numTokens / block_size) using the
// manager's configured block size. Callers must never hard-code a block
// size of their own; disagreeing with the cache manager's configured
// value is the bug this contract forbids.
func (km *KVCacheManager) BlocksForTokens(numTokens int) int {
	return blocksNeeded(numTokens, km.blockSize)
}

// BlockSize returns the configured tokens-per-block.
func (km *KVCacheManager) BlockSize() int { return km.blockSize }

// KVCacheStats is the aggregate snapshot returned by Stats.
type KVCacheStats struct {
	TotalBlocks     int
	AllocatedBlocks int
	FreeBlocks      int
	Sequences       int
	BytesUsed       int64
	BytesCapacity   int64
	Utilization     float64
}

// Stats returns aggregate totals for the cache manager's current state.
func (km *KVCacheManager) Stats() KVCacheStats {
	bytesUsed := km.allocator.BytesUsed()
	bytesCap := km.allocator.BytesCapacity()
	var utilization float64
	if bytesCap > 0 {
		utilization = float64(bytesUsed) / float64(bytesCap)
	}
	return KVCacheStats{
		TotalBlocks:     km.allocator.MaxBlocks(),
		AllocatedBlocks: km.allocator.AllocatedCount(),
		FreeBlocks:      km.allocator.FreeCount(),
		Sequences:       len(km.blockTable),
		BytesUsed:       bytesUsed,
		BytesCapacity:   bytesCap,
		Utilization:     utilization,
	}
}
