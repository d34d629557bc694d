// Package engine implements the paged-attention scheduling core: a block
// allocator, a KV cache manager built on top of it, a waiting queue, and
// the single-threaded scheduler that ties them together.
//
// # Reading Guide
//
// Start with these files to understand the scheduling kernel:
//   - block.go: fixed-size block pool and free-list discipline
//   - kvcache.go: request-id -> block-table mapping built on the allocator
//   - waitqueue.go: FCFS and priority admission ordering
//   - scheduler.go: per-step decode/prefill/preemption decisions
//
// # Architecture
//
// The engine is a synchronous, single-threaded state machine. Callers
// drive it with Schedule, then UpdateAfterStep once the (out-of-process)
// model executor reports progress, then FinishRequest or AbortRequest on
// completion. No method here blocks or spawns goroutines; concurrency,
// if needed, is the caller's problem (wrap Engine in a mutex).
//
// # Key Types
//
//   - Scheduler: owns request metadata and running state, orders work.
//   - KVCacheManager: owns the request -> block-table mapping.
//   - BlockAllocator: owns the physical block pool and free list.
//   - WaitPolicy: FCFS or priority admission ordering (Scheduler picks one).
package engine
