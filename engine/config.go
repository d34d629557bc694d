package engine

import "fmt"

// Policy names accepted by Config.Policy.
const (
	PolicyFCFS     = "fcfs"
	PolicyPriority = "priority"
)

// Config groups every tunable of the scheduling core. Zero-valued fields
// that matter (block size, pool size, batch/token budgets) are rejected
// by Validate — invalid configuration is a fatal, construction-time
// error, never a runtime one.
type Config struct {
	// KV cache geometry.
	BlockSize  int // tokens per block
	MaxBlocks  int // pool size
	NumLayers  int
	NumHeads   int
	HeadDim    int
	DTypeBytes int

	// Scheduling budgets.
	MaxBatchSize     int // upper bound on scheduled items per step
	MaxTokensPerStep int // token budget per step across the whole batch

	// Policy surface.
	Policy                  string // "fcfs" (default) or "priority"
	EnableChunkedPrefill    bool
	ChunkedPrefillThreshold int
	EnablePreemption        bool
}

// Validate rejects configuration that would leave the scheduler unable
// to make progress or whose semantics are undefined.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("engine: block_size must be > 0, got %d", c.BlockSize)
	}
	if c.MaxBlocks <= 0 {
		return fmt.Errorf("engine: max_blocks must be > 0, got %d", c.MaxBlocks)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("engine: max_batch_size must be > 0, got %d", c.MaxBatchSize)
	}
	if c.MaxTokensPerStep <= 0 {
		return fmt.Errorf("engine: max_tokens_per_step must be > 0, got %d", c.MaxTokensPerStep)
	}
	switch c.Policy {
	case "", PolicyFCFS, PolicyPriority:
	default:
		return fmt.Errorf("engine: unknown policy %q (want %q or %q)", c.Policy, PolicyFCFS, PolicyPriority)
	}
	if c.EnableChunkedPrefill && c.ChunkedPrefillThreshold <= 0 {
		return fmt.Errorf("engine: chunked_prefill_threshold must be > 0 when chunked prefill is enabled, got %d", c.ChunkedPrefillThreshold)
	}
	if c.NumLayers < 0 || c.NumHeads < 0 || c.HeadDim < 0 || c.DTypeBytes < 0 {
		return fmt.Errorf("engine: hardware geometry fields must be non-negative")
	}
	return nil
}

// effectivePolicy normalizes the empty-string default to fcfs.
func (c Config) effectivePolicy() string {
	if c.Policy == "" {
		return PolicyFCFS
	}
	return c.Policy
}
