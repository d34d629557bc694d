package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/izwi-audio/izwi-core/engine"
)

// ConfigBundle is the optional YAML document a deployment can pin
// engine.Config and workload parameters with, instead of (or on top of)
// CLI flags. Strict decoding: unrecognized keys are a load error, not a
// silent typo.
type ConfigBundle struct {
	KVCache  KVCacheSection  `yaml:"kv_cache"`
	Schedule ScheduleSection `yaml:"schedule"`
	Workload WorkloadSection `yaml:"workload"`
}

// KVCacheSection mirrors the geometry half of engine.Config.
type KVCacheSection struct {
	BlockSize  int `yaml:"block_size"`
	MaxBlocks  int `yaml:"max_blocks"`
	NumLayers  int `yaml:"num_layers"`
	NumHeads   int `yaml:"num_heads"`
	HeadDim    int `yaml:"head_dim"`
	DTypeBytes int `yaml:"dtype_bytes"`
}

// ScheduleSection mirrors the budget/policy half of engine.Config.
type ScheduleSection struct {
	MaxBatchSize            int    `yaml:"max_batch_size"`
	MaxTokensPerStep        int    `yaml:"max_tokens_per_step"`
	Policy                  string `yaml:"policy"`
	EnableChunkedPrefill    bool   `yaml:"enable_chunked_prefill"`
	ChunkedPrefillThreshold int    `yaml:"chunked_prefill_threshold"`
	EnablePreemption        bool   `yaml:"enable_preemption"`
}

// WorkloadSection describes the synthetic request stream the run
// command replays through the engine. There is no trace-file input; the
// workload is always generated.
type WorkloadSection struct {
	NumRequests      int     `yaml:"num_requests"`
	ArrivalRate      float64 `yaml:"arrival_rate"` // requests per step, Poisson mean
	PromptTokensMean int     `yaml:"prompt_tokens_mean"`
	MaxTokensMean    int     `yaml:"max_tokens_mean"`
	PriorityMax      int64   `yaml:"priority_max"` // priority policy only: uniform [0, PriorityMax]
	Seed             int64   `yaml:"seed"`
}

// LoadConfigBundle reads and strictly parses a YAML config file.
func LoadConfigBundle(path string) (*ConfigBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config bundle: %w", err)
	}
	var bundle ConfigBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing config bundle: %w", err)
	}
	return &bundle, nil
}

// EngineConfig converts the bundle's KV cache and schedule sections into
// an engine.Config. Zero-valued sections (no bundle loaded) leave every
// field at its Go zero value; callers overlay CLI flags afterward.
func (b *ConfigBundle) EngineConfig() engine.Config {
	return engine.Config{
		BlockSize:               b.KVCache.BlockSize,
		MaxBlocks:               b.KVCache.MaxBlocks,
		NumLayers:               b.KVCache.NumLayers,
		NumHeads:                b.KVCache.NumHeads,
		HeadDim:                 b.KVCache.HeadDim,
		DTypeBytes:              b.KVCache.DTypeBytes,
		MaxBatchSize:            b.Schedule.MaxBatchSize,
		MaxTokensPerStep:        b.Schedule.MaxTokensPerStep,
		Policy:                  b.Schedule.Policy,
		EnableChunkedPrefill:    b.Schedule.EnableChunkedPrefill,
		ChunkedPrefillThreshold: b.Schedule.ChunkedPrefillThreshold,
		EnablePreemption:        b.Schedule.EnablePreemption,
	}
}
