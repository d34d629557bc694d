package cmd

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/izwi-audio/izwi-core/engine"
)

// syntheticRequest is one request in a generated workload: its arrival
// step and the admission parameters the engine needs.
type syntheticRequest struct {
	arrivalStep int64
	admission   engine.AdmissionRequest
}

// generateWorkload produces a deterministic synthetic request stream:
// Poisson-ish arrivals (geometric inter-arrival gaps) with prompt and
// generation lengths drawn from a truncated normal around the workload
// section's means, using a seeded math/rand.Rand for reproducible
// arrivals.
func generateWorkload(cfg WorkloadSection) []syntheticRequest {
	rng := rand.New(rand.NewSource(cfg.Seed))
	reqs := make([]syntheticRequest, 0, cfg.NumRequests)

	var step int64
	for i := 0; i < cfg.NumRequests; i++ {
		if cfg.ArrivalRate > 0 {
			step += poissonInterArrival(rng, cfg.ArrivalRate)
		}
		prompt := truncatedNormal(rng, float64(cfg.PromptTokensMean), float64(cfg.PromptTokensMean)/4, 1)
		maxTokens := truncatedNormal(rng, float64(cfg.MaxTokensMean), float64(cfg.MaxTokensMean)/4, 1)

		var priority int64
		if cfg.PriorityMax > 0 {
			priority = rng.Int63n(cfg.PriorityMax + 1)
		}

		reqs = append(reqs, syntheticRequest{
			arrivalStep: step,
			admission: engine.AdmissionRequest{
				ID:           requestID(i),
				Priority:     priority,
				PromptTokens: prompt,
				MaxTokens:    maxTokens,
			},
		})
	}
	return reqs
}

// poissonInterArrival draws a geometric number of steps until the next
// arrival from a Poisson process with the given per-step rate, using
// the standard exponential-inter-arrival-time construction.
func poissonInterArrival(rng *rand.Rand, rate float64) int64 {
	u := rng.Float64()
	if u <= 0 {
		u = 1e-9
	}
	gap := -math.Log(u) / rate
	return int64(math.Max(1, math.Round(gap)))
}

// truncatedNormal draws from Normal(mean, stdev) clamped to [min, +inf).
func truncatedNormal(rng *rand.Rand, mean, stdev float64, min int) int {
	v := rng.NormFloat64()*stdev + mean
	n := int(math.Round(v))
	if n < min {
		return min
	}
	return n
}

func requestID(i int) string {
	return fmt.Sprintf("req-%d", i)
}
