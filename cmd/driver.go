package cmd

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/izwi-audio/izwi-core/engine"
)

// drive runs a minimal synchronous loop over the engine: admit arrivals
// due at the current step, call Schedule, run a stub executor over the
// returned batch, report progress with UpdateAfterStep, and finish
// requests that hit their generation budget. The real model executor
// (forward-pass timing, token sampling) is out of scope for this core —
// the stub simply advances every scheduled item by one unit of work per
// step, which is enough to exercise admission, prefill chunking,
// preemption and completion end to end.
func drive(eng *engine.Engine, metrics *engine.Metrics, workload WorkloadSection, maxSteps int64) {
	requests := generateWorkload(workload)
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].arrivalStep < requests[j].arrivalStep
	})

	generated := make(map[string]int)
	maxTokens := make(map[string]int)
	for _, r := range requests {
		maxTokens[r.admission.ID] = r.admission.MaxTokens
	}

	next := 0
	var step int64
	for step = 0; step < maxSteps; step++ {
		for next < len(requests) && requests[next].arrivalStep <= step {
			eng.Scheduler.AddRequest(requests[next].admission, step)
			next++
		}

		result := eng.Step()

		for _, pr := range result.PrefillRequests {
			if pr.NumComputedTokens == 0 {
				metrics.RequestsAdmitted.Inc()
			}
			eng.Scheduler.UpdateAfterStep(pr.RequestID, pr.NumTokens, 0, nil)
		}
		for _, dr := range result.DecodeRequests {
			generated[dr.RequestID]++
			eng.Scheduler.UpdateAfterStep(dr.RequestID, 0, dr.NumTokens, nil)
			if generated[dr.RequestID] >= maxTokens[dr.RequestID] {
				eng.Scheduler.FinishRequest(dr.RequestID, eng.KVCache)
				metrics.RequestsFinished.Inc()
			}
		}
		for _, id := range result.PreemptedRequests {
			metrics.RequestsPreempted.Inc()
			eng.Scheduler.Requeue(id)
		}

		metrics.Observe(eng.KVCache.Stats())
		if step%100 == 0 {
			logrus.Debugf("step=%d waiting=%d running=%d tokens=%d blocks=%d",
				step, eng.Scheduler.WaitingCount(), eng.Scheduler.RunningCount(),
				result.TotalTokens, result.BlocksAllocated)
		}

		if next >= len(requests) && !eng.Scheduler.HasPendingWork() {
			logrus.Infof("run complete at step %d", step)
			return
		}
	}
	logrus.Warnf("max-steps reached (%d) with pending work: waiting=%d running=%d",
		maxSteps, eng.Scheduler.WaitingCount(), eng.Scheduler.RunningCount())

	// The step budget is the driver's wall-clock limit: abort everything
	// still outstanding rather than leak it silently.
	for _, r := range requests {
		if !eng.Scheduler.HasRequest(r.admission.ID) {
			continue
		}
		eng.Scheduler.AbortRequest(r.admission.ID, eng.KVCache)
		metrics.RequestsAborted.Inc()
	}
}
