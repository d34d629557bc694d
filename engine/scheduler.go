package engine

import "fmt"

// ScheduledRequest carries metadata about a request included in a
// ScheduleResult: its id, sequence id, the token count for this step,
// whether it is a prefill or decode item, its full block table, and the
// number of tokens already computed (the prefill offset).
type ScheduledRequest struct {
	RequestID         string
	SequenceID        int64
	NumTokens         int
	IsPrefill         bool
	BlockTable        []BlockID
	NumComputedTokens int
}

// ScheduleResult is the output of a single Scheduler.Schedule call.
type ScheduleResult struct {
	DecodeRequests    []ScheduledRequest
	PrefillRequests   []ScheduledRequest
	PreemptedRequests []string
	TotalTokens       int
	BlocksAllocated   int
}

// HasWork reports whether this step scheduled any decode or prefill item.
func (r ScheduleResult) HasWork() bool {
	return len(r.DecodeRequests) > 0 || len(r.PrefillRequests) > 0
}

// Scheduler is the per-step decision maker: it owns request metadata and
// running state, and borrows a KVCacheManager by reference during
// Schedule, UpdateAfterStep, FinishRequest, and AbortRequest.
type Scheduler struct {
	cfg Config
	wait WaitPolicy

	metadata map[string]*RequestMetadata
	running  map[string]*runningRequest
	// runningOrder gives decode-phase iteration a deterministic, stable
	// order (admission order) independent of Go's randomized map
	// iteration. An id is removed from it when its request is evicted,
	// finished or aborted.
	runningOrder []string

	nextSequenceID int64
}

// NewScheduler builds a Scheduler for the given configuration. Config is
// validated here; invalid configuration is a fatal construction error.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wq, err := NewWaitQueue(cfg.effectivePolicy())
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:      cfg,
		wait:     wq,
		metadata: make(map[string]*RequestMetadata),
		running:  make(map[string]*runningRequest),
	}, nil
}

// AddRequest admits req into the waiting queue and assigns it a strictly
// increasing sequence id.
func (s *Scheduler) AddRequest(req AdmissionRequest, arrivalTime int64) int64 {
	seq := s.nextSequenceID
	s.nextSequenceID++
	meta := &RequestMetadata{
		RequestID:         req.ID,
		SequenceID:        seq,
		Priority:          req.Priority,
		ArrivalTime:       arrivalTime,
		TotalPromptTokens: req.PromptTokens,
		MaxTokens:         req.MaxTokens,
	}
	s.metadata[req.ID] = meta
	s.wait.Push(meta)
	return seq
}

// Schedule produces the next step's batch: decode work for already-
// complete running requests first, then prefill continuation for
// running requests still mid-chunked-prefill, then new prefill
// admissions from the waiting queue — all under the batch-size and
// token budgets.
func (s *Scheduler) Schedule(kv *KVCacheManager) ScheduleResult {
	var result ScheduleResult
	remainingBatch := s.cfg.MaxBatchSize
	remainingTokens := s.cfg.MaxTokensPerStep

	// Phase 1: decode requests already running.
	//
	// Preemption below may delete entries from s.running and replace
	// s.runningOrder with a new, shorter slice mid-iteration. Go's range
	// captures the slice header at loop entry, so this loop still visits
	// every id that was running when the step began, at its original
	// index; ids pruned by preemption simply miss the map lookup below
	// and are skipped. This is intentional, not a bug to "fix".
	for _, id := range s.runningOrder {
		if remainingBatch <= 0 || remainingTokens <= 0 {
			break
		}
		rs := s.running[id]
		if rs == nil {
			continue // pruned by preemption earlier this step
		}
		if !rs.prefillComplete {
			continue // still in prefill, handled in phase 1b below
		}

		const tokensThisStep = 1
		required := blocksNeeded(rs.tokensProcessed+tokensThisStep, s.cfg.BlockSize)
		if required > len(rs.blockTable) {
			diff := required - len(rs.blockTable)
			if !s.ensureBlocks(id, diff, kv, &result) {
				continue // no progress this step; request stays running
			}
			newIDs := kv.Allocate(id, diff)
			rs.blockTable = append(rs.blockTable, newIDs...)
			result.BlocksAllocated += len(newIDs)
		}

		result.DecodeRequests = append(result.DecodeRequests, ScheduledRequest{
			RequestID:         id,
			SequenceID:        rs.sequenceID,
			NumTokens:         tokensThisStep,
			IsPrefill:         false,
			BlockTable:        copyBlockTable(rs.blockTable),
			NumComputedTokens: rs.tokensProcessed,
		})
		remainingBatch--
		remainingTokens -= tokensThisStep
		result.TotalTokens += tokensThisStep
	}

	// Phase 1b: continue prefill for running requests whose prompt was
	// only partially admitted on an earlier step (chunked prefill). These
	// are skipped by the decode loop above because prefillComplete is
	// false; without this pass a chunked request would never advance
	// past its first chunk.
	for _, id := range s.runningOrder {
		if remainingBatch <= 0 || remainingTokens <= 0 {
			break
		}
		rs := s.running[id]
		if rs == nil || rs.prefillComplete {
			continue
		}
		meta := s.metadata[id]
		if meta == nil {
			continue
		}
		want := meta.TotalPromptTokens - rs.tokensProcessed
		if s.cfg.EnableChunkedPrefill && want > s.cfg.ChunkedPrefillThreshold {
			want = s.cfg.ChunkedPrefillThreshold
		}
		if want > remainingTokens {
			want = remainingTokens
		}
		if want <= 0 {
			continue
		}

		required := blocksNeeded(rs.tokensProcessed+want, s.cfg.BlockSize)
		if required > len(rs.blockTable) {
			diff := required - len(rs.blockTable)
			if !s.ensureBlocks(id, diff, kv, &result) {
				continue
			}
			newIDs := kv.Allocate(id, diff)
			rs.blockTable = append(rs.blockTable, newIDs...)
			result.BlocksAllocated += len(newIDs)
		}

		result.PrefillRequests = append(result.PrefillRequests, ScheduledRequest{
			RequestID:         id,
			SequenceID:        rs.sequenceID,
			NumTokens:         want,
			IsPrefill:         true,
			BlockTable:        copyBlockTable(rs.blockTable),
			NumComputedTokens: rs.tokensProcessed,
		})
		remainingBatch--
		remainingTokens -= want
		result.TotalTokens += want
	}

	// Phase 2: admit from the waiting queue.
	for remainingBatch > 0 && remainingTokens > 0 {
		meta := s.wait.Peek()
		if meta == nil {
			break
		}
		if _, ok := s.metadata[meta.RequestID]; !ok {
			s.wait.Pop() // stale entry
			continue
		}
		if _, ok := s.running[meta.RequestID]; ok {
			s.wait.Pop() // defensive: already running
			continue
		}

		want := meta.TotalPromptTokens
		if s.cfg.EnableChunkedPrefill && want > s.cfg.ChunkedPrefillThreshold {
			want = s.cfg.ChunkedPrefillThreshold
		}
		if want > remainingTokens {
			want = remainingTokens
		}
		if want <= 0 {
			break
		}

		needed := blocksNeeded(want, s.cfg.BlockSize)
		if !kv.CanAllocate(needed) {
			if !s.cfg.EnablePreemption || !s.makeRoom(needed, kv, &result) {
				break // stop the phase; do not pop
			}
		}

		ids := kv.Allocate(meta.RequestID, needed)
		result.BlocksAllocated += len(ids)

		s.running[meta.RequestID] = &runningRequest{
			sequenceID:      meta.SequenceID,
			blockTable:      ids,
			prefillComplete: want >= meta.TotalPromptTokens,
		}
		s.runningOrder = append(s.runningOrder, meta.RequestID)

		result.PrefillRequests = append(result.PrefillRequests, ScheduledRequest{
			RequestID:         meta.RequestID,
			SequenceID:        meta.SequenceID,
			NumTokens:         want,
			IsPrefill:         true,
			BlockTable:        copyBlockTable(ids),
			NumComputedTokens: 0,
		})

		s.wait.Pop()
		remainingBatch--
		remainingTokens -= want
		result.TotalTokens += want
	}

	return result
}

// ensureBlocks tries to make diff additional blocks allocatable, evicting
// running requests (lowest priority first) if preemption is enabled. It
// returns false if id cannot proceed this step — either because no more
// victims are available, or because id itself was the one evicted.
func (s *Scheduler) ensureBlocks(id string, diff int, kv *KVCacheManager, result *ScheduleResult) bool {
	for !kv.CanAllocate(diff) {
		if !s.cfg.EnablePreemption {
			return false
		}
		victim, ok := s.pickVictim()
		if !ok {
			return false
		}
		s.evict(victim, kv, result)
		if victim == id {
			return false
		}
	}
	return true
}

// makeRoom evicts running requests until needed blocks are free, or until
// no victims remain. Used by the prefill phase: the design note in the
// spec calls prefill-triggered preemption a future extension, but the
// fairness scenario it exists to support requires it today, so it is
// implemented uniformly with decode-phase preemption.
func (s *Scheduler) makeRoom(needed int, kv *KVCacheManager, result *ScheduleResult) bool {
	for !kv.CanAllocate(needed) {
		victim, ok := s.pickVictim()
		if !ok {
			return false
		}
		s.evict(victim, kv, result)
	}
	return true
}

// pickVictim returns the running request with the lowest priority,
// ties broken by latest arrival, further ties broken by request id, for
// a fully deterministic selection.
func (s *Scheduler) pickVictim() (string, bool) {
	var victim string
	var victimMeta *RequestMetadata
	for id := range s.running {
		meta := s.metadata[id]
		if meta == nil {
			continue
		}
		if victimMeta == nil ||
			meta.Priority < victimMeta.Priority ||
			(meta.Priority == victimMeta.Priority && meta.ArrivalTime > victimMeta.ArrivalTime) ||
			(meta.Priority == victimMeta.Priority && meta.ArrivalTime == victimMeta.ArrivalTime && meta.RequestID > victimMeta.RequestID) {
			victim = id
			victimMeta = meta
		}
	}
	return victim, victim != ""
}

// evict removes id from running state, frees its blocks, and records it
// in result.PreemptedRequests. Its metadata survives — the driver may
// call Requeue to send it back to the waiting queue.
func (s *Scheduler) evict(id string, kv *KVCacheManager, result *ScheduleResult) {
	delete(s.running, id)
	s.runningOrder = removeString(s.runningOrder, id)
	kv.Free(id)
	result.PreemptedRequests = append(result.PreemptedRequests, id)
}

// Requeue pushes a preempted request's existing metadata back onto the
// waiting queue, preserving its original arrival time. Under the priority
// policy that restores its original place in the ordering; under fcfs it
// is appended behind every request currently waiting. It is the driver's
// job to call this for
// ids reported in ScheduleResult.PreemptedRequests — the scheduler itself
// only evicts and reports; it does not assume the driver wants the
// request re-admitted rather than aborted.
func (s *Scheduler) Requeue(requestID string) bool {
	meta := s.metadata[requestID]
	if meta == nil {
		return false
	}
	if _, ok := s.running[requestID]; ok {
		return false
	}
	s.wait.Push(meta)
	return true
}

// UpdateAfterStep applies the executor's reported progress: it adds the
// deltas to running state, appends any late-allocated blocks, and
// re-evaluates prefill_complete. A no-op for unknown or non-running ids.
func (s *Scheduler) UpdateAfterStep(requestID string, tokensProcessedDelta, tokensGeneratedDelta int, newBlockIDs []BlockID) {
	rs := s.running[requestID]
	if rs == nil {
		return
	}
	rs.tokensProcessed += tokensProcessedDelta
	rs.tokensGenerated += tokensGeneratedDelta
	rs.blockTable = append(rs.blockTable, newBlockIDs...)

	if meta := s.metadata[requestID]; meta != nil {
		rs.prefillComplete = rs.tokensProcessed >= meta.TotalPromptTokens
	}

	assertf(len(rs.blockTable)*s.cfg.BlockSize >= rs.tokensProcessed,
		"engine: request %s advanced past its allocated blocks (%d blocks, %d tokens processed)",
		requestID, len(rs.blockTable), rs.tokensProcessed)
}

// FinishRequest removes running state and metadata for requestID and
// frees all its blocks.
func (s *Scheduler) FinishRequest(requestID string, kv *KVCacheManager) {
	if _, ok := s.running[requestID]; ok {
		delete(s.running, requestID)
		s.runningOrder = removeString(s.runningOrder, requestID)
	}
	delete(s.metadata, requestID)
	kv.Free(requestID)
}

// AbortRequest removes requestID from both queues and metadata, frees its
// blocks, and returns true iff the request was running. Safe on unknown
// ids, and idempotent: a second call returns false and has no effect.
func (s *Scheduler) AbortRequest(requestID string, kv *KVCacheManager) bool {
	wasRunning := false
	if _, ok := s.running[requestID]; ok {
		wasRunning = true
		delete(s.running, requestID)
		s.runningOrder = removeString(s.runningOrder, requestID)
		kv.Free(requestID)
	}
	s.wait.Remove(requestID)
	delete(s.metadata, requestID)
	return wasRunning
}

// HasRequest reports whether the scheduler still knows about requestID
// (waiting or running).
func (s *Scheduler) HasRequest(requestID string) bool {
	_, ok := s.metadata[requestID]
	return ok
}

// Status reports requestID's coarse lifecycle state.
func (s *Scheduler) Status(requestID string) RequestStatus {
	if _, ok := s.running[requestID]; ok {
		return StatusRunning
	}
	if _, ok := s.metadata[requestID]; ok {
		return StatusWaiting
	}
	return StatusUnknown
}

// RunningInfo returns a running request's tokens-processed and
// tokens-generated counters.
func (s *Scheduler) RunningInfo(requestID string) (tokensProcessed, tokensGenerated int, ok bool) {
	rs, ok := s.running[requestID]
	if !ok {
		return 0, 0, false
	}
	return rs.tokensProcessed, rs.tokensGenerated, true
}

// WaitingCount returns the number of requests currently waiting.
func (s *Scheduler) WaitingCount() int { return s.wait.Len() }

// RunningCount returns the number of requests currently running.
func (s *Scheduler) RunningCount() int { return len(s.running) }

// HasPendingWork reports whether there is anything left to schedule.
func (s *Scheduler) HasPendingWork() bool {
	return s.wait.Len() > 0 || len(s.running) > 0
}

func copyBlockTable(ids []BlockID) []BlockID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]BlockID, len(ids))
	copy(out, ids)
	return out
}

func removeString(items []string, target string) []string {
	for i, v := range items {
		if v == target {
			out := make([]string, 0, len(items)-1)
			out = append(out, items[:i]...)
			out = append(out, items[i+1:]...)
			return out
		}
	}
	return items
}

// assertf panics with a formatted message if cond is false. Reserved for
// invariant violations (programming errors), never for ordinary scheduling
// outcomes.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
